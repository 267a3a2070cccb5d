// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"

	"github.com/ManuGH/runcfg/internal/api"
	"github.com/ManuGH/runcfg/internal/health"
	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/publish"
	"github.com/ManuGH/runcfg/internal/version"
	"github.com/ManuGH/runcfg/internal/watch"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var file, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation API",
		Long: `Serve exposes POST /api/v1/validate and /api/v1/resolve, the health probes
and Prometheus metrics. With --file the config is watched and served at
GET /api/v1/current.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.settings.API.ListenAddr = listen
			}
			if err := a.serve(cmd.Context(), file); err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "run config to watch and serve")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default api.listenAddr)")
	return cmd
}

func (a *app) serve(ctx context.Context, file string) error {
	logger := xglog.WithComponent("serve")
	s := a.settings

	if err := health.PerformStartupChecks(ctx, health.StartupConfig{
		ListenAddr:   s.API.ListenAddr,
		WatchFile:    file,
		HistoryPath:  s.History.Path,
		CatalogExtra: s.Catalog.Extra,
	}); err != nil {
		return err
	}

	loader, err := a.loader()
	if err != nil {
		return err
	}
	hm := health.NewManager(version.Version)
	deps := api.Deps{Loader: loader, Health: hm}

	if file != "" {
		h := watch.NewHolder(loader, file, watch.WithDebounce(s.Watch.Debounce))
		if err := h.Start(ctx); err != nil {
			return err
		}
		defer h.Stop()
		deps.Holder = h
		hm.RegisterChecker(health.NewFileChecker("run_config_file", file))
		hm.RegisterChecker(health.NewLoadedChecker(h.State))
	}

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		deps.History = store
		hm.RegisterChecker(health.NewFuncChecker("history", health.StatusUnhealthy, store.Verify))
	}

	if s.Redis.Addr != "" {
		pub, err := publish.New(ctx, s.PublishConfig())
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldRedisAddr, s.Redis.Addr).Msg("redis unavailable at startup")
		} else {
			defer func() { _ = pub.Close() }()
			hm.RegisterChecker(health.NewFuncChecker("redis", health.StatusDegraded, pub.Ping))
		}
	}

	logger.Info().
		Str(xglog.FieldEvent, "serve.start").
		Str(xglog.FieldListenAddr, s.API.ListenAddr).
		Str("version", version.String()).
		Msg("starting runcfg API")
	return api.New(api.Config{
		ListenAddr: s.API.ListenAddr,
		RateLimit:  s.API.RateLimit,
	}, deps).ListenAndServe(ctx)
}
