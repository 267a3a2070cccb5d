// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"fmt"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type loadOutcome struct {
	res *runconfig.Result
	err error
}

func (a *app) validateCmd() *cobra.Command {
	var (
		noRecord bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate one or more run configs",
		Long: `Validate loads every file concurrently (settings "workers" bounds the
fan-out) and reports all errors and warnings. The exit status is 1 when any
file is invalid or cannot be read. Outcomes are recorded in the history
database when history.path is configured.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes, err := a.loadAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			if !noRecord {
				a.record(cmd.Context(), outcomes)
			}
			if asJSON {
				return a.printValidateJSON(args, outcomes)
			}
			ok := true
			for i, o := range outcomes {
				if o.err != nil {
					fmt.Fprintf(a.stderr, "✗ %s: %v\n", args[i], o.err)
					ok = false
					continue
				}
				if !report(a.stdout, a.stderr, o.res) {
					ok = false
				}
			}
			if !ok {
				return failed()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record outcomes in the history database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// loadAll loads files with at most settings.Workers loads in flight.
// Outcomes keep the order of files.
func (a *app) loadAll(ctx context.Context, files []string) ([]loadOutcome, error) {
	loader, err := a.loader()
	if err != nil {
		return nil, err
	}
	outcomes := make([]loadOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.settings.Workers)
	for i, f := range files {
		g.Go(func() error {
			res, err := loader.Load(gctx, f)
			outcomes[i] = loadOutcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// record stores loaded results in the history database. Failures are
// logged and do not change the exit status.
func (a *app) record(ctx context.Context, outcomes []loadOutcome) {
	logger := xglog.WithComponent("cli")
	store, err := a.openHistory()
	if err != nil {
		logger.Warn().Err(err).Msg("history database unavailable")
		return
	}
	if store == nil {
		return
	}
	defer func() { _ = store.Close() }()

	for _, o := range outcomes {
		if o.res == nil {
			continue
		}
		if _, err := store.Record(ctx, o.res); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, o.res.Source).Msg("could not record validation outcome")
		}
	}
}

type validateJSON struct {
	*runconfig.Result
	Valid   bool   `json:"valid"`
	Failure string `json:"failure,omitempty"`
}

func (a *app) printValidateJSON(files []string, outcomes []loadOutcome) error {
	out := make([]validateJSON, len(outcomes))
	ok := true
	for i, o := range outcomes {
		if o.err != nil {
			out[i] = validateJSON{Result: &runconfig.Result{Source: files[i]}, Failure: o.err.Error()}
			ok = false
			continue
		}
		out[i] = validateJSON{Result: o.res, Valid: o.res.Valid()}
		ok = ok && o.res.Valid()
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !ok {
		return failed()
	}
	return nil
}
