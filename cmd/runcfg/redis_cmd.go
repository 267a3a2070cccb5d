// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/runcfg/internal/publish"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/spf13/cobra"
)

var errNoRedis = errors.New("redis.addr is not configured (settings file or RUNCFG_REDIS_ADDR)")

func (a *app) publisher(ctx context.Context) (*publish.Publisher, error) {
	return a.publisherAt(ctx, a.settings.Redis.Addr)
}

// publisherAt connects to addr with the password and db of the settings.
func (a *app) publisherAt(ctx context.Context, addr string) (*publish.Publisher, error) {
	if addr == "" {
		return nil, usageError(errNoRedis)
	}
	cfg := a.settings.PublishConfig()
	cfg.Addr = addr
	p, err := publish.New(ctx, cfg)
	if err != nil {
		return nil, &exitError{code: exitFailed, err: err}
	}
	return p, nil
}

func (a *app) publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish FILE",
		Short: "Publish a valid run config to Redis",
		Long: `Publish resolves FILE and stores it as JSON under <prefix>_run_config. It is
also appended to the <prefix>_run_configs list, which keeps the newest
publishes. Invalid configs are never published.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			res, err := a.loadValid(ctx, args[0])
			if err != nil {
				return err
			}
			p, err := a.publisher(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			msg, err := p.Publish(ctx, res)
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			a.printf("published %s (%s) to %s\n", res.Source, shortDigest(msg.Digest), p.CurrentKey())
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var (
		historyN    int
		samplerFile string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read the published run config back from Redis",
		Long: `Fetch prints the run config stored under <prefix>_run_config. With
--sampler FILE it reports the replay buffer length and the critic weights of
the sampler_params in FILE instead, using sampler_params.redis.addr when set
and redis.addr of the settings otherwise.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if samplerFile != "" {
				return a.fetchSampler(ctx, samplerFile)
			}
			p, err := a.publisher(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			switch {
			case historyN > 0:
				return a.fetchHistory(ctx, p, historyN)
			}

			msg, err := p.Fetch(ctx)
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			if format == runconfig.FormatJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(msg)
			}
			a.printf("source:    %s\n", msg.Source)
			a.printf("digest:    %s\n", msg.Digest)
			a.printf("model:     %s\n", msg.Model)
			a.printf("stages:    %v\n", msg.Stages)
			a.printf("published: %s\n", msg.PublishedAt.Format(time.RFC3339))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&historyN, "history", 0, "list the newest N published configs")
	f.StringVar(&samplerFile, "sampler", "", "report sampler state in Redis for the sampler_params of FILE")
	f.StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func (a *app) fetchHistory(ctx context.Context, p *publish.Publisher, n int) error {
	msgs, err := p.History(ctx, n)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHED\tDIGEST\tMODEL\tSTAGES\tSOURCE")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			m.PublishedAt.Format(time.RFC3339), shortDigest(m.Digest), m.Model, len(m.Stages), m.Source)
	}
	return tw.Flush()
}

func (a *app) fetchSampler(ctx context.Context, file string) error {
	res, err := a.loadValid(ctx, file)
	if err != nil {
		return err
	}
	sp := res.Run.Sampler
	if sp == nil {
		return &exitError{code: exitFailed, err: fmt.Errorf("%s has no %s", file, runconfig.KeySamplerParams)}
	}
	addr := sp.Redis.Addr
	if addr == "" {
		addr = a.settings.Redis.Addr
	}
	p, err := a.publisherAt(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	a.printf("redis:        %s\n", addr)
	state, err := p.Sampler(ctx, sp)
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}
	a.printf("trajectories: %d\n", state.Trajectories)
	a.printf("weights:      %t (%s)\n", state.HasWeights, sp.WeightsKey())
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
