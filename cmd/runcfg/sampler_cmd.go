// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxPlanEpisodes bounds --episodes so the listed sync episodes stay small.
const maxPlanEpisodes = 1_000_000

func (a *app) samplerCmd() *cobra.Command {
	var (
		id       int
		steps    []int64
		episodes int64
		logdir   string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "sampler FILE",
		Short: "Show the derived plan of one sampler worker",
		Long: `Sampler reads sampler_params and prints the seed, the exploration
schedule at the given step counts, the episodes that sync weights and the
log directory of sampler --id.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != runconfig.FormatYAML && format != runconfig.FormatJSON {
				return usageError(fmt.Errorf("unknown format %q (use yaml or json)", format))
			}
			if id < 0 {
				return usageError(fmt.Errorf("--id must not be negative"))
			}
			if episodes < 0 || episodes > maxPlanEpisodes {
				return usageError(fmt.Errorf("--episodes must be between 0 and %d", maxPlanEpisodes))
			}
			res, err := a.loadValid(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Run.Sampler == nil {
				return &exitError{code: exitFailed, err: fmt.Errorf("%s has no %s", args[0], runconfig.KeySamplerParams)}
			}
			if logdir == "" {
				logdir = res.Run.Args.Logdir
			}
			plan := res.Run.Sampler.Plan(id, steps, episodes, logdir, time.Now())

			if format == runconfig.FormatJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(plan); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	f := cmd.Flags()
	f.IntVar(&id, "id", 0, "sampler worker id")
	f.Int64SliceVar(&steps, "steps", []int64{0}, "step counts to evaluate epsilon at")
	f.Int64Var(&episodes, "episodes", 100, "number of episodes to list weight syncs for")
	f.StringVar(&logdir, "logdir", "", "log directory (default args.logdir)")
	f.StringVar(&format, "format", runconfig.FormatYAML, "output format: yaml or json")
	return cmd
}
