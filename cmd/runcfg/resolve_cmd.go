// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/runcfg/internal/fsutil"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/spf13/cobra"
)

func (a *app) resolveCmd() *cobra.Command {
	var stage, format, output string
	cmd := &cobra.Command{
		Use:   "resolve FILE",
		Short: "Print the resolved run config",
		Long: `Resolve expands anchors and merge keys, merges the shared stage blocks into
every stage and prints the result without anchors or aliases. Invalid
configs are reported like validate and nothing is written.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadValid(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			run := res.Run
			if stage != "" {
				run, err = run.Select(stage)
				if err != nil {
					return &exitError{code: exitFailed, err: fmt.Errorf("%w (stages: %v)", err, res.Run.StageNames())}
				}
			}
			out, err := run.Encode(format)
			if errors.Is(err, runconfig.ErrUnsupportedFormat) {
				return usageError(err)
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = a.stdout.Write(out)
				return err
			}
			if err := fsutil.WriteFileAtomic(cmd.Context(), output, out, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "wrote %s\n", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&stage, "stage", "", "print only this stage")
	f.StringVar(&format, "format", runconfig.FormatYAML, "output format: yaml or json")
	f.StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// loadValid loads path and prints its issues. An invalid config returns
// an already reported failure.
func (a *app) loadValid(ctx context.Context, path string) (*runconfig.Result, error) {
	loader, err := a.loader()
	if err != nil {
		return nil, err
	}
	res, err := loader.Load(ctx, path)
	if err != nil {
		return nil, &exitError{code: exitFailed, err: err}
	}
	printIssues(a.stderr, res.Source, res.Warnings)
	if !res.Valid() {
		printIssues(a.stderr, res.Source, res.Errors)
		fmt.Fprintf(a.stderr, "✗ %s is invalid (%d errors)\n", res.Source, len(res.Errors))
		return nil, failed()
	}
	return res, nil
}
