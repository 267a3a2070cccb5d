// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"io"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/watch"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Revalidate a run config whenever it changes",
		Long: `Watch loads FILE, then reloads it after every change until interrupted.
An invalid edit is reported on stderr and the last valid config stays
current.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loader, err := a.loader()
			if err != nil {
				return err
			}
			h := watch.NewHolder(loader, args[0], watch.WithDebounce(a.settings.Watch.Debounce))
			updates := make(chan *runconfig.Result, 1)
			failures := make(chan watch.Failure, 1)
			h.RegisterListener(updates)
			h.RegisterFailureListener(failures)
			if err := h.Start(ctx); err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			defer h.Stop()

			if res := h.Current(); res != nil {
				report(a.stdout, a.stderr, res)
			} else if _, err := h.State(); err != nil {
				fmt.Fprintf(a.stderr, "✗ %s: %v\n", args[0], err)
			}
			// drop the notification of the initial load
			select {
			case <-updates:
			default:
			}
			select {
			case <-failures:
			default:
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case res := <-updates:
					report(a.stdout, a.stderr, res)
				case f := <-failures:
					reportFailure(a.stdout, a.stderr, args[0], f)
				}
			}
		},
	}
}

func reportFailure(stdout, stderr io.Writer, path string, f watch.Failure) {
	if f.Result != nil {
		report(stdout, stderr, f.Result)
	} else {
		fmt.Fprintf(stderr, "✗ %s: %v\n", path, f.Err)
	}
	fmt.Fprintln(stderr, "  keeping the last valid config")
}
