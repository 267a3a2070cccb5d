// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/spf13/cobra"
)

func (a *app) anchorsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "anchors FILE",
		Short: "List anchors and aliases and where each alias points",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			doc, err := runconfig.Parse(args[0], data)
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			rep := runconfig.Anchors(doc)
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				if err := rep.Print(a.stdout); err != nil {
					return err
				}
				printIssues(a.stderr, args[0], rep.Issues)
			}
			if rep.HasErrors() {
				return failed()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages FILE",
		Short: "Summarise the resolved stages",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadValid(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STAGE\tEPOCHS\tCRITERION\tOPTIMIZER\tLR\tSCHEDULER\tCALLBACKS")
			for _, s := range res.Run.Stages {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.Name, epochs(s), criterion(s), optimizer(s), lr(s), scheduler(s), callbacks(s))
			}
			return tw.Flush()
		},
	}
}

func (a *app) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff A B",
		Short: "Show the differences between two resolved run configs",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := a.loadValid(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			right, err := a.loadValid(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return runconfig.PrintChanges(a.stdout, runconfig.Diff(left.Run, right.Run))
		},
	}
}

func epochs(s runconfig.Stage) string {
	if s.State == nil || s.State.NumEpochs == nil {
		return "-"
	}
	return strconv.Itoa(*s.State.NumEpochs)
}

func criterion(s runconfig.Stage) string {
	if s.Criterion == nil || s.Criterion.Criterion == "" {
		return "-"
	}
	return s.Criterion.Criterion
}

func optimizer(s runconfig.Stage) string {
	if s.Optimizer == nil || s.Optimizer.Optimizer == "" {
		return "-"
	}
	return s.Optimizer.Optimizer
}

func lr(s runconfig.Stage) string {
	if s.Optimizer == nil || s.Optimizer.LR == nil {
		return "-"
	}
	return strconv.FormatFloat(*s.Optimizer.LR, 'g', -1, 64)
}

func scheduler(s runconfig.Stage) string {
	if s.Scheduler == nil || s.Scheduler.Scheduler == "" {
		return "-"
	}
	return s.Scheduler.Scheduler
}

func callbacks(s runconfig.Stage) string {
	if len(s.Callbacks) == 0 {
		return "-"
	}
	names := make([]string, len(s.Callbacks))
	for i, c := range s.Callbacks {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}
