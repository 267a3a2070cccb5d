// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/runcfg/internal/history"
	"github.com/spf13/cobra"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		limit  int
		digest string
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded validation outcomes",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openHistory()
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			if store == nil {
				return usageError(errors.New("history.path is not configured (settings file or RUNCFG_HISTORY_PATH)"))
			}
			defer func() { _ = store.Close() }()

			if verify {
				if err := store.Verify(ctx); err != nil {
					return &exitError{code: exitFailed, err: err}
				}
				a.printf("history database ok\n")
				return nil
			}

			var entries []history.Entry
			if digest != "" {
				entries, err = store.ByDigest(ctx, digest)
			} else {
				entries, err = store.Recent(ctx, limit)
			}
			if errors.Is(err, history.ErrNotFound) {
				fmt.Fprintf(a.stderr, "no entries for digest %s\n", digest)
				return failed()
			}
			if err != nil {
				return &exitError{code: exitFailed, err: err}
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tRESULT\tERRORS\tWARNINGS\tDIGEST\tMODEL\tPATH")
			for _, e := range entries {
				verdict := "valid"
				if !e.Valid {
					verdict = "invalid"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), verdict, e.Errors, e.Warnings,
					shortDigest(e.Digest), e.Model, e.Path)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", history.DefaultLimit, "number of entries to list")
	f.StringVar(&digest, "digest", "", "list entries for this content digest")
	f.BoolVar(&verify, "verify", false, "run an integrity check on the database")
	return cmd
}
