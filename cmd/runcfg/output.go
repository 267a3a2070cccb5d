// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"io"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/validate"
)

// printIssues writes one compiler style line per issue:
// file:line:col: severity: field: message
func printIssues(w io.Writer, source string, issues []validate.Error) {
	for _, is := range issues {
		pos := source
		if is.Line > 0 {
			pos = fmt.Sprintf("%s:%d:%d", source, is.Line, is.Column)
		}
		fmt.Fprintf(w, "%s: %s: %s: %s\n", pos, is.Severity, is.Field, is.Message)
	}
}

// report prints the verdict for one loaded file and returns whether it is
// valid.
func report(stdout, stderr io.Writer, res *runconfig.Result) bool {
	printIssues(stderr, res.Source, res.Errors)
	printIssues(stderr, res.Source, res.Warnings)
	if !res.Valid() {
		fmt.Fprintf(stderr, "✗ %s is invalid (%d errors, %d warnings)\n", res.Source, len(res.Errors), len(res.Warnings))
		return false
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(stdout, "✓ %s is valid (%d warnings)\n", res.Source, len(res.Warnings))
	} else {
		fmt.Fprintf(stdout, "✓ %s is valid\n", res.Source)
	}
	return true
}
