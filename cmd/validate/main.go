// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// validate checks a single run config with strict key checking. It is the
// small CI-friendly sibling of `runcfg validate`.
//
// Usage:
//
//	validate -f run.yml
//	validate --file run.yml --strict-catalog
//
// Exit codes:
//   - 0: run config is valid
//   - 1: run config is invalid (parse or validation error)
//   - 2: usage error (missing required flag)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		file          string
		showVersion   bool
		lenient       bool
		strictCatalog bool
	)
	fs.StringVar(&file, "file", "", "path to YAML run config")
	fs.StringVar(&file, "f", "", "path to YAML run config (shorthand)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.BoolVar(&lenient, "lenient", false, "report unknown keys as warnings")
	fs.BoolVar(&strictCatalog, "strict-catalog", false, "reject unknown criterion/optimizer/scheduler/callback names")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if file == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  validate -f run.yml")
		fmt.Fprintln(stderr, "  validate --file run.yml")
		return 2
	}

	loader, err := runconfig.NewLoader(runconfig.Options{
		Strict:        !lenient,
		StrictCatalog: strictCatalog,
	}, 0)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	res, err := loader.Load(context.Background(), file)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n", file)
		fmt.Fprintf(stderr, "  %v\n", err)
		return 1
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w.Error())
	}
	if !res.Valid() {
		fmt.Fprintf(stderr, "Validation error in %s:\n", file)
		for _, e := range res.Errors {
			fmt.Fprintf(stderr, "  %s\n", e.Error())
		}
		return 1
	}

	fmt.Fprintf(stdout, "✓ %s is valid\n", file)
	return 0
}
