// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"io"

	"github.com/ManuGH/runcfg/internal/history"
	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/settings"
	"github.com/ManuGH/runcfg/internal/version"
	"github.com/spf13/cobra"
)

// app is the state shared by all subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	settingsPath  string
	logLevel      string
	logFormat     string
	strict        bool
	strictCatalog bool
	catalogExtra  string

	settings settings.Settings
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "runcfg",
		Short: "Validate and resolve staged training run configs",
		Long: `runcfg reads YAML run configs for a staged deep-learning trainer, expands
anchors and merge keys, merges the shared stage blocks into every stage and
checks the result against the catalog of known criteria, optimizers,
schedulers and callbacks.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.settingsPath, "settings", "", "tool settings file (default $"+settings.EnvPath+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: json or console")
	pf.BoolVar(&a.strict, "strict", false, "treat unknown keys as errors")
	pf.BoolVar(&a.strictCatalog, "strict-catalog", false, "treat unknown criterion/optimizer/scheduler/callback names as errors")
	pf.StringVar(&a.catalogExtra, "catalog", "", "extra catalog file merged over the embedded one")

	root.AddCommand(
		a.validateCmd(),
		a.resolveCmd(),
		a.anchorsCmd(),
		a.stagesCmd(),
		a.diffCmd(),
		a.samplerCmd(),
		a.watchCmd(),
		a.serveCmd(),
		a.publishCmd(),
		a.fetchCmd(),
		a.historyCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads the tool settings, applies flag overrides and configures
// logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	s, err := settings.NewLoader(a.settingsPath, version.Version).Load()
	if err != nil {
		return &exitError{code: exitFailed, err: err}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		s.LogFormat = a.logFormat
	}
	if flags.Changed("strict") {
		s.Strict = a.strict
	}
	if flags.Changed("strict-catalog") {
		s.StrictCatalog = a.strictCatalog
	}
	if flags.Changed("catalog") {
		s.Catalog.Extra = a.catalogExtra
	}
	if err := settings.Validate(s); err != nil {
		return usageError(err)
	}
	a.settings = s

	xglog.Configure(xglog.Config{
		Level:   s.LogLevel,
		Format:  s.LogFormat,
		Output:  a.stderr,
		Version: version.Version,
	})
	cmd.SetContext(xglog.ContextWithCommand(cmd.Context(), cmd.Name()))
	return nil
}

func (a *app) loader() (*runconfig.Loader, error) {
	opts, err := a.settings.LoaderOptions()
	if err != nil {
		return nil, err
	}
	return runconfig.NewLoader(opts, runconfig.DefaultCacheSize)
}

// openHistory returns nil when history.path is not configured.
func (a *app) openHistory() (*history.Store, error) {
	if a.settings.History.Path == "" {
		return nil, nil
	}
	return history.Open(a.settings.History.Path)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError(err)
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
