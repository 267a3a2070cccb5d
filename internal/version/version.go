// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package version carries build metadata set via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag of the build.
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("runcfg %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
