// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/runcfg/internal/log"
	"github.com/rs/zerolog"
)

// StartupConfig lists what `runcfg serve` depends on.
type StartupConfig struct {
	ListenAddr   string
	WatchFile    string
	HistoryPath  string
	CatalogExtra string
}

// PerformStartupChecks validates the environment before the server starts.
func PerformStartupChecks(_ context.Context, cfg StartupConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks").Msg("running pre-flight checks")

	if err := checkListenAddr(logger, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.WatchFile != "" {
		if err := checkFileReadable(cfg.WatchFile); err != nil {
			return fmt.Errorf("run config %s: %w", cfg.WatchFile, err)
		}
	}
	if cfg.CatalogExtra != "" {
		if err := checkFileReadable(cfg.CatalogExtra); err != nil {
			return fmt.Errorf("catalog %s: %w", cfg.CatalogExtra, err)
		}
	}
	if cfg.HistoryPath != "" {
		if err := checkDirWritable(filepath.Dir(cfg.HistoryPath)); err != nil {
			return fmt.Errorf("history directory check failed: %w", err)
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Debug().Str(log.FieldListenAddr, addr).Msg("listen address is valid")
	return nil
}

func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(probe)
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return err
	}
	return f.Close()
}
