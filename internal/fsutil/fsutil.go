// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fsutil holds small filesystem helpers shared by the CLI and the
// watcher.
package fsutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/google/renameio/v2"
)

// ErrNotRegular is returned for paths that exist but are not regular files.
var ErrNotRegular = errors.New("not a regular file")

// WriteAtomic writes path through a pending file that is fsynced and
// renamed over the target only when write succeeds. Readers never see a
// partial file.
func WriteAtomic(ctx context.Context, path string, perm os.FileMode, write func(io.Writer) error) error {
	logger := xglog.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(perm))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(xglog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := write(pending); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(ctx, path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// IsRegularFile returns nil when path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return nil
}
