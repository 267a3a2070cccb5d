// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package history records validation outcomes in a local SQLite database so
// operators can see when a run config last changed and whether it passed.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/metrics"
	"github.com/ManuGH/runcfg/internal/persistence/sqlite"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const schemaVersion = 1

// DefaultLimit is used by Recent for non-positive limits.
const DefaultLimit = 20

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("history: not found")

// Entry is one recorded validation outcome.
type Entry struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Digest    string    `json:"digest"`
	Model     string    `json:"model"`
	Stages    int       `json:"stages"`
	Valid     bool      `json:"valid"`
	Errors    int       `json:"errors"`
	Warnings  int       `json:"warnings"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the SQLite-backed history.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (and migrates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		logger: xglog.WithComponent("history"),
		now:    time.Now,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS validations (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		digest TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		stages INTEGER NOT NULL DEFAULT 0,
		valid BOOLEAN NOT NULL,
		errors INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_validations_digest ON validations(digest);
	CREATE INDEX IF NOT EXISTS idx_validations_created ON validations(created_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Record stores the outcome of one load.
func (s *Store) Record(ctx context.Context, res *runconfig.Result) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		Path:      res.Source,
		Digest:    res.Digest,
		Model:     res.Model(),
		Stages:    res.StageCount(),
		Valid:     res.Valid(),
		Errors:    len(res.Errors),
		Warnings:  len(res.Warnings),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO validations (id, path, digest, model, stages, valid, errors, warnings, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, e.Digest, e.Model, e.Stages, e.Valid, e.Errors, e.Warnings, e.CreatedAt.UnixMilli())
	metrics.IncHistoryRecord(err == nil)
	if err != nil {
		return Entry{}, fmt.Errorf("history: record %s: %w", e.Path, err)
	}

	s.logger.Debug().
		Str(xglog.FieldEvent, "history.recorded").
		Str(xglog.FieldPath, e.Path).
		Str(xglog.FieldDigest, shortDigest(e.Digest)).
		Bool("valid", e.Valid).
		Msg("validation outcome recorded")
	return e, nil
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return s.query(ctx, `
	SELECT id, path, digest, model, stages, valid, errors, warnings, created_at_ms
	FROM validations ORDER BY created_at_ms DESC, rowid DESC LIMIT ?`, limit)
}

// ByDigest returns every entry for a content digest, newest first. It
// returns ErrNotFound when the digest was never recorded.
func (s *Store) ByDigest(ctx context.Context, digest string) ([]Entry, error) {
	entries, err := s.query(ctx, `
	SELECT id, path, digest, model, stages, valid, errors, warnings, created_at_ms
	FROM validations WHERE digest = ? ORDER BY created_at_ms DESC, rowid DESC`, digest)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: digest %s", ErrNotFound, shortDigest(digest))
	}
	return entries, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.ID, &e.Path, &e.Digest, &e.Model, &e.Stages, &e.Valid, &e.Errors, &e.Warnings, &ms); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify runs a quick integrity check.
func (s *Store) Verify(ctx context.Context) error {
	issues, err := sqlite.VerifyIntegrity(ctx, s.db, false)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("history: integrity check failed: %v", issues)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
