// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/metrics"
	"github.com/ManuGH/runcfg/internal/validate"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCacheSize is the number of results a Loader keeps.
const DefaultCacheSize = 128

// Options control how strictly a run config is checked.
type Options struct {
	// Strict turns unknown keys into errors.
	Strict bool
	// StrictCatalog turns unknown criterion/optimizer/scheduler/callback
	// names into errors.
	StrictCatalog bool
	// Catalog overrides the embedded catalog.
	Catalog *Catalog
}

func (o Options) cacheKey(digest string) string {
	return fmt.Sprintf("%s|strict=%t|catalog=%t:%s", digest, o.Strict, o.StrictCatalog, o.Catalog.Fingerprint())
}

// Result is the outcome of loading one run config.
type Result struct {
	Source   string           `json:"source"`
	Digest   string           `json:"digest"`
	Run      *Run             `json:"-"`
	Anchors  *AnchorReport    `json:"anchors,omitempty"`
	Errors   []validate.Error `json:"errors"`
	Warnings []validate.Error `json:"warnings"`
	LoadedAt time.Time        `json:"loadedAt"`
}

// Valid reports whether no errors were found.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid result and an error wrapping
// ErrInvalidConfig and the accumulated validate.ValidationError otherwise.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	v := validate.New()
	for _, e := range r.Errors {
		v.AddErrorAt(e.Field, e.Message, e.Value, e.Line, e.Column)
	}
	return fmt.Errorf("%s: %w: %w", r.Source, ErrInvalidConfig, v.Err())
}

// StageCount returns the number of resolved stages.
func (r *Result) StageCount() int {
	if r.Run == nil {
		return 0
	}
	return len(r.Run.Stages)
}

// Model returns the model name or "".
func (r *Result) Model() string {
	if r.Run == nil {
		return ""
	}
	return r.Run.Model.Model
}

// Process runs the whole pipeline on data. Errors that prevent building a
// document tree (syntax, undefined or recursive aliases, expansion limit)
// are returned as error; everything else ends up in the Result.
func Process(source string, data []byte, opts Options) (*Result, error) {
	doc, err := Parse(source, data)
	if err != nil {
		return nil, err
	}

	v := validate.New()
	anchors := Anchors(doc)
	for _, is := range anchors.Issues {
		if is.Severity == validate.SeverityError {
			v.AddErrorAt(is.Field, is.Message, is.Value, is.Line, is.Column)
		} else {
			v.AddWarningAt(is.Field, is.Message, is.Value, is.Line, is.Column)
		}
	}

	run, err := Resolve(doc, opts.Strict, v)
	if err != nil {
		return nil, err
	}

	cat := opts.Catalog
	if cat == nil {
		if cat, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	Validate(run, cat, opts.StrictCatalog, v)

	return &Result{
		Source:   source,
		Digest:   doc.Digest,
		Run:      run,
		Anchors:  anchors,
		Errors:   dedupe(v.Errors()),
		Warnings: dedupe(v.Warnings()),
		LoadedAt: time.Now(),
	}, nil
}

// dedupe drops repeated findings on the same source position. Issues in
// shared blocks are found once per stage that inherits them.
func dedupe(in []validate.Error) []validate.Error {
	out := make([]validate.Error, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, e := range in {
		if e.Line > 0 {
			key := fmt.Sprintf("%d:%d:%s", e.Line, e.Column, e.Message)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, e)
	}
	return out
}

// Loader loads run configs and caches results by content digest.
type Loader struct {
	opts   Options
	cache  *lru.Cache[string, *Result]
	logger zerolog.Logger
}

// NewLoader creates a loader keeping up to cacheSize results; a
// non-positive size uses DefaultCacheSize.
func NewLoader(opts Options, cacheSize int) (*Loader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if opts.Catalog == nil {
		cat, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		opts.Catalog = cat
	}
	cache, err := lru.New[string, *Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Loader{
		opts:   opts,
		cache:  cache,
		logger: log.WithComponent("runconfig"),
	}, nil
}

// Options returns the options the loader applies.
func (l *Loader) Options() Options {
	return l.opts
}

// IsConfigFile reports whether path has a run config extension.
func IsConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads and processes the run config at path.
func (l *Loader) Load(ctx context.Context, path string) (*Result, error) {
	if !IsConfigFile(path) {
		return nil, fmt.Errorf("%s: %w (expected .yaml or .yml)", path, ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	return l.LoadBytes(ctx, path, data)
}

// LoadBytes processes data read from source. Cached results are returned
// as is, with Source set to the requested name.
func (l *Loader) LoadBytes(ctx context.Context, source string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := log.WithContext(ctx, l.logger).With().Str(log.FieldPath, source).Logger()

	digest := Digest(data)
	key := l.opts.cacheKey(digest)
	if cached, ok := l.cache.Get(key); ok {
		metrics.IncCacheHit()
		res := *cached
		res.Source = source
		logger.Debug().
			Str(log.FieldEvent, "runconfig.cache_hit").
			Str(log.FieldDigest, digest[:12]).
			Msg("run config served from cache")
		return &res, nil
	}
	metrics.IncCacheMiss()

	start := time.Now()
	res, err := Process(source, data, l.opts)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLoad("error", elapsed, 1, 0)
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "runconfig.load_failed").
			Bool("undefined_alias", errors.Is(err, ErrUndefinedAlias)).
			Msg("run config could not be parsed")
		return nil, err
	}

	outcome := "valid"
	if !res.Valid() {
		outcome = "invalid"
	}
	metrics.RecordLoad(outcome, elapsed, len(res.Errors), len(res.Warnings))
	l.cache.Add(key, res)

	logger.Info().
		Str(log.FieldEvent, "runconfig.load").
		Str(log.FieldDigest, digest[:12]).
		Str(log.FieldModel, res.Model()).
		Int("stages", res.StageCount()).
		Int(log.FieldErrors, len(res.Errors)).
		Int(log.FieldWarnings, len(res.Warnings)).
		Dur("duration", elapsed).
		Msg("run config loaded")
	return res, nil
}

// Purge drops every cached result.
func (l *Loader) Purge() {
	l.cache.Purge()
}
