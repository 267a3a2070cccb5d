// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package watch keeps the latest valid resolution of a run config file and
// reloads it when the file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/metrics"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// ErrNotLoaded is returned by State before the first valid load.
var ErrNotLoaded = errors.New("watch: no valid run config loaded")

// Option configures a Holder.
type Option func(*Holder)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(h *Holder) {
		if d > 0 {
			h.debounce = d
		}
	}
}

// Failure describes a rejected reload. Result is nil when the file could
// not be read or parsed.
type Failure struct {
	Result *runconfig.Result
	Err    error
}

// Holder holds the newest valid Result for one file. An invalid reload
// keeps the previous result and records the failure.
type Holder struct {
	mu       sync.RWMutex
	current  *runconfig.Result
	loadedAt time.Time
	lastErr  error

	loader   *runconfig.Loader
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	listenMu  sync.RWMutex
	listeners []chan<- *runconfig.Result
	failures  []chan<- Failure

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	watcher   *fsnotify.Watcher
}

// NewHolder creates a holder for path. Nothing is loaded until Reload or
// Start is called.
func NewHolder(loader *runconfig.Loader, path string, opts ...Option) *Holder {
	h := &Holder{
		loader:   loader,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   xglog.WithComponent("watch").With().Str(xglog.FieldPath, path).Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Path returns the watched file.
func (h *Holder) Path() string { return h.path }

// Current returns the newest valid result or nil.
func (h *Holder) Current() *runconfig.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// State returns when the current result was loaded and the error of the
// newest reload attempt, if it failed.
func (h *Holder) State() (time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil && h.lastErr == nil {
		return time.Time{}, ErrNotLoaded
	}
	return h.loadedAt, h.lastErr
}

// Reload loads the file now. On failure the previous result stays current
// and the error is returned.
func (h *Holder) Reload(ctx context.Context) error {
	res, err := h.loader.Load(ctx, h.path)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, runconfig.ErrInvalidConfig) {
			outcome = "invalid"
		}
		h.mu.Lock()
		h.lastErr = err
		h.mu.Unlock()
		metrics.RecordReload(outcome, 0, time.Time{})
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "watch.reload_failed").
			Msg("run config reload failed, keeping previous")
		h.notifyFailure(Failure{Result: res, Err: err})
		return fmt.Errorf("reload %s: %w", h.path, err)
	}

	now := time.Now()
	h.mu.Lock()
	old := h.current
	h.current = res
	h.loadedAt = now
	h.lastErr = nil
	h.mu.Unlock()

	metrics.RecordReload("success", res.StageCount(), now)
	h.logChanges(old, res)
	h.notifyListeners(res)
	return nil
}

// Start performs the first load and watches the file until ctx is done or
// Stop is called. A failed first load is logged and retried on the next
// change. The parent directory is watched so atomic renames are seen.
func (h *Holder) Start(ctx context.Context) error {
	var err error
	h.startOnce.Do(func() {
		var w *fsnotify.Watcher
		w, err = fsnotify.NewWatcher()
		if err != nil {
			err = fmt.Errorf("create watcher: %w", err)
			return
		}
		if err = w.Add(filepath.Dir(h.path)); err != nil {
			_ = w.Close()
			err = fmt.Errorf("watch %s: %w", filepath.Dir(h.path), err)
			return
		}
		h.watcher = w

		_ = h.Reload(ctx)

		h.logger.Info().
			Str(xglog.FieldEvent, "watch.started").
			Dur("debounce", h.debounce).
			Msg("watching run config")
		go h.loop(ctx)
	})
	return err
}

func (h *Holder) loop(ctx context.Context) {
	defer close(h.done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "watch.stopped").Msg("run config watcher stopped")
			return
		case <-h.stop:
			h.logger.Info().Str(xglog.FieldEvent, "watch.stopped").Msg("run config watcher stopped")
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != h.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "watch.file_changed").
				Str("op", ev.Op.String()).
				Msg("run config changed")
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = h.Reload(ctx)

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(xglog.FieldEvent, "watch.error").Msg("file watcher error")
		}
	}
}

// Stop ends the watch loop and releases the watcher. It is safe to call
// more than once and before Start.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.watcher == nil {
			return
		}
		<-h.done
		_ = h.watcher.Close()
	})
}

// RegisterListener subscribes ch to successful reloads. Sends never block;
// a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- *runconfig.Result) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// RegisterFailureListener subscribes ch to rejected reloads with the same
// non-blocking sends as RegisterListener.
func (h *Holder) RegisterFailureListener(ch chan<- Failure) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.failures = append(h.failures, ch)
}

func (h *Holder) notifyFailure(f Failure) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.failures {
		select {
		case ch <- f:
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "watch.listener_skip").
				Msg("skipped notifying failure listener (channel full)")
		}
	}
}

func (h *Holder) notifyListeners(res *runconfig.Result) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- res:
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "watch.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, res *runconfig.Result) {
	if old == nil {
		h.logger.Info().
			Str(xglog.FieldEvent, "watch.loaded").
			Str(xglog.FieldModel, res.Model()).
			Int("stages", res.StageCount()).
			Msg("run config loaded")
		return
	}
	if old.Digest == res.Digest {
		return
	}
	changes := runconfig.Diff(old.Run, res.Run)
	paths := make([]string, 0, 3)
	for i := 0; i < len(changes) && i < 3; i++ {
		paths = append(paths, changes[i].Path)
	}
	h.logger.Info().
		Str(xglog.FieldEvent, "watch.reload_success").
		Int("changes", len(changes)).
		Strs("first_changes", paths).
		Msg("run config reloaded")
}
