// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves run config validation and resolution over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ManuGH/runcfg/internal/api/middleware"
	"github.com/ManuGH/runcfg/internal/health"
	"github.com/ManuGH/runcfg/internal/history"
	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/watch"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// History is the subset of the history store the API uses.
type History interface {
	Record(ctx context.Context, res *runconfig.Result) (history.Entry, error)
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config configures the server.
type Config struct {
	ListenAddr string
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
}

// Deps are the collaborators of the server. Holder and History are
// optional.
type Deps struct {
	Loader  *runconfig.Loader
	Holder  *watch.Holder
	History History
	Health  *health.Manager
}

// Server is the runcfg HTTP server.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: xglog.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableLogging: true,
		EnableMetrics: true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RateLimit,
				WindowSize:   time.Minute,
			}))
		}
		r.Post("/validate", s.handleValidate)
		r.Post("/resolve", s.handleResolve)
		r.Get("/current", s.handleCurrent)
		r.Get("/history", s.handleHistory)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on the configured address and serves until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(xglog.FieldEvent, "api.listening").
			Str(xglog.FieldListenAddr, ln.Addr().String()).
			Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info().Str(xglog.FieldEvent, "api.shutdown").Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
