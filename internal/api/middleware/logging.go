// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/runcfg/internal/log"
)

// Logging writes one access log line per request and attaches a request
// scoped logger to the context.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.WithComponentFromContext(r.Context(), "api")
		ctx := logger.WithContext(r.Context())

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))

		ev := logger.Info()
		if sw.code() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str(log.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("route", routeLabel(r)).
			Int("status", sw.code()).
			Int("bytes", sw.bytes).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}
