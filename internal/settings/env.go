// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package settings

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// envReader reads RUNCFG_* variables and logs where each value came from.
// Invalid values are logged and ignored.
type envReader struct {
	logger zerolog.Logger
}

func (r envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r envReader) String(key string, dst *string) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	lower := strings.ToLower(key)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") {
		r.logger.Debug().Str("key", key).Str("source", "environment").Bool("sensitive", true).Msg("using environment variable")
	} else {
		r.logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	}
	*dst = v
}

func (r envReader) Int(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.logger.Warn().Str("key", key).Str("value", v).Int("kept", *dst).Msg("invalid integer in environment variable, ignoring")
		return
	}
	r.logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	*dst = i
}

func (r envReader) Bool(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		r.logger.Warn().Str("key", key).Str("value", v).Bool("kept", *dst).Msg("invalid boolean in environment variable, ignoring")
		return
	}
	r.logger.Debug().Str("key", key).Bool("value", *dst).Str("source", "environment").Msg("using environment variable")
}

func (r envReader) Duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.logger.Warn().Str("key", key).Str("value", v).Dur("kept", *dst).Msg("invalid duration in environment variable, ignoring")
		return
	}
	r.logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	*dst = d
}

func (r envReader) apply(s *Settings) {
	r.String("RUNCFG_LOG_LEVEL", &s.LogLevel)
	r.String("RUNCFG_LOG_FORMAT", &s.LogFormat)
	r.Bool("RUNCFG_STRICT", &s.Strict)
	r.Bool("RUNCFG_STRICT_CATALOG", &s.StrictCatalog)
	r.Int("RUNCFG_WORKERS", &s.Workers)
	r.String("RUNCFG_CATALOG_EXTRA", &s.Catalog.Extra)
	r.String("RUNCFG_HISTORY_PATH", &s.History.Path)
	r.String("RUNCFG_REDIS_ADDR", &s.Redis.Addr)
	r.String("RUNCFG_REDIS_PASSWORD", &s.Redis.Password)
	r.Int("RUNCFG_REDIS_DB", &s.Redis.DB)
	r.String("RUNCFG_REDIS_PREFIX", &s.Redis.Prefix)
	r.String("RUNCFG_LISTEN", &s.API.ListenAddr)
	r.Int("RUNCFG_RATE_LIMIT", &s.API.RateLimit)
	r.Duration("RUNCFG_DEBOUNCE", &s.Watch.Debounce)
}
