// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package settings loads the runcfg tool settings: defaults, then an
// optional YAML file, then RUNCFG_* environment overrides.
package settings

import (
	"time"

	"github.com/ManuGH/runcfg/internal/publish"
	"github.com/ManuGH/runcfg/internal/watch"
)

// Settings configure the runcfg tool itself, not the training run.
type Settings struct {
	LogLevel      string        `koanf:"logLevel"`
	LogFormat     string        `koanf:"logFormat"`
	Strict        bool          `koanf:"strict"`
	StrictCatalog bool          `koanf:"strictCatalog"`
	Workers       int           `koanf:"workers"`
	Catalog       CatalogConfig `koanf:"catalog"`
	History       HistoryConfig `koanf:"history"`
	Redis         RedisConfig   `koanf:"redis"`
	API           APIConfig     `koanf:"api"`
	Watch         WatchConfig   `koanf:"watch"`

	// Source is the settings file that was read, if any.
	Source string `koanf:"-"`
}

// CatalogConfig points at an optional catalog extension file.
type CatalogConfig struct {
	Extra string `koanf:"extra"`
}

// HistoryConfig enables the SQLite history when Path is set.
type HistoryConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig enables publish/fetch when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// APIConfig configures `runcfg serve`.
type APIConfig struct {
	ListenAddr string `koanf:"listenAddr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `koanf:"rateLimit"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		LogLevel:  "info",
		LogFormat: "json",
		Workers:   4,
		Redis: RedisConfig{
			Prefix: publish.DefaultPrefix,
		},
		API: APIConfig{
			ListenAddr: ":8080",
			RateLimit:  120,
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
	}
}

// PublishConfig converts the Redis settings.
func (s Settings) PublishConfig() publish.Config {
	return publish.Config{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
		Prefix:   s.Redis.Prefix,
	}
}
