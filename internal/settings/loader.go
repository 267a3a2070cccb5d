// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package settings

import (
	"fmt"
	"os"
	"path/filepath"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/validate"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPath names the variable consulted when no settings path is given.
const EnvPath = "RUNCFG_SETTINGS"

// Loader loads settings from an optional file plus the environment.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a loader. An empty path falls back to $RUNCFG_SETTINGS;
// when both are empty only defaults and the environment apply.
func NewLoader(path, version string) *Loader {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	return &Loader{path: path, version: version}
}

// Load returns validated settings.
func (l *Loader) Load() (Settings, error) {
	logger := xglog.WithComponent("settings")
	s := Defaults()

	if l.path != "" {
		if err := l.loadFile(&s); err != nil {
			return Settings{}, err
		}
		s.Source = l.path
	}

	envReader{logger: logger}.apply(&s)

	if err := Validate(s); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}

	logger.Debug().
		Str(xglog.FieldEvent, "settings.loaded").
		Str(xglog.FieldPath, s.Source).
		Str("version", l.version).
		Msg("tool settings loaded")
	return s, nil
}

func (l *Loader) loadFile(s *Settings) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
		return fmt.Errorf("settings: load %q: %w", l.path, err)
	}

	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	}
	if err := k.UnmarshalWithConf("", s, conf); err != nil {
		return fmt.Errorf("settings: parse %q: %w", l.path, err)
	}
	return nil
}

// Validate checks settings values.
func Validate(s Settings) error {
	v := validate.New()

	if !validate.LogLevel(s.LogLevel).IsValid() {
		v.AddError("logLevel", "must be one of debug, info, warn, error", s.LogLevel)
	}
	if !validate.LogFormat(s.LogFormat).IsValid() {
		v.AddError("logFormat", "must be json or console", s.LogFormat)
	}
	v.Range("workers", s.Workers, 1, 64)
	v.Range("redis.db", s.Redis.DB, 0, 15)
	if s.Redis.Addr != "" {
		v.NotEmpty("redis.prefix", s.Redis.Prefix)
	}
	v.ListenAddr("api.listenAddr", s.API.ListenAddr)
	v.NonNegative("api.rateLimit", s.API.RateLimit)
	if s.Watch.Debounce <= 0 {
		v.AddError("watch.debounce", "must be positive", s.Watch.Debounce.String())
	}
	if s.History.Path != "" {
		v.WritableDirectory("history.path", filepath.Dir(s.History.Path), false)
	}
	if s.Catalog.Extra != "" {
		if _, err := runconfig.LoadCatalog(s.Catalog.Extra); err != nil {
			v.AddError("catalog.extra", err.Error(), s.Catalog.Extra)
		}
	}

	return v.Err()
}

// LoaderOptions builds run config loader options from the settings,
// extending the embedded catalog with catalog.extra.
func (s Settings) LoaderOptions() (runconfig.Options, error) {
	opts := runconfig.Options{Strict: s.Strict, StrictCatalog: s.StrictCatalog}
	cat, err := runconfig.DefaultCatalog()
	if err != nil {
		return opts, err
	}
	if s.Catalog.Extra != "" {
		extra, err := runconfig.LoadCatalog(s.Catalog.Extra)
		if err != nil {
			return opts, fmt.Errorf("catalog.extra: %w", err)
		}
		cat = cat.Extend(extra)
	}
	opts.Catalog = cat
	return opts, nil
}
