// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigure_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "runcfg-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("runconfig")
	l.Debug().Str(FieldEvent, "test.event").Msg("debug line")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if entry["service"] != "runcfg-test" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["version"] != "v0.0.1" {
		t.Errorf("version = %v", entry["version"])
	}
	if entry[FieldComponent] != "runconfig" {
		t.Errorf("component = %v", entry[FieldComponent])
	}
	if entry[FieldEvent] != "test.event" {
		t.Errorf("event = %v", entry[FieldEvent])
	}
}

func TestConfigure_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := Base()
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("global level = %v", zerolog.GlobalLevel())
	}
}

func TestConfigure_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Format: "console", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := Derive(func(c *zerolog.Context) { *c = c.Str(FieldStage, "stage1") })
	l.Info().Msg("console line")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got json %q", out)
	}
	if !strings.Contains(out, "console line") || !strings.Contains(out, "stage1") {
		t.Errorf("unexpected console output %q", out)
	}
}
