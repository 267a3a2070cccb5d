// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"degraded is ready", []Checker{&mockChecker{"a", StatusHealthy}, &mockChecker{"b", StatusDegraded}}, true, StatusDegraded},
		{"unhealthy wins", []Checker{&mockChecker{"a", StatusUnhealthy}, &mockChecker{"b", StatusDegraded}}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("dev")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestServeReady(t *testing.T) {
	m := NewManager("dev")
	loaded := time.Time{}
	m.RegisterChecker(NewLoadedChecker(func() (time.Time, error) { return loaded, nil }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	loaded = time.Now()
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Equal(t, StatusHealthy, body.Checks["run_config"].Status)
}

func TestServeHealthAlways200(t *testing.T) {
	m := NewManager("dev")
	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
}

func TestLoadedChecker(t *testing.T) {
	failed := errors.New("line 3: bad")

	res := NewLoadedChecker(func() (time.Time, error) { return time.Time{}, failed }).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, failed.Error(), res.Error)

	res = NewLoadedChecker(func() (time.Time, error) { return time.Now(), failed }).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yml")
	full := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	require.NoError(t, os.WriteFile(full, []byte("a: 1\n"), 0o600))

	tests := []struct {
		path string
		want Status
	}{
		{"", StatusHealthy},
		{full, StatusHealthy},
		{empty, StatusDegraded},
		{dir, StatusUnhealthy},
		{filepath.Join(dir, "missing.yml"), StatusUnhealthy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewFileChecker("file", tt.path).Check(context.Background()).Status, tt.path)
	}
}

func TestFuncChecker(t *testing.T) {
	ok := NewFuncChecker("redis", StatusDegraded, func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	down := NewFuncChecker("redis", StatusDegraded, func(context.Context) error { return errors.New("refused") })
	res := down.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "refused", res.Error)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	run := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(run, []byte("a: 1\n"), 0o600))

	ok := StartupConfig{ListenAddr: ":8080", WatchFile: run, HistoryPath: filepath.Join(dir, "h.sqlite")}
	assert.NoError(t, PerformStartupChecks(context.Background(), ok))

	bad := ok
	bad.ListenAddr = "localhost"
	assert.Error(t, PerformStartupChecks(context.Background(), bad))

	bad = ok
	bad.WatchFile = filepath.Join(dir, "nope.yml")
	assert.Error(t, PerformStartupChecks(context.Background(), bad))

	bad = ok
	bad.HistoryPath = filepath.Join(dir, "missing", "h.sqlite")
	assert.Error(t, PerformStartupChecks(context.Background(), bad))
}
