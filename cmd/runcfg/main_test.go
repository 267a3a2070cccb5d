// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/version"
	"github.com/ManuGH/runcfg/internal/watch"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(name string) string {
	return filepath.Join("..", "..", "internal", "runconfig", "testdata", name)
}

// cleanEnv isolates a test from RUNCFG_* variables of the caller.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RUNCFG_SETTINGS", "RUNCFG_HISTORY_PATH", "RUNCFG_REDIS_ADDR",
		"RUNCFG_STRICT", "RUNCFG_STRICT_CATALOG", "RUNCFG_CATALOG_EXTRA",
	} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExitCodes(t *testing.T) {
	cleanEnv(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"valid", []string{"validate", fixture("experiment.yml")}, exitOK},
		{"several valid", []string{"validate", fixture("experiment.yml"), fixture("callbacks.yml"), fixture("multistage.yml")}, exitOK},
		{"invalid", []string{"validate", fixture("invalid-types.yml")}, exitFailed},
		{"one of many invalid", []string{"validate", fixture("experiment.yml"), fixture("missing-required.yml")}, exitFailed},
		{"missing file", []string{"validate", "does-not-exist.yml"}, exitFailed},
		{"undefined alias", []string{"validate", fixture("undefined-alias.yml")}, exitFailed},
		{"no args", []string{"validate"}, exitUsage},
		{"unknown command", []string{"frobnicate"}, exitUsage},
		{"unknown flag", []string{"validate", "--nope", fixture("experiment.yml")}, exitUsage},
		{"bad log level", []string{"--log-level", "loud", "validate", fixture("experiment.yml")}, exitUsage},
		{"bad format", []string{"resolve", "--format", "toml", fixture("experiment.yml")}, exitUsage},
		{"strict unknown key", []string{"--strict", "validate", fixture("invalid-unknown-key.yml")}, exitFailed},
		{"lenient unknown key", []string{"validate", fixture("invalid-unknown-key.yml")}, exitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, tt.want, code, "stderr: %s", stderr)
		})
	}
}

func TestValidateOutput(t *testing.T) {
	cleanEnv(t)
	code, stdout, _ := runCLI(t, "validate", fixture("experiment.yml"))
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "✓ "+fixture("experiment.yml")+" is valid")

	code, _, stderr := runCLI(t, "validate", fixture("invalid-types.yml"))
	require.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, fixture("invalid-types.yml")+":")
	assert.Contains(t, stderr, ": error: ")
	assert.Contains(t, stderr, "is invalid")
}

func TestValidateJSON(t *testing.T) {
	cleanEnv(t)
	code, stdout, _ := runCLI(t, "validate", "--json", fixture("experiment.yml"), fixture("invalid-types.yml"))
	require.Equal(t, exitFailed, code)

	var out []struct {
		Source string            `json:"source"`
		Valid  bool              `json:"valid"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 2)
	assert.True(t, out[0].Valid)
	assert.False(t, out[1].Valid)
	assert.NotEmpty(t, out[1].Errors)
}

func TestResolve(t *testing.T) {
	cleanEnv(t)
	code, stdout, stderr := runCLI(t, "resolve", "--stage", "finetune", fixture("multistage.yml"))
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "finetune:")
	assert.NotContains(t, stdout, "warmup:")
	assert.NotContains(t, stdout, "<<")

	code, _, stderr = runCLI(t, "resolve", "--stage", "nope", fixture("multistage.yml"))
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "warmup")
}

func TestResolveToFile(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "resolved.json")
	code, stdout, stderr := runCLI(t, "resolve", "--format", "json", "-o", out, fixture("callbacks.yml"))
	require.Equal(t, exitOK, code, stderr)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	assert.Contains(t, string(data), `"stages"`)
}

func TestResolveInvalidWritesNothing(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "resolved.yml")
	code, _, _ := runCLI(t, "resolve", "-o", out, fixture("invalid-types.yml"))
	assert.Equal(t, exitFailed, code)
	assert.NoFileExists(t, out)
}

func TestInspectCommands(t *testing.T) {
	cleanEnv(t)

	code, stdout, _ := runCLI(t, "anchors", fixture("callbacks.yml"))
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "&num_epochs")

	code, stdout, _ = runCLI(t, "stages", fixture("multistage.yml"))
	require.Equal(t, exitOK, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "warmup"))
	assert.True(t, strings.HasPrefix(lines[2], "finetune"))
	assert.Contains(t, lines[2], "Adam")

	code, stdout, _ = runCLI(t, "diff", fixture("callbacks.yml"), fixture("callbacks.yml"))
	require.Equal(t, exitOK, code)
	assert.Equal(t, "no differences\n", stdout)
}

func TestSamplerCommand(t *testing.T) {
	cleanEnv(t)
	code, stdout, stderr := runCLI(t, "sampler", "--id", "2", "--steps", "0,500", "--format", "json", fixture("sampler.yml"))
	require.Equal(t, exitOK, code, stderr)

	var plan struct {
		Seed       int64  `json:"seed"`
		Mode       string `json:"mode"`
		WeightsKey string `json:"weightsKey"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &plan))
	assert.Equal(t, int64(44), plan.Seed)
	assert.Equal(t, "train", plan.Mode)
	assert.Equal(t, "dqn_critic_weights", plan.WeightsKey)

	code, _, stderr = runCLI(t, "sampler", fixture("experiment.yml"))
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "sampler_params")

	for _, n := range []string{"-1", "1000001"} {
		code, _, stderr = runCLI(t, "sampler", "--episodes", n, fixture("sampler.yml"))
		assert.Equal(t, exitUsage, code, n)
		assert.Contains(t, stderr, "--episodes")
	}
}

func TestWatchReportsRejectedEdits(t *testing.T) {
	cleanEnv(t)
	res, err := runconfig.Process("run.yml", []byte("model_params: {}\n"), runconfig.Options{})
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	reportFailure(&stdout, &stderr, "run.yml", watch.Failure{Result: res, Err: res.Err()})
	assert.Contains(t, stderr.String(), "✗ run.yml is invalid")
	assert.Contains(t, stderr.String(), "keeping the last valid config")
	assert.Empty(t, stdout.String())

	stderr.Reset()
	reportFailure(&stdout, &stderr, "run.yml", watch.Failure{Err: runconfig.ErrUndefinedAlias})
	assert.Contains(t, stderr.String(), "✗ run.yml: ")
	assert.Contains(t, stderr.String(), "keeping the last valid config")
}

func TestHistoryCommand(t *testing.T) {
	cleanEnv(t)
	t.Setenv("RUNCFG_HISTORY_PATH", filepath.Join(t.TempDir(), "history.db"))

	code, _, _ := runCLI(t, "validate", fixture("experiment.yml"), fixture("invalid-types.yml"))
	require.Equal(t, exitFailed, code)

	code, stdout, stderr := runCLI(t, "history")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "experiment.yml")
	assert.Contains(t, stdout, "invalid-types.yml")
	assert.Contains(t, stdout, "invalid")

	code, stdout, _ = runCLI(t, "history", "--verify")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "ok")

	code, _, _ = runCLI(t, "history", "--digest", "0000")
	assert.Equal(t, exitFailed, code)
}

func TestHistoryRequiresPath(t *testing.T) {
	cleanEnv(t)
	code, _, stderr := runCLI(t, "history")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "history.path")
}

func TestPublishAndFetch(t *testing.T) {
	cleanEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("RUNCFG_REDIS_ADDR", mr.Addr())

	code, stdout, stderr := runCLI(t, "publish", fixture("callbacks.yml"))
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "runcfg_run_config")
	assert.True(t, mr.Exists("runcfg_run_config"))

	code, stdout, stderr = runCLI(t, "fetch", "--format", "json")
	require.Equal(t, exitOK, code, stderr)
	var msg struct {
		Source string          `json:"source"`
		Run    json.RawMessage `json:"run"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &msg))
	assert.Equal(t, fixture("callbacks.yml"), msg.Source)
	assert.Contains(t, string(msg.Run), `"model_params"`)

	code, stdout, _ = runCLI(t, "fetch", "--history", "5")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "callbacks.yml")

	code, _, _ = runCLI(t, "publish", fixture("invalid-types.yml"))
	assert.Equal(t, exitFailed, code)
}

func TestFetchSamplerUsesSamplerRedis(t *testing.T) {
	cleanEnv(t)
	mr := miniredis.RunT(t)
	_, err := mr.Lpush("trajectories", "t1")
	require.NoError(t, err)
	_, err = mr.Lpush("trajectories", "t2")
	require.NoError(t, err)
	require.NoError(t, mr.Set("dqn_critic_weights", "w"))

	src, err := os.ReadFile(fixture("sampler.yml"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sampler.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(src), "localhost:6379", mr.Addr(), 1)), 0o600))

	// settings carry no redis.addr; the sampler's own address is used
	code, stdout, stderr := runCLI(t, "fetch", "--sampler", path)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, mr.Addr())
	assert.Contains(t, stdout, "trajectories: 2")
	assert.Contains(t, stdout, "weights:      true (dqn_critic_weights)")
}

func TestPublishRequiresRedis(t *testing.T) {
	cleanEnv(t)
	code, _, stderr := runCLI(t, "publish", fixture("callbacks.yml"))
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "redis.addr")
}

func TestVersion(t *testing.T) {
	cleanEnv(t)
	code, stdout, _ := runCLI(t, "version")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, version.Version)
}
