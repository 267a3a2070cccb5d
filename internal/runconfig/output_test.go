// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEncodeJSONKeepsKeyOrder(t *testing.T) {
	res := processFixture(t, "experiment.yml", Options{})
	out, err := res.Run.Encode(FormatJSON)
	require.NoError(t, err)

	assert.True(t, json.Valid(out))
	s := string(out)
	assert.Less(t, strings.Index(s, `"model_params"`), strings.Index(s, `"args"`))
	assert.Less(t, strings.Index(s, `"args"`), strings.Index(s, `"stages"`))
	assert.Less(t, strings.Index(s, `"saver"`), strings.Index(s, `"early_stop"`))
	assert.Contains(t, s, `"lr": 0.001`)
	assert.Contains(t, s, `"minimize_metric": false`)
	assert.Contains(t, s, `"precision_args": [`)
}

func TestEncodeYAMLRoundTrip(t *testing.T) {
	res := processFixture(t, "multistage.yml", Options{})
	out, err := res.Run.Encode("yaml")
	require.NoError(t, err)

	// resolved output has neither anchors nor merge keys
	assert.NotContains(t, string(out), "&")
	assert.NotContains(t, string(out), "<<")
	assert.False(t, bytes.HasPrefix(out, []byte("    ")))

	again, err := Process("resolved.yml", out, Options{Strict: true})
	require.NoError(t, err)
	require.True(t, again.Valid(), "errors: %v", again.Errors)
	assert.Empty(t, Diff(res.Run, again.Run))
}

func TestEncodeUnknownFormat(t *testing.T) {
	res := processFixture(t, "callbacks.yml", Options{})
	_, err := res.Run.Encode("toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSelectStage(t *testing.T) {
	res := processFixture(t, "multistage.yml", Options{})

	one, err := res.Run.Select("finetune")
	require.NoError(t, err)
	assert.Equal(t, []string{"finetune"}, one.StageNames())

	out, err := one.Encode(FormatYAML)
	require.NoError(t, err)
	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded["stages"], "finetune")
	assert.NotContains(t, decoded["stages"], "warmup")

	// the source run is unchanged
	assert.Len(t, res.Run.Stages, 2)

	_, err = res.Run.Select("nope")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestNodeJSONScalars(t *testing.T) {
	n := mustNode(t, "{s: text, q: '1', i: 3, f: 1.5, b: yes, t: true, n: ~, inf: .inf}")
	got, err := NodeJSON(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"text","q":"1","i":3,"f":1.5,"b":"yes","t":true,"n":null,"inf":".inf"}`, string(got))
}
