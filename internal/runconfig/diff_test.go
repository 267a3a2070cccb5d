// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	a := processString(t, baseConfig+`stages:
  optimizer_params: {optimizer: Adam, lr: 0.001}
  callbacks_params:
    saver: {callback: CheckpointCallback}
  stage1: {}
`, Options{})
	b := processString(t, baseConfig+`stages:
  optimizer_params: {optimizer: Adam, lr: 0.01}
  callbacks_params:
    early_stop: {callback: EarlyStoppingCallback, patience: 3}
  stage1: {}
`, Options{})

	got := Diff(a.Run, b.Run)
	want := []Change{
		{Path: "stages.stage1.callbacks_params.early_stop.callback", Kind: ChangeAdded, New: "EarlyStoppingCallback"},
		{Path: "stages.stage1.callbacks_params.early_stop.patience", Kind: ChangeAdded, New: 3},
		{Path: "stages.stage1.callbacks_params.saver.callback", Kind: ChangeRemoved, Old: "CheckpointCallback"},
		{Path: "stages.stage1.optimizer_params.lr", Kind: ChangeChanged, Old: 0.001, New: 0.01},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	require.NoError(t, PrintChanges(&buf, got))
	assert.Contains(t, buf.String(), "~ stages.stage1.optimizer_params.lr: 0.001 -> 0.01")
	assert.Contains(t, buf.String(), "+ stages.stage1.callbacks_params.early_stop.patience: 3")
}

func TestDiffIdentical(t *testing.T) {
	a := processFixture(t, "callbacks.yml", Options{})
	b := processFixture(t, "callbacks.yml", Options{})
	assert.Empty(t, Diff(a.Run, b.Run))

	var buf bytes.Buffer
	require.NoError(t, PrintChanges(&buf, nil))
	assert.Equal(t, "no differences\n", buf.String())
}

func TestFlattenSequencesAreLeaves(t *testing.T) {
	res := processFixture(t, "callbacks.yml", Options{})
	flat := Flatten(res.Run)
	assert.Equal(t, []any{10}, flat["stages.stage1.scheduler_params.milestones"])
	assert.Equal(t, 3, flat["stages.stage1.state_params.num_epochs"])
	assert.Equal(t, "SimpleNet", flat["model_params.model"])
}
