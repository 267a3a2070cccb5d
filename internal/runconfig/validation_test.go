// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"errors"
	"strings"
	"testing"

	"github.com/ManuGH/runcfg/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `model_params:
  model: SimpleNet
args:
  expdir: exp
  logdir: logs
`

func findIssue(issues []validate.Error, field string) (validate.Error, bool) {
	for _, e := range issues {
		if e.Field == field {
			return e, true
		}
	}
	return validate.Error{}, false
}

func fields(issues []validate.Error) []string {
	out := make([]string, 0, len(issues))
	for _, e := range issues {
		out = append(out, e.Field)
	}
	return out
}

func processString(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Process("test.yml", []byte(src), opts)
	require.NoError(t, err)
	return res
}

func TestInvalidTypesFixture(t *testing.T) {
	res := processFixture(t, "invalid-types.yml", Options{})
	require.False(t, res.Valid())

	tests := []struct {
		field string
		line  int
	}{
		{"stages.stage1.data_params.batch_size", 10},
		{"stages.stage1.data_params.num_workers", 11},
		{"stages.stage1.optimizer_params.lr", 16},
		{"stages.stage1.scheduler_params.milestones", 19},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			e, ok := findIssue(res.Errors, tt.field)
			require.True(t, ok, "no error for %s in %v", tt.field, fields(res.Errors))
			assert.Equal(t, tt.line, e.Line)
			assert.Equal(t, validate.SeverityError, e.Severity)
		})
	}

	batch, _ := findIssue(res.Errors, "stages.stage1.data_params.batch_size")
	assert.Contains(t, batch.Message, "cannot unmarshal")

	err := res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors(), len(res.Errors))
}

func TestUnknownKeysStrictAndLenient(t *testing.T) {
	want := []string{"monitoring", "stages.optimiser_params", "stages.stage1.extra_block"}

	lenient := processFixture(t, "invalid-unknown-key.yml", Options{})
	assert.True(t, lenient.Valid(), "errors: %v", lenient.Errors)
	assert.ElementsMatch(t, want, fields(lenient.Warnings))

	strict := processFixture(t, "invalid-unknown-key.yml", Options{Strict: true})
	assert.False(t, strict.Valid())
	assert.ElementsMatch(t, want, fields(strict.Errors))

	typo, _ := findIssue(strict.Errors, "stages.optimiser_params")
	assert.Contains(t, typo.Message, "unknown shared block")
	assert.Equal(t, 9, typo.Line)
}

func TestMissingRequiredFixture(t *testing.T) {
	res := processFixture(t, "missing-required.yml", Options{})
	assert.False(t, res.Valid())
	got := fields(res.Errors)
	assert.Contains(t, got, "model_params.model")
	assert.Contains(t, got, "args.expdir")
	assert.Contains(t, got, "stages")
	assert.NotContains(t, got, "args.logdir")
}

func TestMissingSections(t *testing.T) {
	res := processString(t, "sampler_params: {}\n", Options{})
	got := fields(res.Errors)
	assert.ElementsMatch(t, []string{KeyModelParams, KeyArgs, KeyStages}, got)
}

func TestAnchorHolderKeysAreIgnored(t *testing.T) {
	src := baseConfig + `_shared: &shared {num_epochs: 1}
x-more: &more {batch_size: 2}
stages:
  stage1:
    state_params: *shared
    data_params: *more
`
	res := processString(t, src, Options{Strict: true})
	assert.True(t, res.Valid(), "errors: %v", res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestStageMustBeMapping(t *testing.T) {
	res := processString(t, baseConfig+"stages:\n  stage1: 3\n  stage2:\n    data_params: [1]\n", Options{})
	got := fields(res.Errors)
	assert.Contains(t, got, "stages.stage1")
	assert.Contains(t, got, "stages.stage2.data_params")
}

func TestNullStageInheritsDefaults(t *testing.T) {
	res := processString(t, baseConfig+"stages:\n  data_params: {batch_size: 4}\n  stage1:\n", Options{})
	require.True(t, res.Valid(), "errors: %v", res.Errors)
	s, _ := res.Run.Stage("stage1")
	assert.Equal(t, 4, *s.Data.BatchSize)
}

func TestValueRules(t *testing.T) {
	tests := []struct {
		name  string
		stage string
		field string
	}{
		{"batch size zero", "data_params: {batch_size: 0}", "stages.s.data_params.batch_size"},
		{"negative workers", "data_params: {num_workers: -2}", "stages.s.data_params.num_workers"},
		{"zero epochs", "state_params: {num_epochs: 0}", "stages.s.state_params.num_epochs"},
		{"negative lr", "optimizer_params: {optimizer: Adam, lr: -0.1}", "stages.s.optimizer_params.lr"},
		{"negative weight decay", "optimizer_params: {optimizer: Adam, weight_decay: -1}", "stages.s.optimizer_params.weight_decay"},
		{"zero gamma", "scheduler_params: {scheduler: StepLR, gamma: 0}", "stages.s.scheduler_params.gamma"},
		{"non-positive milestone", "scheduler_params: {scheduler: MultiStepLR, milestones: [0, 2]}", "stages.s.scheduler_params.milestones"},
		{"repeated milestone", "scheduler_params: {scheduler: MultiStepLR, milestones: [2, 2]}", "stages.s.scheduler_params.milestones"},
		{"missing callback type", "callbacks_params: {loss: {input_key: x}}", "stages.s.callbacks_params.loss.callback"},
		{"empty callback type", "callbacks_params: {loss: {callback: \"\"}}", "stages.s.callbacks_params.loss.callback"},
		{"callback entry scalar", "callbacks_params: {loss: LossCallback}", "stages.s.callbacks_params.loss"},
		{"wrong arg kind", "callbacks_params: {acc: {callback: AccuracyCallback, accuracy_args: [1, two]}}", "stages.s.callbacks_params.acc.accuracy_args"},
		{"string arg given int", "callbacks_params: {saver: {callback: CheckpointCallback, resume: 3}}", "stages.s.callbacks_params.saver.resume"},
		{"fractional batch size", "data_params: {batch_size: 1.5}", "stages.s.data_params.batch_size"},
		{"fractional epochs", "state_params: {num_epochs: 2.7}", "stages.s.state_params.num_epochs"},
		{"fractional milestones", "scheduler_params: {scheduler: MultiStepLR, milestones: [1.9, 2.2]}", "stages.s.scheduler_params.milestones"},
		{"quoted batch size", "data_params: {batch_size: \"4\"}", "stages.s.data_params.batch_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := baseConfig + "stages:\n  s:\n    " + tt.stage + "\n"
			res := processString(t, src, Options{})
			_, ok := findIssue(res.Errors, tt.field)
			assert.True(t, ok, "want error on %s, got %v", tt.field, res.Errors)
		})
	}
}

func TestFlowMappingTypeErrorsNameTheKey(t *testing.T) {
	src := baseConfig + "stages:\n  s:\n    data_params: {batch_size: 2, num_workers: many}\n"
	res := processString(t, src, Options{})

	_, blamed := findIssue(res.Errors, "stages.s.data_params.batch_size")
	assert.False(t, blamed, "batch_size is valid, got %v", res.Errors)

	e, ok := findIssue(res.Errors, "stages.s.data_params.num_workers")
	require.True(t, ok, "errors: %v", res.Errors)
	assert.Equal(t, 8, e.Line)
	assert.Equal(t, strings.Index("    data_params: {batch_size: 2, num_workers: many}", "many")+1, e.Column)
	assert.Contains(t, e.Message, "cannot unmarshal")
}

func TestFractionalIntsAreNotTruncated(t *testing.T) {
	src := baseConfig + "stages:\n  s:\n    data_params: {batch_size: 1.5}\n    scheduler_params: {scheduler: MultiStepLR, milestones: [3, 1.9]}\n"
	res := processString(t, src, Options{})
	require.False(t, res.Valid())

	batch, ok := findIssue(res.Errors, "stages.s.data_params.batch_size")
	require.True(t, ok)
	assert.Contains(t, batch.Message, "!!float `1.5`")

	ms, ok := findIssue(res.Errors, "stages.s.scheduler_params.milestones")
	require.True(t, ok)
	assert.Contains(t, ms.Message, "`1.9`")
	assert.Equal(t, 9, ms.Line)
}

func TestCatalogNames(t *testing.T) {
	src := baseConfig + `stages:
  criterion_params: {criterion: MysteryLoss}
  optimizer_params: {optimizer: Adam}
  callbacks_params:
    custom: {callback: MyCallback}
    saver: {callback: CheckpointCallback, keep_last: 2}
  s1: {}
  s2: {}
`
	lenient := processString(t, src, Options{})
	assert.True(t, lenient.Valid(), "errors: %v", lenient.Errors)
	w := fields(lenient.Warnings)
	assert.Contains(t, w, "stages.s1.criterion_params.criterion")
	assert.Contains(t, w, "stages.s1.callbacks_params.custom.callback")
	assert.Contains(t, w, "stages.s1.callbacks_params.saver.keep_last")
	// shared block findings are reported once, not per stage
	assert.Len(t, lenient.Warnings, 3)

	strict := processString(t, src, Options{StrictCatalog: true})
	e := fields(strict.Errors)
	assert.Contains(t, e, "stages.s1.criterion_params.criterion")
	assert.Contains(t, e, "stages.s1.callbacks_params.custom.callback")
	// unknown arguments stay warnings
	assert.Contains(t, fields(strict.Warnings), "stages.s1.callbacks_params.saver.keep_last")
}

func TestCatalogExtension(t *testing.T) {
	extra, err := ParseCatalog([]byte(`
criteria:
  MysteryLoss: {}
callbacks:
  MyCallback:
    metrics: [mystery]
    args:
      level: int
`))
	require.NoError(t, err)
	cat := MustDefaultCatalog().Extend(extra)

	src := baseConfig + `stages:
  criterion_params: {criterion: MysteryLoss}
  state_params: {main_metric: mystery_score}
  callbacks_params:
    custom: {callback: MyCallback, level: high}
  s1: {}
`
	res := processString(t, src, Options{StrictCatalog: true, Catalog: cat})
	assert.Equal(t, []string{"stages.s1.callbacks_params.custom.level"}, fields(res.Errors))
	assert.Empty(t, res.Warnings)

	// the embedded catalog is unchanged
	_, ok := MustDefaultCatalog().Criteria["MysteryLoss"]
	assert.False(t, ok)
}

func TestMainMetricWarning(t *testing.T) {
	tests := []struct {
		name      string
		stage     string
		wantWarns bool
	}{
		{"loss needs nothing", "state_params: {main_metric: loss}", false},
		{"no producer", "state_params: {main_metric: accuracy01}\n    callbacks_params: {loss: {callback: LossCallback}}", true},
		{"producer present", "state_params: {main_metric: accuracy01}\n    callbacks_params: {acc: {callback: AccuracyCallback}}", false},
		{"prefix override", "state_params: {main_metric: top_acc01}\n    callbacks_params: {acc: {callback: AccuracyCallback, prefix: top_acc}}", false},
		{"unknown callback may produce it", "state_params: {main_metric: custom}\n    callbacks_params: {c: {callback: Custom}}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := processString(t, baseConfig+"stages:\n  s:\n    "+tt.stage+"\n", Options{})
			_, ok := findIssue(res.Warnings, "stages.s.state_params.main_metric")
			assert.Equal(t, tt.wantWarns, ok, "warnings: %v", res.Warnings)
		})
	}
}

func TestArgKindMatches(t *testing.T) {
	tests := []struct {
		kind  ArgKind
		value string
		want  bool
	}{
		{KindString, "abc", true},
		{KindString, "3", false},
		{KindString, `"3"`, true},
		{KindInt, "3", true},
		{KindInt, "3.5", false},
		{KindFloat, "3", true},
		{KindFloat, "3.5", true},
		{KindFloat, "x", false},
		{KindBool, "true", true},
		{KindBool, "False", true},
		{KindBool, "yes", true},
		{KindBool, "off", true},
		{KindBool, `"yes"`, false},
		{KindBool, "1", false},
		{KindList, "[1, a]", true},
		{KindList, "{a: 1}", false},
		{KindListInt, "[1, 2]", true},
		{KindListInt, "[1, 2.5]", false},
		{KindListFloat, "[1, 2.5]", true},
		{KindMap, "{a: 1}", true},
		{KindMap, "[a]", false},
		{KindAny, "[a]", true},
		{KindInt, "null", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.value, func(t *testing.T) {
			n := mustNode(t, "v: "+tt.value)
			_, v := mappingValue(n, "v")
			assert.Equal(t, tt.want, tt.kind.Matches(v))
		})
	}
}

func TestEmbeddedCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)
	for _, name := range []string{"LossCallback", "OptimizerCallback", "AccuracyCallback", "SchedulerCallback", "CheckpointCallback", "PrecisionCallback", "OneCycleLR", "EarlyStoppingCallback"} {
		_, ok := cat.Callbacks[name]
		assert.True(t, ok, name)
	}
	assert.Contains(t, cat.Names("optimizers"), "Adam")
	assert.Nil(t, cat.Names("nope"))
	assert.Equal(t, cat.Fingerprint(), MustDefaultCatalog().Fingerprint())
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	_, err := ParseCatalog([]byte("callbacks:\n  X:\n    args:\n      a: integer\n"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown kind"))

	_, err = ParseCatalog([]byte("losses: {}\n"))
	assert.Error(t, err)

	_, err = ParseCatalog(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}
