// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import "gopkg.in/yaml.v3"

// Top-level keys of a run config.
const (
	KeyModelParams   = "model_params"
	KeyArgs          = "args"
	KeyStages        = "stages"
	KeySamplerParams = "sampler_params"
)

// Shared block keys, valid both under stages and inside a stage block.
const (
	BlockData      = "data_params"
	BlockState     = "state_params"
	BlockCriterion = "criterion_params"
	BlockOptimizer = "optimizer_params"
	BlockScheduler = "scheduler_params"
	BlockCallbacks = "callbacks_params"
)

// SharedBlocks lists the shared block keys in canonical order.
var SharedBlocks = []string{
	BlockData,
	BlockState,
	BlockCriterion,
	BlockOptimizer,
	BlockScheduler,
	BlockCallbacks,
}

func isSharedBlock(key string) bool {
	for _, b := range SharedBlocks {
		if b == key {
			return true
		}
	}
	return false
}

// Run is a fully resolved run config.
type Run struct {
	Model   ModelParams
	Args    Args
	Sampler *SamplerParams
	Stages  []Stage

	// node is the resolved document: model_params, args, optional
	// sampler_params and stages with every stage already merged.
	node *yaml.Node
}

// Node returns the resolved document tree.
func (r *Run) Node() *yaml.Node {
	return r.node
}

// Stage returns the resolved stage called name.
func (r *Run) Stage(name string) (*Stage, bool) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i], true
		}
	}
	return nil, false
}

// StageNames returns stage names in document order.
func (r *Run) StageNames() []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

type ModelParams struct {
	Model string         `yaml:"model"`
	Extra map[string]any `yaml:",inline"`
}

type Args struct {
	Expdir string         `yaml:"expdir"`
	Logdir string         `yaml:"logdir"`
	Extra  map[string]any `yaml:",inline"`
}

// Stage is one named stage after the shared blocks were merged in.
// Blocks absent from both the shared defaults and the stage are nil.
type Stage struct {
	Name      string
	Line      int
	Data      *DataParams
	State     *StateParams
	Criterion *CriterionParams
	Optimizer *OptimizerParams
	Scheduler *SchedulerParams
	Callbacks []Callback

	node *yaml.Node
}

// Node returns the merged stage mapping.
func (s *Stage) Node() *yaml.Node {
	return s.node
}

// Callback returns the callback registered under name.
func (s *Stage) Callback(name string) (*Callback, bool) {
	for i := range s.Callbacks {
		if s.Callbacks[i].Name == name {
			return &s.Callbacks[i], true
		}
	}
	return nil, false
}

type DataParams struct {
	BatchSize  *int           `yaml:"batch_size"`
	NumWorkers *int           `yaml:"num_workers"`
	Extra      map[string]any `yaml:",inline"`
}

type StateParams struct {
	NumEpochs      *int           `yaml:"num_epochs"`
	MainMetric     string         `yaml:"main_metric"`
	MinimizeMetric *bool          `yaml:"minimize_metric"`
	Extra          map[string]any `yaml:",inline"`
}

type CriterionParams struct {
	Criterion string         `yaml:"criterion"`
	Extra     map[string]any `yaml:",inline"`
}

type OptimizerParams struct {
	Optimizer   string         `yaml:"optimizer"`
	LR          *float64       `yaml:"lr"`
	WeightDecay *float64       `yaml:"weight_decay"`
	Extra       map[string]any `yaml:",inline"`
}

type SchedulerParams struct {
	Scheduler  string         `yaml:"scheduler"`
	Milestones []int          `yaml:"milestones"`
	Gamma      *float64       `yaml:"gamma"`
	Extra      map[string]any `yaml:",inline"`
}

// Callback is one entry of callbacks_params. Args keep document order.
type Callback struct {
	Name   string
	Type   string
	Args   []Arg
	Line   int
	Column int
}

// Arg returns the argument called key.
func (c *Callback) Arg(key string) (Arg, bool) {
	for _, a := range c.Args {
		if a.Key == key {
			return a, true
		}
	}
	return Arg{}, false
}

// Arg is a callback argument. Node is the expanded YAML value.
type Arg struct {
	Key   string
	Value any
	Node  *yaml.Node
}
