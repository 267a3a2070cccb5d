// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/runcfg/internal/validate"
	"gopkg.in/yaml.v3"
)

// metricLoss is the metric every trainer reports without extra callbacks.
const metricLoss = "loss"

// Validate checks the resolved run against the schema rules and the
// catalog. A nil catalog skips the catalog checks. With strictCatalog set
// unknown criterion, optimizer, scheduler and callback names are errors.
func Validate(run *Run, cat *Catalog, strictCatalog bool, v *validate.Validator) {
	if run == nil {
		return
	}
	root := run.node

	requireString(v, root, KeyModelParams, "model", run.Model.Model)
	requireString(v, root, KeyArgs, "expdir", run.Args.Expdir)
	requireString(v, root, KeyArgs, "logdir", run.Args.Logdir)

	if run.Sampler != nil {
		_, sn := mappingValue(root, KeySamplerParams)
		validateSampler(run.Sampler, sn, v)
	}

	for i := range run.Stages {
		validateStage(&run.Stages[i], cat, strictCatalog, v)
	}
}

func requireString(v *validate.Validator, root *yaml.Node, section, key, value string) {
	if strings.TrimSpace(value) != "" {
		return
	}
	_, sn := mappingValue(root, section)
	if sn == nil {
		// missing section was already reported while resolving
		return
	}
	line, col := sn.Line, sn.Column
	if kn, _ := mappingValue(sn, key); kn != nil {
		line, col = kn.Line, kn.Column
	}
	v.AddErrorAt(section+"."+key, key+" is required", value, line, col)
}

type stageChecker struct {
	stage *Stage
	v     *validate.Validator
}

func (c stageChecker) field(block, key string) string {
	if key == "" {
		return KeyStages + "." + c.stage.Name + "." + block
	}
	return KeyStages + "." + c.stage.Name + "." + block + "." + key
}

// pos returns the position of block.key inside the merged stage, falling
// back to the block and then the stage itself.
func (c stageChecker) pos(block, key string) (int, int) {
	_, bn := mappingValue(c.stage.node, block)
	if bn == nil {
		return c.stage.Line, 0
	}
	if key != "" {
		if _, vn := mappingValue(bn, key); vn != nil {
			return vn.Line, vn.Column
		}
	}
	return bn.Line, bn.Column
}

func (c stageChecker) errorf(block, key string, value any, format string, args ...any) {
	line, col := c.pos(block, key)
	c.v.AddErrorAt(c.field(block, key), fmt.Sprintf(format, args...), value, line, col)
}

func (c stageChecker) report(strict bool, block, key string, value any, format string, args ...any) {
	line, col := c.pos(block, key)
	c.v.Report(strict, c.field(block, key), fmt.Sprintf(format, args...), value, line, col)
}

func validateStage(s *Stage, cat *Catalog, strictCatalog bool, v *validate.Validator) {
	c := stageChecker{stage: s, v: v}

	if d := s.Data; d != nil {
		if d.BatchSize != nil && *d.BatchSize <= 0 {
			c.errorf(BlockData, "batch_size", *d.BatchSize, "must be positive, got %d", *d.BatchSize)
		}
		if d.NumWorkers != nil && *d.NumWorkers < 0 {
			c.errorf(BlockData, "num_workers", *d.NumWorkers, "must be non-negative, got %d", *d.NumWorkers)
		}
	}

	if st := s.State; st != nil {
		if st.NumEpochs != nil && *st.NumEpochs <= 0 {
			c.errorf(BlockState, "num_epochs", *st.NumEpochs, "must be positive, got %d", *st.NumEpochs)
		}
	}

	if o := s.Optimizer; o != nil {
		if o.LR != nil && *o.LR <= 0 {
			c.errorf(BlockOptimizer, "lr", *o.LR, "must be positive, got %g", *o.LR)
		}
		if o.WeightDecay != nil && *o.WeightDecay < 0 {
			c.errorf(BlockOptimizer, "weight_decay", *o.WeightDecay, "must be non-negative, got %g", *o.WeightDecay)
		}
	}

	if sc := s.Scheduler; sc != nil {
		if sc.Gamma != nil && *sc.Gamma <= 0 {
			c.errorf(BlockScheduler, "gamma", *sc.Gamma, "must be positive, got %g", *sc.Gamma)
		}
		for i, m := range sc.Milestones {
			if m <= 0 {
				c.errorf(BlockScheduler, "milestones", sc.Milestones, "milestone %d must be positive, got %d", i, m)
				break
			}
			if i > 0 && m <= sc.Milestones[i-1] {
				c.errorf(BlockScheduler, "milestones", sc.Milestones, "milestones must be strictly increasing, got %d after %d", m, sc.Milestones[i-1])
				break
			}
		}
	}

	for i := range s.Callbacks {
		cb := &s.Callbacks[i]
		if strings.TrimSpace(cb.Type) == "" {
			v.AddErrorAt(c.field(BlockCallbacks, cb.Name+".callback"), "callback type is required", nil, cb.Line, cb.Column)
		}
	}

	if cat != nil {
		checkCatalog(c, cat, strictCatalog)
	}
	checkMainMetric(c, cat)
}

func checkCatalog(c stageChecker, cat *Catalog, strict bool) {
	s := c.stage
	if s.Criterion != nil && s.Criterion.Criterion != "" {
		if _, ok := cat.Criteria[s.Criterion.Criterion]; !ok {
			c.report(strict, BlockCriterion, "criterion", s.Criterion.Criterion, "unknown criterion %q", s.Criterion.Criterion)
		}
	}
	if s.Optimizer != nil && s.Optimizer.Optimizer != "" {
		if _, ok := cat.Optimizers[s.Optimizer.Optimizer]; !ok {
			c.report(strict, BlockOptimizer, "optimizer", s.Optimizer.Optimizer, "unknown optimizer %q", s.Optimizer.Optimizer)
		}
	}
	if s.Scheduler != nil && s.Scheduler.Scheduler != "" {
		if _, ok := cat.Schedulers[s.Scheduler.Scheduler]; !ok {
			c.report(strict, BlockScheduler, "scheduler", s.Scheduler.Scheduler, "unknown scheduler %q", s.Scheduler.Scheduler)
		}
	}

	for i := range s.Callbacks {
		cb := &s.Callbacks[i]
		if cb.Type == "" {
			continue
		}
		entry, ok := cat.Callbacks[cb.Type]
		if !ok {
			line, col := cb.Line, cb.Column
			c.v.Report(strict, c.field(BlockCallbacks, cb.Name+".callback"), fmt.Sprintf("unknown callback %q", cb.Type), cb.Type, line, col)
			continue
		}
		for _, a := range cb.Args {
			field := c.field(BlockCallbacks, cb.Name+"."+a.Key)
			kind, known := entry.Args[a.Key]
			if !known {
				if !entry.OpenArgs {
					c.v.AddWarningAt(field, fmt.Sprintf("unknown argument for %s (known: %s)", cb.Type, argNames(entry)), nil, a.Node.Line, a.Node.Column)
				}
				continue
			}
			if !kind.Matches(a.Node) {
				c.v.AddErrorAt(field, fmt.Sprintf("%s argument must be %s", cb.Type, kind), a.Value, a.Node.Line, a.Node.Column)
			}
		}
	}
}

func argNames(e CatalogEntry) string {
	if len(e.Args) == 0 {
		return "none"
	}
	names := make([]string, 0, len(e.Args))
	for n := range e.Args {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// checkMainMetric warns when state_params.main_metric names a metric no
// callback of the stage produces.
func checkMainMetric(c stageChecker, cat *Catalog) {
	s := c.stage
	if cat == nil || s.State == nil || s.State.MainMetric == "" || s.State.MainMetric == metricLoss {
		return
	}
	metric := s.State.MainMetric
	for _, p := range producedMetrics(s, cat) {
		if strings.HasPrefix(metric, p) {
			return
		}
	}
	line, col := c.pos(BlockState, "main_metric")
	c.v.AddWarningAt(c.field(BlockState, "main_metric"),
		fmt.Sprintf("no callback produces metric %q", metric), metric, line, col)
}

// producedMetrics lists metric name prefixes reported by the stage's
// callbacks. A prefix argument overrides the catalog default.
func producedMetrics(s *Stage, cat *Catalog) []string {
	var out []string
	for i := range s.Callbacks {
		cb := &s.Callbacks[i]
		entry, ok := cat.Callbacks[cb.Type]
		if !ok {
			// unknown callbacks may produce anything
			out = append(out, "")
			continue
		}
		if a, ok := cb.Arg("prefix"); ok {
			if p, ok := a.Value.(string); ok && p != "" {
				out = append(out, p)
				continue
			}
		}
		out = append(out, entry.Metrics...)
	}
	return out
}
