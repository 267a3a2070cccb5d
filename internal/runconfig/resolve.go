// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"
	"strings"

	"github.com/ManuGH/runcfg/internal/validate"
	"gopkg.in/yaml.v3"
)

// isAnchorHolder reports whether a top-level key only exists to carry
// anchors for the rest of the document.
func isAnchorHolder(key string) bool {
	return strings.HasPrefix(key, "_") || strings.HasPrefix(key, "x-")
}

// Resolve expands doc and merges the shared stage defaults into every
// named stage. Structural problems (missing sections, unknown keys, type
// mismatches) are recorded in v; the returned error is reserved for
// documents that cannot be expanded at all. When strict is set unknown
// keys are errors instead of warnings.
func Resolve(doc *Document, strict bool, v *validate.Validator) (*Run, error) {
	root, err := Expand(doc)
	if err != nil {
		return nil, err
	}
	return resolveExpanded(root, strict, v), nil
}

func resolveExpanded(root *yaml.Node, strict bool, v *validate.Validator) *Run {
	run := &Run{}
	var modelNode, argsNode, stagesNode, samplerNode *yaml.Node

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, val := root.Content[i], root.Content[i+1]
		switch k.Value {
		case KeyModelParams:
			modelNode = val
		case KeyArgs:
			argsNode = val
		case KeyStages:
			stagesNode = val
		case KeySamplerParams:
			samplerNode = val
		default:
			if isAnchorHolder(k.Value) {
				continue
			}
			v.Report(strict, k.Value, "unknown top-level key", nil, k.Line, k.Column)
		}
	}

	requireSection(v, root, KeyModelParams, modelNode)
	decodeBlock(KeyModelParams, modelNode, &run.Model, v)
	requireSection(v, root, KeyArgs, argsNode)
	decodeBlock(KeyArgs, argsNode, &run.Args, v)

	if samplerNode != nil && !isNull(samplerNode) {
		run.Sampler = decodeSampler(samplerNode, strict, v)
	}

	requireSection(v, root, KeyStages, stagesNode)
	resolvedStages := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if stagesNode != nil && !isNull(stagesNode) {
		if stagesNode.Kind != yaml.MappingNode {
			v.AddErrorAt(KeyStages, fmt.Sprintf("must be a mapping, got %s", kindName(stagesNode.Kind)), nil, stagesNode.Line, stagesNode.Column)
		} else {
			resolvedStages.Line, resolvedStages.Column = stagesNode.Line, stagesNode.Column
			run.Stages = resolveStages(stagesNode, strict, v, resolvedStages)
			if len(run.Stages) == 0 {
				v.AddErrorAt(KeyStages, "at least one stage is required", nil, stagesNode.Line, stagesNode.Column)
			}
		}
	}

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: root.Line, Column: root.Column}
	if modelNode != nil {
		doc.Content = append(doc.Content, scalarNode(KeyModelParams), modelNode)
	}
	if argsNode != nil {
		doc.Content = append(doc.Content, scalarNode(KeyArgs), argsNode)
	}
	if samplerNode != nil && !isNull(samplerNode) {
		doc.Content = append(doc.Content, scalarNode(KeySamplerParams), samplerNode)
	}
	doc.Content = append(doc.Content, scalarNode(KeyStages), resolvedStages)
	run.node = doc
	return run
}

func requireSection(v *validate.Validator, root *yaml.Node, key string, n *yaml.Node) {
	if n == nil {
		v.AddErrorAt(key, key+" section is required", nil, root.Line, root.Column)
		return
	}
	if isNull(n) {
		v.AddErrorAt(key, key+" section is required", nil, n.Line, n.Column)
	}
}

// resolveStages splits stages into the shared defaults and the named stage
// blocks, merges each stage over the defaults and appends the merged
// mapping to out.
func resolveStages(stages *yaml.Node, strict bool, v *validate.Validator, out *yaml.Node) []Stage {
	shared := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	type named struct {
		key   *yaml.Node
		block *yaml.Node
	}
	var blocks []named

	for i := 0; i+1 < len(stages.Content); i += 2 {
		k, val := stages.Content[i], stages.Content[i+1]
		path := KeyStages + "." + k.Value
		switch {
		case isSharedBlock(k.Value):
			if !isNull(val) && val.Kind != yaml.MappingNode {
				v.AddErrorAt(path, fmt.Sprintf("must be a mapping, got %s", kindName(val.Kind)), nil, val.Line, val.Column)
				continue
			}
			shared.Content = append(shared.Content, k, val)
		case strings.HasSuffix(k.Value, "_params"):
			v.Report(strict, path, fmt.Sprintf("unknown shared block (known: %s)", strings.Join(SharedBlocks, ", ")), nil, k.Line, k.Column)
		default:
			if !isNull(val) && val.Kind != yaml.MappingNode {
				v.AddErrorAt(path, fmt.Sprintf("stage must be a mapping, got %s", kindName(val.Kind)), nil, val.Line, val.Column)
				continue
			}
			blocks = append(blocks, named{key: k, block: val})
		}
	}

	result := make([]Stage, 0, len(blocks))
	for _, b := range blocks {
		name := b.key.Value
		path := KeyStages + "." + name

		overlay := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: b.key.Line, Column: b.key.Column}
		if b.block.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(b.block.Content); i += 2 {
				k, val := b.block.Content[i], b.block.Content[i+1]
				if !isSharedBlock(k.Value) {
					v.Report(strict, path+"."+k.Value, "unknown key in stage", nil, k.Line, k.Column)
					continue
				}
				if !isNull(val) && val.Kind != yaml.MappingNode {
					v.AddErrorAt(path+"."+k.Value, fmt.Sprintf("must be a mapping, got %s", kindName(val.Kind)), nil, val.Line, val.Column)
					continue
				}
				overlay.Content = append(overlay.Content, k, val)
			}
		}

		merged := deepMerge(shared, overlay)
		merged.Line, merged.Column = b.key.Line, b.key.Column
		out.Content = append(out.Content, cloneNode(b.key), merged)
		result = append(result, decodeStage(name, b.key.Line, merged, v))
	}
	return result
}

func decodeStage(name string, line int, merged *yaml.Node, v *validate.Validator) Stage {
	s := Stage{Name: name, Line: line, node: merged}
	path := KeyStages + "." + name

	for i := 0; i+1 < len(merged.Content); i += 2 {
		key, val := merged.Content[i].Value, merged.Content[i+1]
		if isNull(val) {
			continue
		}
		blockPath := path + "." + key
		switch key {
		case BlockData:
			s.Data = &DataParams{}
			decodeBlock(blockPath, val, s.Data, v)
		case BlockState:
			s.State = &StateParams{}
			decodeBlock(blockPath, val, s.State, v)
		case BlockCriterion:
			s.Criterion = &CriterionParams{}
			decodeBlock(blockPath, val, s.Criterion, v)
		case BlockOptimizer:
			s.Optimizer = &OptimizerParams{}
			decodeBlock(blockPath, val, s.Optimizer, v)
		case BlockScheduler:
			s.Scheduler = &SchedulerParams{}
			decodeBlock(blockPath, val, s.Scheduler, v)
		case BlockCallbacks:
			s.Callbacks = decodeCallbacks(blockPath, val, v)
		}
	}
	return s
}

func decodeCallbacks(path string, n *yaml.Node, v *validate.Validator) []Callback {
	var out []Callback
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]
		cbPath := path + "." + k.Value
		if isNull(val) {
			continue
		}
		if val.Kind != yaml.MappingNode {
			v.AddErrorAt(cbPath, fmt.Sprintf("callback entry must be a mapping, got %s", kindName(val.Kind)), nil, val.Line, val.Column)
			continue
		}
		cb := Callback{Name: k.Value, Line: k.Line, Column: k.Column}
		for j := 0; j+1 < len(val.Content); j += 2 {
			ak, av := val.Content[j], val.Content[j+1]
			if ak.Value == "callback" {
				if av.Kind == yaml.ScalarNode && !isNull(av) {
					cb.Type = av.Value
				} else if !isNull(av) {
					v.AddErrorAt(cbPath+".callback", fmt.Sprintf("must be a string, got %s", kindName(av.Kind)), nil, av.Line, av.Column)
				}
				continue
			}
			cb.Args = append(cb.Args, Arg{Key: ak.Value, Value: decodeValue(av), Node: av})
		}
		out = append(out, cb)
	}
	return out
}
