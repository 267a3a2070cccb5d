// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Select returns a run restricted to the named stage.
func (r *Run) Select(stage string) (*Run, error) {
	s, ok := r.Stage(stage)
	if !ok {
		return nil, fmt.Errorf("stage %q (have %s): %w", stage, strings.Join(r.StageNames(), ", "), ErrUnknownStage)
	}

	doc := shallowCopy(r.node)
	for i := 0; i+1 < len(r.node.Content); i += 2 {
		k, v := r.node.Content[i], r.node.Content[i+1]
		if k.Value == KeyStages {
			stages := shallowCopy(v)
			stages.Content = []*yaml.Node{scalarNode(s.Name), s.node}
			v = stages
		}
		doc.Content = append(doc.Content, k, v)
	}

	out := *r
	out.Stages = []Stage{*s}
	out.node = doc
	return &out, nil
}

// Encode renders the resolved document in format (yaml or json).
func (r *Run) Encode(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatYAML, "yml":
		return EncodeYAML(r.node)
	case FormatJSON:
		return EncodeJSON(r.node)
	default:
		return nil, fmt.Errorf("%w: %q (use yaml or json)", ErrUnsupportedFormat, format)
	}
}

// EncodeYAML renders n with two-space indentation.
func EncodeYAML(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders n as indented JSON keeping mapping key order.
func EncodeJSON(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// NodeJSON renders n as compact JSON keeping mapping key order.
func NodeJSON(n *yaml.Node) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return fmt.Errorf("encode json key: %w", err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		return writeScalarJSON(buf, n)
	}
}

func writeScalarJSON(buf *bytes.Buffer, n *yaml.Node) error {
	var v any
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return nil
	case "!!bool", "!!int":
		if err := n.Decode(&v); err != nil {
			v = n.Value
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			v = n.Value
		} else {
			v = f
		}
	default:
		v = n.Value
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json value at line %d: %w", n.Line, err)
	}
	buf.Write(data)
	return nil
}
