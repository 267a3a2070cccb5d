// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import "gopkg.in/yaml.v3"

// deepMerge overlays over onto base and returns a new tree.
//
// Mappings merge key by key, recursively. Scalars and sequences in over
// replace the inherited value. An explicit null in over removes the
// inherited key. Inherited keys keep their position; keys only present in
// over are appended in their order.
func deepMerge(base, over *yaml.Node) *yaml.Node {
	if over == nil {
		return cloneNode(base)
	}
	if base == nil || base.Kind != yaml.MappingNode || over.Kind != yaml.MappingNode {
		return cloneNode(over)
	}

	out := shallowCopy(base)
	out.Content = make([]*yaml.Node, 0, len(base.Content)+len(over.Content))

	overIdx := make(map[string]int, len(over.Content)/2)
	for i := 0; i+1 < len(over.Content); i += 2 {
		overIdx[over.Content[i].Value] = i
	}

	for i := 0; i+1 < len(base.Content); i += 2 {
		k, v := base.Content[i], base.Content[i+1]
		j, ok := overIdx[k.Value]
		if !ok {
			out.Content = append(out.Content, cloneNode(k), cloneNode(v))
			continue
		}
		ov := over.Content[j+1]
		if isNull(ov) {
			continue
		}
		out.Content = append(out.Content, cloneNode(k), deepMerge(v, ov))
	}

	baseKeys := make(map[string]bool, len(base.Content)/2)
	for i := 0; i+1 < len(base.Content); i += 2 {
		baseKeys[base.Content[i].Value] = true
	}
	for i := 0; i+1 < len(over.Content); i += 2 {
		k, v := over.Content[i], over.Content[i+1]
		if baseKeys[k.Value] || isNull(v) {
			continue
		}
		out.Content = append(out.Content, cloneNode(k), cloneNode(v))
	}
	return out
}

func isNull(n *yaml.Node) bool {
	return n != nil && n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// mappingValue returns the value stored under key in mapping m.
func mappingValue(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i], m.Content[i+1]
		}
	}
	return nil, nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
