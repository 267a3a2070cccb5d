// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// maxExpandedNodes caps the size of an expanded document.
const maxExpandedNodes = 100_000

type expander struct {
	count  int
	active map[*yaml.Node]bool
}

// Expand returns a copy of the document root in which every alias is
// replaced by a copy of its anchored node and every << merge key is
// folded into its mapping. The input tree is not modified.
func Expand(doc *Document) (*yaml.Node, error) {
	e := &expander{active: make(map[*yaml.Node]bool)}
	out, err := e.node(doc.Root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Source, err)
	}
	return out, nil
}

func (e *expander) node(n *yaml.Node) (*yaml.Node, error) {
	e.count++
	if e.count > maxExpandedNodes {
		return nil, fmt.Errorf("line %d: more than %d nodes: %w", n.Line, maxExpandedNodes, ErrExpansionLimit)
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("line %d column %d: alias *%s: %w", n.Line, n.Column, n.Value, ErrUndefinedAlias)
		}
		if e.active[n.Alias] {
			return nil, fmt.Errorf("line %d column %d: alias *%s: %w", n.Line, n.Column, n.Value, ErrRecursiveAlias)
		}
		return e.node(n.Alias)
	case yaml.MappingNode:
		e.active[n] = true
		defer delete(e.active, n)
		return e.mapping(n)
	case yaml.SequenceNode:
		e.active[n] = true
		defer delete(e.active, n)
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for _, c := range n.Content {
			ec, err := e.node(c)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, ec)
		}
		return out, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return shallowCopy(n), nil
		}
		return e.node(n.Content[0])
	default:
		return shallowCopy(n), nil
	}
}

func (e *expander) mapping(n *yaml.Node) (*yaml.Node, error) {
	out := shallowCopy(n)
	out.Content = make([]*yaml.Node, 0, len(n.Content))

	explicit := make(map[string]int, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if isMergeKey(k) {
			continue
		}
		name := keyName(k)
		if line, dup := explicit[name]; dup {
			return nil, fmt.Errorf("line %d column %d: key %q already defined at line %d: %w",
				k.Line, k.Column, name, line, ErrDuplicateKey)
		}
		explicit[name] = k.Line
	}

	merged := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if isMergeKey(k) {
			sources, err := e.mergeSources(v)
			if err != nil {
				return nil, err
			}
			// Earlier sources win over later ones, explicit keys over all.
			for _, src := range sources {
				for j := 0; j+1 < len(src.Content); j += 2 {
					name := keyName(src.Content[j])
					if _, ok := explicit[name]; ok || merged[name] {
						continue
					}
					merged[name] = true
					out.Content = append(out.Content, src.Content[j], src.Content[j+1])
				}
			}
			continue
		}
		ek, err := e.node(k)
		if err != nil {
			return nil, err
		}
		ev, err := e.node(v)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, ek, ev)
	}
	return out, nil
}

func (e *expander) mergeSources(v *yaml.Node) ([]*yaml.Node, error) {
	ev, err := e.node(v)
	if err != nil {
		return nil, err
	}
	switch ev.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{ev}, nil
	case yaml.SequenceNode:
		out := make([]*yaml.Node, 0, len(ev.Content))
		for _, c := range ev.Content {
			if c.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d column %d: merge sequence entries must be mappings: %w", c.Line, c.Column, ErrInvalidMerge)
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d column %d: merge value must be a mapping or a sequence of mappings: %w", v.Line, v.Column, ErrInvalidMerge)
	}
}

func isMergeKey(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.Value == "<<" && k.ShortTag() == "!!merge"
}

func keyName(k *yaml.Node) string {
	if k.Kind == yaml.AliasNode && k.Alias != nil {
		return k.Alias.Value
	}
	return k.Value
}

// shallowCopy copies n without children and without its anchor, keeping
// the source position for error reporting.
func shallowCopy(n *yaml.Node) *yaml.Node {
	return &yaml.Node{
		Kind:        n.Kind,
		Style:       n.Style,
		Tag:         n.Tag,
		Value:       n.Value,
		HeadComment: n.HeadComment,
		LineComment: n.LineComment,
		FootComment: n.FootComment,
		Line:        n.Line,
		Column:      n.Column,
	}
}

// cloneNode deep-copies an expanded tree.
func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	out := shallowCopy(n)
	if len(n.Content) > 0 {
		out.Content = make([]*yaml.Node, len(n.Content))
		for i, c := range n.Content {
			out.Content[i] = cloneNode(c)
		}
	}
	return out
}
