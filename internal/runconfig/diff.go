// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// ChangeKind classifies a Change.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// Change is one differing leaf between two resolved runs.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
	Old  any        `json:"old,omitempty"`
	New  any        `json:"new,omitempty"`
}

func (c Change) String() string {
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("+ %s: %v", c.Path, c.New)
	case ChangeRemoved:
		return fmt.Sprintf("- %s: %v", c.Path, c.Old)
	default:
		return fmt.Sprintf("~ %s: %v -> %v", c.Path, c.Old, c.New)
	}
}

// Diff compares two resolved runs leaf by leaf. Sequences compare as a
// whole. The result is sorted by path.
func Diff(a, b *Run) []Change {
	left := Flatten(a)
	right := Flatten(b)

	var changes []Change
	for path, ov := range left {
		nv, ok := right[path]
		switch {
		case !ok:
			changes = append(changes, Change{Path: path, Kind: ChangeRemoved, Old: ov})
		case !cmp.Equal(ov, nv):
			changes = append(changes, Change{Path: path, Kind: ChangeChanged, Old: ov, New: nv})
		}
	}
	for path, nv := range right {
		if _, ok := left[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: ChangeAdded, New: nv})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Flatten maps every leaf of the resolved document to its dotted path.
func Flatten(r *Run) map[string]any {
	out := make(map[string]any)
	if r == nil || r.node == nil {
		return out
	}
	flattenNode("", r.node, out)
	return out
}

func flattenNode(prefix string, n *yaml.Node, out map[string]any) {
	if n.Kind == yaml.MappingNode && len(n.Content) > 0 {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			flattenNode(key, n.Content[i+1], out)
		}
		return
	}
	out[prefix] = decodeValue(n)
}

// PrintChanges writes one line per change.
func PrintChanges(w io.Writer, changes []Change) error {
	if len(changes) == 0 {
		_, err := fmt.Fprintln(w, "no differences")
		return err
	}
	for _, c := range changes {
		if _, err := fmt.Fprintln(w, c.String()); err != nil {
			return err
		}
	}
	return nil
}
