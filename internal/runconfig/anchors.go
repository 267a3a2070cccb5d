// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"fmt"
	"io"

	"github.com/ManuGH/runcfg/internal/validate"
	"gopkg.in/yaml.v3"
)

// AnchorDef is one &anchor in the document.
type AnchorDef struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Kind   string `json:"kind"`
	Uses   int    `json:"uses"`
}

// AliasUse is one *alias in the document.
type AliasUse struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	// TargetLine is the line of the anchor the alias binds to.
	TargetLine int `json:"targetLine"`
}

// AnchorReport lists anchors and aliases in source order.
type AnchorReport struct {
	Anchors []AnchorDef      `json:"anchors"`
	Aliases []AliasUse       `json:"aliases"`
	Issues  []validate.Error `json:"issues,omitempty"`
}

// HasErrors reports whether any issue is an error.
func (r *AnchorReport) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == validate.SeverityError {
			return true
		}
	}
	return false
}

// Anchors walks doc and checks that every alias points to an anchor
// defined before it. A redefined anchor name and an anchor that is never
// aliased are reported as warnings.
func Anchors(doc *Document) *AnchorReport {
	rep := &AnchorReport{}
	byNode := make(map[*yaml.Node]int)
	seen := make(map[string]int)

	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n == nil {
			return
		}
		if n.Kind == yaml.AliasNode {
			use := AliasUse{Name: n.Value, Line: n.Line, Column: n.Column}
			switch {
			case n.Alias == nil:
				rep.Issues = append(rep.Issues, validate.Error{
					Field:    "*" + n.Value,
					Message:  "alias references undefined anchor",
					Severity: validate.SeverityError,
					Line:     n.Line,
					Column:   n.Column,
				})
			case before(n, n.Alias):
				use.TargetLine = n.Alias.Line
				rep.Issues = append(rep.Issues, validate.Error{
					Field:    "*" + n.Value,
					Message:  fmt.Sprintf("alias used before its anchor (line %d)", n.Alias.Line),
					Severity: validate.SeverityError,
					Line:     n.Line,
					Column:   n.Column,
				})
			default:
				use.TargetLine = n.Alias.Line
				if idx, ok := byNode[n.Alias]; ok {
					rep.Anchors[idx].Uses++
				}
			}
			rep.Aliases = append(rep.Aliases, use)
			return
		}
		if n.Anchor != "" {
			if prev, ok := seen[n.Anchor]; ok {
				rep.Issues = append(rep.Issues, validate.Error{
					Field:    "&" + n.Anchor,
					Message:  fmt.Sprintf("anchor redefined (first defined on line %d); later aliases bind to this definition", prev),
					Severity: validate.SeverityWarning,
					Line:     n.Line,
					Column:   n.Column,
				})
			}
			seen[n.Anchor] = n.Line
			byNode[n] = len(rep.Anchors)
			rep.Anchors = append(rep.Anchors, AnchorDef{
				Name:   n.Anchor,
				Line:   n.Line,
				Column: n.Column,
				Kind:   kindName(n.Kind),
			})
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(doc.Root)

	for _, a := range rep.Anchors {
		if a.Uses == 0 {
			rep.Issues = append(rep.Issues, validate.Error{
				Field:    "&" + a.Name,
				Message:  "anchor is never aliased",
				Severity: validate.SeverityWarning,
				Line:     a.Line,
				Column:   a.Column,
			})
		}
	}
	return rep
}

// before reports whether a appears strictly before b in the source.
func before(a, b *yaml.Node) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}

// Print writes a human readable report to w.
func (r *AnchorReport) Print(w io.Writer) error {
	if len(r.Anchors) == 0 && len(r.Aliases) == 0 {
		_, err := fmt.Fprintln(w, "no anchors or aliases")
		return err
	}
	for _, a := range r.Anchors {
		if _, err := fmt.Fprintf(w, "&%-20s line %-4d %-8s uses=%d\n", a.Name, a.Line, a.Kind, a.Uses); err != nil {
			return err
		}
	}
	for _, a := range r.Aliases {
		if _, err := fmt.Fprintf(w, "*%-20s line %-4d -> line %d\n", a.Name, a.Line, a.TargetLine); err != nil {
			return err
		}
	}
	for _, is := range r.Issues {
		if _, err := fmt.Fprintf(w, "%s: line %d: %s: %s\n", is.Severity, is.Line, is.Field, is.Message); err != nil {
			return err
		}
	}
	return nil
}
