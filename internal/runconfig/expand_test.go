// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func expandString(t *testing.T, src string) (*yaml.Node, error) {
	t.Helper()
	doc, err := Parse("test.yml", []byte(src))
	require.NoError(t, err)
	return Expand(doc)
}

func keys(n *yaml.Node) []string {
	var out []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, n.Content[i].Value)
	}
	return out
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{name: "empty", input: "", wantErr: ErrEmptyDocument},
		{name: "explicit null", input: "~\n", wantErr: ErrEmptyDocument},
		{name: "multiple documents", input: "a: 1\n---\nb: 2\n", wantErr: ErrMultipleDocuments},
		{name: "sequence root", input: "- a\n- b\n", wantErr: ErrNotMapping, wantMsg: "line 1"},
		{name: "syntax", input: "a: [1, 2\n", wantErr: ErrSyntax},
		{
			name:    "undefined alias",
			input:   "model_params:\n  model: x\nstages:\n  stage1:\n    state_params:\n      num_epochs: *epochs\n",
			wantErr: ErrUndefinedAlias,
			wantMsg: "line 6 column 19",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.yml", []byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseUndefinedAliasFixture(t *testing.T) {
	_, err := Parse("undefined-alias.yml", readFixture(t, "undefined-alias.yml"))
	require.ErrorIs(t, err, ErrUndefinedAlias)
	assert.Contains(t, err.Error(), "line 11")
	assert.Contains(t, err.Error(), "*num_epochs")
}

func TestParseMultiDocFixture(t *testing.T) {
	_, err := Parse("multi-doc.yml", readFixture(t, "multi-doc.yml"))
	assert.ErrorIs(t, err, ErrMultipleDocuments)
}

func TestLocateAliasSkipsLongerNames(t *testing.T) {
	src := []byte("a: *epochs_total\nb: *epochs\n")
	line, col := locateAlias(src, "epochs")
	assert.Equal(t, 2, line)
	assert.Equal(t, 4, col)
}

func TestExpandReplacesAliases(t *testing.T) {
	root, err := expandString(t, "a: &x {k: 1}\nb: *x\n")
	require.NoError(t, err)

	_, b := mappingValue(root, "b")
	require.NotNil(t, b)
	assert.Equal(t, yaml.MappingNode, b.Kind)
	assert.Empty(t, b.Anchor)
	_, k := mappingValue(b, "k")
	assert.Equal(t, "1", k.Value)
	// position comes from the anchored node
	assert.Equal(t, 1, b.Line)
}

func TestExpandMergeKeys(t *testing.T) {
	src := `base: &base {a: 1, b: 2}
other: &other {b: 3, c: 4}
m:
  <<: [*base, *other]
  a: 9
`
	root, err := expandString(t, src)
	require.NoError(t, err)

	_, m := mappingValue(root, "m")
	require.NotNil(t, m)
	assert.Equal(t, []string{"b", "c", "a"}, keys(m))

	var got map[string]int
	require.NoError(t, m.Decode(&got))
	assert.Equal(t, map[string]int{"a": 9, "b": 2, "c": 4}, got)
}

func TestExpandSingleMergeKey(t *testing.T) {
	root, err := expandString(t, "d: &d {x: 1, y: 2}\ne:\n  <<: *d\n  y: 3\n")
	require.NoError(t, err)
	_, e := mappingValue(root, "e")
	var got map[string]int
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, map[string]int{"x": 1, "y": 3}, got)
}

func TestExpandQuotedMergeKeyIsPlainKey(t *testing.T) {
	root, err := expandString(t, "d: &d {x: 1}\ne:\n  \"<<\": *d\n")
	require.NoError(t, err)
	_, e := mappingValue(root, "e")
	assert.Equal(t, []string{"<<"}, keys(e))
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "recursive sequence", input: "a: &x [1, *x]\n", wantErr: ErrRecursiveAlias},
		{name: "recursive mapping", input: "a: &x\n  self: *x\n", wantErr: ErrRecursiveAlias},
		{name: "merge of scalar", input: "s: &s 1\nm:\n  <<: *s\n", wantErr: ErrInvalidMerge},
		{name: "merge sequence of scalars", input: "s: &s 1\nm:\n  <<: [*s]\n", wantErr: ErrInvalidMerge},
		{name: "duplicate key", input: "a: 1\nb: 2\na: 3\n", wantErr: ErrDuplicateKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := expandString(t, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestExpandLimitStopsAliasBombs(t *testing.T) {
	var b strings.Builder
	b.WriteString("l0: &l0 [x, x, x, x, x, x, x, x, x, x]\n")
	for i := 1; i < 8; i++ {
		fmt.Fprintf(&b, "l%d: &l%d [", i, i)
		for j := 0; j < 10; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "*l%d", i-1)
		}
		b.WriteString("]\n")
	}

	_, err := expandString(t, b.String())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpansionLimit)
}

func TestExpandDoesNotModifyInput(t *testing.T) {
	doc, err := Parse("t.yml", []byte("a: &x {k: 1}\nb: *x\nc:\n  <<: *x\n"))
	require.NoError(t, err)
	_, err = Expand(doc)
	require.NoError(t, err)

	_, b := mappingValue(doc.Root, "b")
	assert.Equal(t, yaml.AliasNode, b.Kind)
	_, c := mappingValue(doc.Root, "c")
	assert.Equal(t, "<<", c.Content[0].Value)
}
