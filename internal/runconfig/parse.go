// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed, not yet expanded run config.
type Document struct {
	Source string
	Digest string
	// Root is the top-level mapping node; aliases are still unresolved.
	Root *yaml.Node
}

var unknownAnchorRe = regexp.MustCompile(`unknown anchor '([^']+)' referenced`)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes data into a Document. Exactly one YAML document with a
// mapping root is accepted.
func Parse(source string, data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", source, ErrEmptyDocument)
		}
		return nil, classifyParseError(source, data, err)
	}

	// Strict: Ensure no multiple documents or trailing content
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", source, ErrMultipleDocuments)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyDocument)
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyDocument)
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: line %d: %w", source, root.Line, ErrNotMapping)
	}

	return &Document{
		Source: source,
		Digest: Digest(data),
		Root:   root,
	}, nil
}

// classifyParseError maps yaml.v3 failures onto the package sentinels.
// yaml.v3 reports aliases to unknown anchors without a position, so the
// first textual use of the alias is located to give the operator a line.
func classifyParseError(source string, data []byte, err error) error {
	if m := unknownAnchorRe.FindStringSubmatch(err.Error()); m != nil {
		name := m[1]
		if line, col := locateAlias(data, name); line > 0 {
			return fmt.Errorf("%s: line %d column %d: alias *%s: %w", source, line, col, name, ErrUndefinedAlias)
		}
		return fmt.Errorf("%s: alias *%s: %w", source, name, ErrUndefinedAlias)
	}
	return fmt.Errorf("%s: %w: %w", source, ErrSyntax, err)
}

func locateAlias(data []byte, name string) (int, int) {
	needle := "*" + name
	for i, line := range strings.Split(string(data), "\n") {
		idx := strings.Index(line, needle)
		for idx >= 0 {
			end := idx + len(needle)
			if end == len(line) || !isAnchorChar(line[end]) {
				return i + 1, idx + 1
			}
			next := strings.Index(line[end:], needle)
			if next < 0 {
				break
			}
			idx = end + next
		}
	}
	return 0, 0
}

func isAnchorChar(c byte) bool {
	switch c {
	case ' ', '\t', ',', '[', ']', '{', '}', '\r':
		return false
	}
	return true
}
