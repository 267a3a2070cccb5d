// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// ArgKind is the declared type of a callback argument.
type ArgKind string

const (
	KindString    ArgKind = "string"
	KindInt       ArgKind = "int"
	KindFloat     ArgKind = "float"
	KindBool      ArgKind = "bool"
	KindList      ArgKind = "list"
	KindListInt   ArgKind = "list<int>"
	KindListFloat ArgKind = "list<float>"
	KindMap       ArgKind = "map"
	KindAny       ArgKind = "any"
)

// IsValid reports whether k is a known kind.
func (k ArgKind) IsValid() bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindList, KindListInt, KindListFloat, KindMap, KindAny:
		return true
	}
	return false
}

// Matches reports whether the expanded node n is a value of kind k.
// A null value matches every kind.
func (k ArgKind) Matches(n *yaml.Node) bool {
	if n == nil || isNull(n) || k == KindAny {
		return true
	}
	switch k {
	case KindString:
		return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
	case KindInt:
		return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!int"
	case KindFloat:
		return isNumber(n)
	case KindBool:
		return isBool(n)
	case KindList:
		return n.Kind == yaml.SequenceNode
	case KindListInt:
		return seqOf(n, func(c *yaml.Node) bool { return c.Kind == yaml.ScalarNode && c.ShortTag() == "!!int" })
	case KindListFloat:
		return seqOf(n, isNumber)
	case KindMap:
		return n.Kind == yaml.MappingNode
	}
	return false
}

func isNumber(n *yaml.Node) bool {
	if n.Kind != yaml.ScalarNode {
		return false
	}
	t := n.ShortTag()
	return t == "!!int" || t == "!!float"
}

// isBool accepts YAML 1.2 booleans plus the YAML 1.1 spellings the trainer's
// loader still understands.
func isBool(n *yaml.Node) bool {
	if n.Kind != yaml.ScalarNode {
		return false
	}
	if n.ShortTag() == "!!bool" {
		return true
	}
	if n.Style != 0 && n.Style != yaml.FlowStyle {
		return false
	}
	switch strings.ToLower(n.Value) {
	case "yes", "no", "on", "off", "y", "n":
		return true
	}
	return false
}

func seqOf(n *yaml.Node, ok func(*yaml.Node) bool) bool {
	if n.Kind != yaml.SequenceNode {
		return false
	}
	for _, c := range n.Content {
		if !ok(c) {
			return false
		}
	}
	return true
}

// CatalogEntry describes one known criterion, optimizer, scheduler or callback.
type CatalogEntry struct {
	Args map[string]ArgKind `yaml:"args,omitempty"`
	// Metrics are the metric name prefixes a callback produces.
	Metrics  []string `yaml:"metrics,omitempty"`
	OpenArgs bool     `yaml:"open_args,omitempty"`
}

// Catalog lists the names the external trainer understands.
type Catalog struct {
	Criteria   map[string]CatalogEntry `yaml:"criteria"`
	Optimizers map[string]CatalogEntry `yaml:"optimizers"`
	Schedulers map[string]CatalogEntry `yaml:"schedulers"`
	Callbacks  map[string]CatalogEntry `yaml:"callbacks"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(embeddedCatalog)
		if defaultCatalogErr != nil {
			defaultCatalogErr = fmt.Errorf("embedded catalog: %w", defaultCatalogErr)
		}
	})
	return defaultCatalog, defaultCatalogErr
}

// MustDefaultCatalog is DefaultCatalog for package-level initialisation.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog decodes a catalog document. Unknown keys are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	c := &Catalog{}
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog: %w", ErrEmptyDocument)
		}
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c.init()

	for _, sec := range c.sections() {
		for name, e := range sec.entries {
			for arg, kind := range e.Args {
				if !kind.IsValid() {
					return nil, fmt.Errorf("catalog: %s.%s.args.%s: unknown kind %q", sec.name, name, arg, kind)
				}
			}
		}
	}
	return c, nil
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	// #nosec G304 -- operator supplied catalog path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Extend returns a new catalog with the entries of extra laid over c.
func (c *Catalog) Extend(extra *Catalog) *Catalog {
	out := &Catalog{}
	out.init()
	if c != nil {
		copyEntries(out.Criteria, c.Criteria)
		copyEntries(out.Optimizers, c.Optimizers)
		copyEntries(out.Schedulers, c.Schedulers)
		copyEntries(out.Callbacks, c.Callbacks)
	}
	if extra != nil {
		copyEntries(out.Criteria, extra.Criteria)
		copyEntries(out.Optimizers, extra.Optimizers)
		copyEntries(out.Schedulers, extra.Schedulers)
		copyEntries(out.Callbacks, extra.Callbacks)
	}
	return out
}

func copyEntries(dst, src map[string]CatalogEntry) {
	for k, v := range src {
		dst[k] = v
	}
}

func (c *Catalog) init() {
	if c.Criteria == nil {
		c.Criteria = map[string]CatalogEntry{}
	}
	if c.Optimizers == nil {
		c.Optimizers = map[string]CatalogEntry{}
	}
	if c.Schedulers == nil {
		c.Schedulers = map[string]CatalogEntry{}
	}
	if c.Callbacks == nil {
		c.Callbacks = map[string]CatalogEntry{}
	}
}

type catalogSection struct {
	name    string
	entries map[string]CatalogEntry
}

func (c *Catalog) sections() []catalogSection {
	return []catalogSection{
		{"criteria", c.Criteria},
		{"optimizers", c.Optimizers},
		{"schedulers", c.Schedulers},
		{"callbacks", c.Callbacks},
	}
}

// Names returns the sorted entry names of one section
// (criteria, optimizers, schedulers or callbacks).
func (c *Catalog) Names(section string) []string {
	for _, sec := range c.sections() {
		if sec.name != section {
			continue
		}
		names := make([]string, 0, len(sec.entries))
		for n := range sec.entries {
			names = append(names, n)
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// Fingerprint identifies the catalog content for cache keys.
func (c *Catalog) Fingerprint() string {
	if c == nil {
		return "none"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return "invalid"
	}
	return Digest(data)[:16]
}
