// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/ManuGH/runcfg/internal/validate"
	"gopkg.in/yaml.v3"
)

var typeErrorLineRe = regexp.MustCompile(`^line \d+: (.*)$`)

// blockFields maps yaml keys of a struct type to field indexes.
type blockFields struct {
	byKey  map[string]int
	inline int
}

var fieldCache sync.Map // reflect.Type -> *blockFields

func fieldsOf(t reflect.Type) *blockFields {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(*blockFields)
	}
	bf := &blockFields{byKey: make(map[string]int), inline: -1}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		switch {
		case name == "-":
		case opts == "inline" && f.Type.Kind() == reflect.Map:
			bf.inline = i
		case name != "":
			bf.byKey[name] = i
		}
	}
	fieldCache.Store(t, bf)
	return bf
}

// decodeBlock decodes the mapping n into the struct pointed to by out, one
// key at a time. A mismatch is recorded in v under path.<key> at the
// position of the offending value, and decoding continues so every
// mismatch is reported. Integer fields only accept !!int scalars.
func decodeBlock(path string, n *yaml.Node, out any, v *validate.Validator) {
	if n == nil || isNull(n) {
		return
	}
	if n.Kind != yaml.MappingNode {
		v.AddErrorAt(path, fmt.Sprintf("must be a mapping, got %s", kindName(n.Kind)), nil, n.Line, n.Column)
		return
	}

	rv := reflect.ValueOf(out).Elem()
	bf := fieldsOf(rv.Type())

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], n.Content[i+1]
		field := path + "." + k.Value

		idx, known := bf.byKey[k.Value]
		if !known {
			if bf.inline >= 0 {
				setExtra(rv.Field(bf.inline), k.Value, val)
			}
			continue
		}
		if isNull(val) {
			continue
		}
		decodeField(field, val, rv.Field(idx), v)
	}
}

func decodeField(field string, val *yaml.Node, dst reflect.Value, v *validate.Validator) {
	t := dst.Type()
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	if base.Kind() == reflect.Struct {
		if val.Kind != yaml.MappingNode {
			v.AddErrorAt(field, fmt.Sprintf("must be a mapping, got %s", kindName(val.Kind)), nil, val.Line, val.Column)
			return
		}
		ptr := reflect.New(base)
		decodeBlock(field, val, ptr.Interface(), v)
		if t.Kind() == reflect.Pointer {
			dst.Set(ptr)
		} else {
			dst.Set(ptr.Elem())
		}
		return
	}

	if !checkInts(field, val, base, v) {
		return
	}

	tmp := reflect.New(t)
	if err := val.Decode(tmp.Interface()); err != nil {
		reportDecodeError(field, val, err, v)
		return
	}
	dst.Set(tmp.Elem())
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// checkInts rejects non-integer scalars for integer fields and integer
// list elements, which yaml.v3 would otherwise truncate.
func checkInts(field string, val *yaml.Node, t reflect.Type, v *validate.Validator) bool {
	switch {
	case isIntKind(t.Kind()):
		if !KindInt.Matches(val) {
			v.AddErrorAt(field, notInt(val, t), nil, val.Line, val.Column)
			return false
		}
	case t.Kind() == reflect.Slice && isIntKind(t.Elem().Kind()) && val.Kind == yaml.SequenceNode:
		ok := true
		for _, c := range val.Content {
			if !KindInt.Matches(c) {
				v.AddErrorAt(field, notInt(c, t.Elem()), nil, c.Line, c.Column)
				ok = false
			}
		}
		return ok
	}
	return true
}

func notInt(n *yaml.Node, t reflect.Type) string {
	if n.Kind != yaml.ScalarNode {
		return fmt.Sprintf("cannot unmarshal %s into %s", kindName(n.Kind), t)
	}
	return fmt.Sprintf("cannot unmarshal %s `%s` into %s", n.ShortTag(), n.Value, t)
}

func reportDecodeError(field string, val *yaml.Node, err error, v *validate.Validator) {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		v.AddErrorAt(field, err.Error(), nil, val.Line, val.Column)
		return
	}
	for _, msg := range te.Errors {
		if m := typeErrorLineRe.FindStringSubmatch(msg); m != nil {
			msg = m[1]
		}
		line, col := val.Line, val.Column
		if at := offendingScalar(val, msg); at != nil {
			line, col = at.Line, at.Column
		}
		v.AddErrorAt(field, msg, nil, line, col)
	}
}

// offendingScalar finds the scalar inside n quoted in a yaml.v3 type error
// such as "cannot unmarshal !!str `many` into int".
func offendingScalar(n *yaml.Node, msg string) *yaml.Node {
	start := strings.IndexByte(msg, '`')
	end := strings.LastIndexByte(msg, '`')
	if start < 0 || end <= start {
		return nil
	}
	want := msg[start+1 : end]
	var found *yaml.Node
	var walk func(*yaml.Node)
	walk = func(c *yaml.Node) {
		if found != nil {
			return
		}
		if c.Kind == yaml.ScalarNode && c.Value == want {
			found = c
			return
		}
		for _, sub := range c.Content {
			walk(sub)
		}
	}
	walk(n)
	return found
}

func setExtra(m reflect.Value, key string, val *yaml.Node) {
	if m.IsNil() {
		m.Set(reflect.MakeMap(m.Type()))
	}
	elem := reflect.Zero(m.Type().Elem())
	if x := decodeValue(val); x != nil {
		xv := reflect.ValueOf(x)
		if xv.Type().AssignableTo(m.Type().Elem()) {
			elem = xv
		}
	}
	m.SetMapIndex(reflect.ValueOf(key), elem)
}

// decodeValue converts an expanded node into plain Go values.
func decodeValue(n *yaml.Node) any {
	if n == nil {
		return nil
	}
	var out any
	if err := n.Decode(&out); err != nil {
		return n.Value
	}
	return out
}
