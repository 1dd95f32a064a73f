// Package mbql contains a typed representation of the JSON documents served by
// Metabase, most importantly the structured query language (MBQL) tree stored
// under a card's dataset_query. A document is a tree of nodes where every node
// is a Scalar, an ordered Sequence or an ordered Mapping. Key order of mappings
// is preserved between decoding and encoding so that documents written back to
// the API differ from the fetched ones only where they were changed.
package mbql

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Node is a single element of a document tree. The set of implementations is
// closed: Scalar, *Sequence and *Mapping.
type Node interface {
	Kind() Kind
	Clone() Node
	node()
}

// Scalar is a JSON null, boolean, number or string.
type Scalar struct {
	kind Kind
	b    bool
	num  json.Number
	s    string
}

func Null() Scalar                { return Scalar{kind: KindNull} }
func Bool(b bool) Scalar          { return Scalar{kind: KindBool, b: b} }
func Number(n json.Number) Scalar { return Scalar{kind: KindNumber, num: n} }
func String(s string) Scalar      { return Scalar{kind: KindString, s: s} }

// Int returns a number scalar holding v.
func Int(v int64) Scalar {
	return Number(json.Number(strconv.FormatInt(v, 10)))
}

func (s Scalar) Kind() Kind  { return s.kind }
func (s Scalar) Clone() Node { return s }
func (Scalar) node()         {}

// IsNull reports whether s is the JSON null.
func (s Scalar) IsNull() bool { return s.kind == KindNull }

// Str returns the string value and whether s is a string.
func (s Scalar) Str() (string, bool) {
	return s.s, s.kind == KindString
}

// BoolValue returns the boolean value and whether s is a boolean.
func (s Scalar) BoolValue() (bool, bool) {
	return s.b, s.kind == KindBool
}

// Int returns the integer value of a number scalar. Numbers with a fractional
// part or exponent are not integers.
func (s Scalar) Int() (int64, bool) {
	if s.kind != KindNumber {
		return 0, false
	}
	if strings.ContainsAny(string(s.num), ".eE") {
		return 0, false
	}
	v, err := strconv.ParseInt(string(s.num), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NumberValue returns the raw number and whether s is a number.
func (s Scalar) NumberValue() (json.Number, bool) {
	return s.num, s.kind == KindNumber
}

// Sequence is an ordered list of nodes.
type Sequence struct {
	Items []Node
}

// NewSequence returns a sequence holding items.
func NewSequence(items ...Node) *Sequence {
	return &Sequence{Items: items}
}

func (s *Sequence) Kind() Kind { return KindSequence }
func (*Sequence) node()        {}

// Clone returns a deep copy of s.
func (s *Sequence) Clone() Node {
	out := &Sequence{Items: make([]Node, len(s.Items))}
	for i, item := range s.Items {
		out.Items[i] = item.Clone()
	}
	return out
}

// Len returns the number of items.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// At returns the item at index i or a null scalar when i is out of range.
func (s *Sequence) At(i int) Node {
	if s == nil || i < 0 || i >= len(s.Items) {
		return Null()
	}
	return s.Items[i]
}

// Append adds n at the end of the sequence.
func (s *Sequence) Append(n Node) {
	s.Items = append(s.Items, n)
}

// Mapping is a JSON object whose keys keep their insertion order.
type Mapping struct {
	keys   []string
	values map[string]Node
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]Node)}
}

func (m *Mapping) Kind() Kind { return KindMapping }
func (*Mapping) node()        {}

// Clone returns a deep copy of m.
func (m *Mapping) Clone() Node {
	out := &Mapping{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]Node, len(m.values)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v.Clone()
	}
	return out
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Lookup returns the value under key and whether it is present.
func (m *Mapping) Lookup(key string) (Node, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Get returns the value under key, or a null scalar when it is missing.
func (m *Mapping) Get(key string) Node {
	if v, ok := m.Lookup(key); ok {
		return v
	}
	return Null()
}

// Set stores v under key. New keys are appended; existing keys keep their position.
func (m *Mapping) Set(key string, v Node) {
	if m.values == nil {
		m.values = make(map[string]Node)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key. Missing keys are ignored.
func (m *Mapping) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Each calls fn for every entry in key order.
func (m *Mapping) Each(fn func(key string, v Node)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}
