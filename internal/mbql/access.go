package mbql

// Path walks nested mappings by key and returns the node found, or a null
// scalar when any step is missing or not a mapping.
func (m *Mapping) Path(keys ...string) Node {
	var cur Node = m
	for _, k := range keys {
		mm, ok := cur.(*Mapping)
		if !ok || mm == nil {
			return Null()
		}
		cur = mm.Get(k)
	}
	if cur == nil {
		return Null()
	}
	return cur
}

// StringAt returns the string at path, or "" when absent or not a string.
func (m *Mapping) StringAt(keys ...string) string {
	s, ok := m.Path(keys...).(Scalar)
	if !ok {
		return ""
	}
	v, _ := s.Str()
	return v
}

// IntAt returns the integer at path.
func (m *Mapping) IntAt(keys ...string) (int64, bool) {
	s, ok := m.Path(keys...).(Scalar)
	if !ok {
		return 0, false
	}
	return s.Int()
}

// MappingAt returns the mapping at path, or nil.
func (m *Mapping) MappingAt(keys ...string) *Mapping {
	mm, _ := m.Path(keys...).(*Mapping)
	return mm
}

// SequenceAt returns the sequence at path, or nil.
func (m *Mapping) SequenceAt(keys ...string) *Sequence {
	s, _ := m.Path(keys...).(*Sequence)
	return s
}

// EnsureMapping returns the mapping under key, creating an empty one when the
// key is missing or holds something else.
func (m *Mapping) EnsureMapping(key string) *Mapping {
	if mm, ok := m.Get(key).(*Mapping); ok {
		return mm
	}
	mm := NewMapping()
	m.Set(key, mm)
	return mm
}

// FieldRefTag is the operator of a field reference clause.
const FieldRefTag = "field"

// AsFieldRef reports whether n is a field reference ["field", <int id>, ...]
// and returns its numeric id. References by column name are not numeric and
// are not field references in this sense.
func AsFieldRef(n Node) (int64, bool) {
	s, ok := n.(*Sequence)
	if !ok || s.Len() < 2 {
		return 0, false
	}
	if op, ok := Operator(s); !ok || op != FieldRefTag {
		return 0, false
	}
	id, ok := s.Items[1].(Scalar)
	if !ok {
		return 0, false
	}
	return id.Int()
}

// Operator returns the leading string of a clause such as ["=", a, b].
func Operator(s *Sequence) (string, bool) {
	if s.Len() == 0 {
		return "", false
	}
	head, ok := s.Items[0].(Scalar)
	if !ok {
		return "", false
	}
	return head.Str()
}

// Join keys.
const (
	KeySourceTable = "source-table"
	KeyAlias       = "alias"
	KeyStrategy    = "strategy"
	KeyCondition   = "condition"
)

// Query stage keys.
const (
	KeySourceQuery = "source-query"
	KeyJoins       = "joins"
	KeyAggregation = "aggregation"
	KeyExpressions = "expressions"
)

// Operators of references to a named expression or to an aggregation by
// position, both local to one query stage.
const (
	ExpressionRefTag  = "expression"
	AggregationRefTag = "aggregation"
)

// IsJoin reports whether m is a join clause: it names both a source table and an alias.
func IsJoin(m *Mapping) bool {
	return m.Has(KeySourceTable) && m.Has(KeyAlias)
}

// Equal reports whether a and b are structurally identical, including key order.
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case Scalar:
		bv, ok := b.(Scalar)
		return ok && av == bv
	case *Sequence:
		bv, ok := b.(*Sequence)
		if !ok || av == nil || bv == nil {
			return ok && av == nil && bv == nil
		}
		if av.Len() != bv.Len() {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Mapping:
		bv, ok := b.(*Mapping)
		if !ok || av == nil || bv == nil {
			return ok && av == nil && bv == nil
		}
		if av.Len() != bv.Len() {
			return false
		}
		for i, k := range av.keys {
			if bv.keys[i] != k || !Equal(av.values[k], bv.values[k]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
