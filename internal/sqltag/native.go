package sqltag

import "mbmigrate/internal/mbql"

// Native is the editable part of a native SQL card.
type Native struct {
	Query string
	Tags  *mbql.Mapping
}

// FromCard extracts the native query of card. The second result is false for
// structured cards.
func FromCard(card *mbql.Mapping) (*Native, bool) {
	if card.StringAt("dataset_query", "type") != "native" {
		return nil, false
	}
	n := &Native{Query: card.StringAt("dataset_query", "native", "query")}
	if tags := card.MappingAt("dataset_query", "native", "template-tags"); tags != nil {
		n.Tags = tags.Clone().(*mbql.Mapping)
	} else {
		n.Tags = mbql.NewMapping()
	}
	return n, true
}

// Store writes the query and template tags back into card.
func (n *Native) Store(card *mbql.Mapping) {
	native := card.EnsureMapping("dataset_query").EnsureMapping("native")
	native.Set("query", mbql.String(n.Query))
	native.Set("template-tags", n.Tags)
}

// HasTag reports whether a template tag called name is defined.
func (n *Native) HasTag(name string) bool {
	return n.Tags.Has(name)
}

// hasDefault reports whether the tag called name carries a non-null default.
func (n *Native) hasDefault(name string) bool {
	def := n.Tags.MappingAt(name)
	if def == nil {
		return false
	}
	v, ok := def.Lookup("default")
	if !ok {
		return false
	}
	s, isScalar := v.(mbql.Scalar)
	return !isScalar || !s.IsNull()
}
