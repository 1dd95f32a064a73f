// Package remap migrates structured Metabase queries from one database to
// another by rewriting the field ids they reference.
//
// The work happens in stages: Extract lists every field reference with the
// join context it was found in, the IdentityResolver names the source tables
// and columns, the TargetResolver finds the same names in the target database,
// and the Rewriter produces the migrated query from the resulting Table.
// Migrator runs all stages for one card.
package remap

import (
	"mbmigrate/internal/core"
	"mbmigrate/internal/mbql"
)

type joinContext struct {
	table core.TableID
	alias string
}

// enter returns the context for the subtree of m.
func (jc joinContext) enter(m *mbql.Mapping) joinContext {
	if !mbql.IsJoin(m) {
		return jc
	}
	table, _ := core.TableIDFromNode(m.Get(mbql.KeySourceTable))
	return joinContext{table: table, alias: m.StringAt(mbql.KeyAlias)}
}

// Extract lists every field reference in query in document order, each with
// the table and alias in effect where it occurs. Join clauses set the context
// for their own subtree only. Duplicates are kept.
func Extract(query *mbql.Mapping, root core.TableID) []core.FieldKey {
	var keys []core.FieldKey
	extract(query, joinContext{table: root}, &keys)
	return keys
}

func extract(n mbql.Node, jc joinContext, keys *[]core.FieldKey) {
	switch v := n.(type) {
	case *mbql.Sequence:
		if id, ok := mbql.AsFieldRef(v); ok {
			*keys = append(*keys, core.FieldKey{ID: id, Table: jc.table, Alias: jc.alias})
			return
		}
		if v == nil {
			return
		}
		for _, item := range v.Items {
			extract(item, jc, keys)
		}
	case *mbql.Mapping:
		inner := jc.enter(v)
		v.Each(func(_ string, child mbql.Node) {
			extract(child, inner, keys)
		})
	}
}

// SourceTables lists the distinct source-table values of query in document
// order, root first.
func SourceTables(query *mbql.Mapping) []core.TableID {
	var out []core.TableID
	seen := make(map[core.TableID]struct{})
	var walk func(n mbql.Node)
	walk = func(n mbql.Node) {
		switch v := n.(type) {
		case *mbql.Sequence:
			if v == nil {
				return
			}
			for _, item := range v.Items {
				walk(item)
			}
		case *mbql.Mapping:
			if t, ok := core.TableIDFromNode(v.Get(mbql.KeySourceTable)); ok {
				if _, dup := seen[t]; !dup {
					seen[t] = struct{}{}
					out = append(out, t)
				}
			}
			v.Each(func(_ string, child mbql.Node) { walk(child) })
		}
	}
	walk(query)
	return out
}
