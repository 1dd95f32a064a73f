package remap

import "mbmigrate/internal/core"

// Entry is the outcome of resolving one field reference context.
type Entry struct {
	Target   int64
	Resolved bool
	Column   string
	Reason   core.Reason
	Err      error
}

// Table maps field reference contexts to their target field. It is read-only
// once built.
type Table struct {
	entries map[core.FieldKey]Entry
	order   []core.FieldKey
}

// TableBuilder collects entries for a Table.
type TableBuilder struct {
	t *Table
}

// NewTableBuilder returns an empty builder.
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{t: &Table{entries: make(map[core.FieldKey]Entry)}}
}

// Resolve records a mapped field.
func (b *TableBuilder) Resolve(key core.FieldKey, column string, target int64) {
	b.put(key, Entry{Target: target, Resolved: true, Column: column})
}

// Unresolve records a field without a target.
func (b *TableBuilder) Unresolve(key core.FieldKey, column string, err error) {
	b.put(key, Entry{Column: column, Reason: ReasonOf(err), Err: err})
}

func (b *TableBuilder) put(key core.FieldKey, e Entry) {
	if _, ok := b.t.entries[key]; !ok {
		b.t.order = append(b.t.order, key)
	}
	b.t.entries[key] = e
}

// Build returns the table. The builder must not be used afterwards.
func (b *TableBuilder) Build() *Table {
	t := b.t
	b.t = nil
	return t
}

// IdentityTable maps every key to its own field id.
func IdentityTable(keys []core.FieldKey) *Table {
	b := NewTableBuilder()
	for _, k := range keys {
		b.Resolve(k, "", k.ID)
	}
	return b.Build()
}

// Lookup returns the entry for key.
func (t *Table) Lookup(key core.FieldKey) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Keys returns the keys in insertion order.
func (t *Table) Keys() []core.FieldKey {
	if t == nil {
		return nil
	}
	return append([]core.FieldKey(nil), t.order...)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}
