package remap

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"mbmigrate/internal/core"
	"mbmigrate/internal/metabase"
)

// MetadataSource is the read-only part of the Metabase API used to resolve
// identities. *metabase.Session implements it.
type MetadataSource interface {
	Table(ctx context.Context, id int64) (*metabase.TableInfo, error)
	TableQueryMetadata(ctx context.Context, id int64) (*metabase.TableInfo, error)
	Field(ctx context.Context, id int64) (*metabase.FieldInfo, error)
	DatabaseMetadata(ctx context.Context, id int64) (*metabase.DatabaseMetadata, error)
}

// DefaultCacheSize bounds the number of names kept per resolver.
const DefaultCacheSize = 4096

// IdentityResolver names source tables and fields. Successful lookups are
// cached; failures are retried on the next call.
type IdentityResolver struct {
	src    MetadataSource
	tables *lru.Cache[core.TableID, string]
	fields *lru.Cache[int64, string]
}

// NewIdentityResolver returns a resolver caching up to size names of each kind.
func NewIdentityResolver(src MetadataSource, size int) (*IdentityResolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	tables, err := lru.New[core.TableID, string](size)
	if err != nil {
		return nil, fmt.Errorf("table name cache: %w", err)
	}
	fields, err := lru.New[int64, string](size)
	if err != nil {
		return nil, fmt.Errorf("field name cache: %w", err)
	}
	return &IdentityResolver{src: src, tables: tables, fields: fields}, nil
}

// TableName returns "schema.table" for a physical table, or the bare name
// when Metabase reports no schema.
func (r *IdentityResolver) TableName(ctx context.Context, id core.TableID) (string, error) {
	if name, ok := r.tables.Get(id); ok {
		return name, nil
	}
	if id.IsVirtual() {
		return "", &LookupError{Kind: "table", ID: string(id), Err: ErrVirtualTable}
	}
	n, ok := id.Int()
	if !ok {
		return "", &LookupError{Kind: "table", ID: string(id), Err: fmt.Errorf("%w: not a table id", metabase.ErrNotFound)}
	}
	t, err := r.src.Table(ctx, n)
	if err != nil {
		return "", &LookupError{Kind: "table", ID: string(id), Err: err}
	}
	if t.Name == "" {
		return "", &LookupError{Kind: "table", ID: string(id), Err: fmt.Errorf("%w: table has no name", metabase.ErrNotFound)}
	}
	name := t.QualifiedName()
	r.tables.Add(id, name)
	return name, nil
}

// ColumnName returns the column name of a source field.
func (r *IdentityResolver) ColumnName(ctx context.Context, fieldID int64) (string, error) {
	if name, ok := r.fields.Get(fieldID); ok {
		return name, nil
	}
	f, err := r.src.Field(ctx, fieldID)
	if err != nil {
		return "", &LookupError{Kind: "field", ID: fmt.Sprint(fieldID), Err: err}
	}
	if f.Name == "" {
		return "", &LookupError{Kind: "field", ID: fmt.Sprint(fieldID), Err: fmt.Errorf("%w: field has no name", metabase.ErrNotFound)}
	}
	r.fields.Add(fieldID, f.Name)
	return f.Name, nil
}
