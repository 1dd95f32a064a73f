package remap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mbmigrate/internal/metabase"
)

// Override pins a column of a target table to a field id, bypassing metadata.
type Override struct {
	Column  string `toml:"column" json:"column"`
	TableID int64  `toml:"table_id" json:"table_id"`
	FieldID int64  `toml:"field_id" json:"field_id"`
}

type overrideKey struct {
	column  string
	tableID int64
}

// TargetResolver finds tables and fields of the target database.
type TargetResolver struct {
	src        MetadataSource
	databaseID int64
	overrides  map[overrideKey]int64

	db     *metabase.DatabaseMetadata
	tables map[int64]*metabase.TableInfo
}

// NewTargetResolver returns a resolver for databaseID. Override columns are
// compared case-insensitively.
func NewTargetResolver(src MetadataSource, databaseID int64, overrides []Override) *TargetResolver {
	r := &TargetResolver{
		src:        src,
		databaseID: databaseID,
		overrides:  make(map[overrideKey]int64, len(overrides)),
		tables:     make(map[int64]*metabase.TableInfo),
	}
	for _, o := range overrides {
		r.overrides[overrideKey{column: strings.ToUpper(o.Column), tableID: o.TableID}] = o.FieldID
	}
	return r
}

// DatabaseID returns the target database id.
func (r *TargetResolver) DatabaseID() int64 { return r.databaseID }

// ResolveTable returns the id of the target table called name.
func (r *TargetResolver) ResolveTable(ctx context.Context, name string) (int64, error) {
	if r.db == nil {
		db, err := r.src.DatabaseMetadata(ctx, r.databaseID)
		if err != nil {
			return 0, fmt.Errorf("%w: table %q: database %d metadata: %w", ErrUnresolved, name, r.databaseID, err)
		}
		r.db = db
	}
	t, ok := r.db.FindTable(name)
	if !ok {
		return 0, fmt.Errorf("%w: table %q: %w", ErrUnresolved, name, ErrTableMissing)
	}
	return t.ID, nil
}

// ResolveField returns the id of column in the target table. Overrides win
// over metadata.
func (r *TargetResolver) ResolveField(ctx context.Context, tableID int64, column string) (int64, error) {
	if id, ok := r.overrides[overrideKey{column: strings.ToUpper(column), tableID: tableID}]; ok {
		return id, nil
	}
	t, err := r.tableMetadata(ctx, tableID)
	if err != nil {
		if errors.Is(err, metabase.ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrTableMissing, err)
		}
		return 0, fmt.Errorf("%w: column %q of table %d: %w", ErrUnresolved, column, tableID, err)
	}
	f, ok := t.FindField(column)
	if !ok {
		return 0, fmt.Errorf("%w: column %q of table %d: %w", ErrUnresolved, column, tableID, ErrColumnMissing)
	}
	return f.ID, nil
}

func (r *TargetResolver) tableMetadata(ctx context.Context, tableID int64) (*metabase.TableInfo, error) {
	if t, ok := r.tables[tableID]; ok {
		return t, nil
	}
	t, err := r.src.TableQueryMetadata(ctx, tableID)
	if err != nil {
		return nil, err
	}
	r.tables[tableID] = t
	return t, nil
}
