package metabase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"mbmigrate/internal/core"
	"mbmigrate/internal/mbql"
)

// Dashboard fetches a dashboard document.
func (s *Session) Dashboard(ctx context.Context, id int64) (*mbql.Mapping, error) {
	return s.getMapping(ctx, fmt.Sprintf("/api/dashboard/%d", id))
}

// Card fetches a card (saved question) document.
func (s *Session) Card(ctx context.Context, id int64) (*mbql.Mapping, error) {
	return s.getMapping(ctx, fmt.Sprintf("/api/card/%d", id))
}

// Metric fetches a legacy metric document.
func (s *Session) Metric(ctx context.Context, id int64) (*mbql.Mapping, error) {
	return s.getMapping(ctx, fmt.Sprintf("/api/metric/%d", id))
}

// UpdateCard writes the full card document back.
func (s *Session) UpdateCard(ctx context.Context, id int64, doc *mbql.Mapping) error {
	return s.put(ctx, fmt.Sprintf("/api/card/%d", id), doc)
}

// UpdateMetric writes the full metric document back.
func (s *Session) UpdateMetric(ctx context.Context, id int64, doc *mbql.Mapping) error {
	return s.put(ctx, fmt.Sprintf("/api/metric/%d", id), doc)
}

// CreateCard posts a new card and returns it with the id Metabase assigned.
func (s *Session) CreateCard(ctx context.Context, doc *mbql.Mapping) (*mbql.Mapping, error) {
	return s.post(ctx, "/api/card", doc)
}

// CreateMetric posts a new legacy metric and returns it with its id.
func (s *Session) CreateMetric(ctx context.Context, doc *mbql.Mapping) (*mbql.Mapping, error) {
	return s.post(ctx, "/api/metric", doc)
}

// CollectionItems lists the items of a collection, optionally restricted to
// the given models ("card", "metric", ...).
func (s *Session) CollectionItems(ctx context.Context, id int64, models ...string) ([]*mbql.Mapping, error) {
	q := url.Values{}
	for _, m := range models {
		q.Add("models", m)
	}
	n, err := s.getNode(ctx, fmt.Sprintf("/api/collection/%d/items", id), q)
	if err != nil {
		return nil, err
	}
	return listItems(n), nil
}

// Search runs a search restricted to one model, for example "metric".
func (s *Session) Search(ctx context.Context, model, query string) ([]*mbql.Mapping, error) {
	q := url.Values{}
	q.Set("models", model)
	if query != "" {
		q.Set("q", query)
	}
	n, err := s.getNode(ctx, "/api/search", q)
	if err != nil {
		return nil, err
	}
	return listItems(n), nil
}

// listItems accepts both a bare array and an object wrapping it in "data".
// Elements that are not objects are skipped.
func listItems(n mbql.Node) []*mbql.Mapping {
	seq, ok := n.(*mbql.Sequence)
	if !ok {
		m, _ := n.(*mbql.Mapping)
		seq = m.SequenceAt("data")
	}
	out := make([]*mbql.Mapping, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		if m, ok := seq.At(i).(*mbql.Mapping); ok {
			out = append(out, m)
		}
	}
	return out
}

// FieldInfo is the subset of a field document used by the tool.
type FieldInfo struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name,omitempty"`
	TableID      int64  `json:"table_id,omitempty"`
	BaseType     string `json:"base_type,omitempty"`
	DatabaseType string `json:"database_type,omitempty"`
}

// TableInfo is the subset of a table document used by the tool. Fields are
// only present in query_metadata and database metadata responses.
type TableInfo struct {
	ID          int64       `json:"id"`
	DBID        int64       `json:"db_id,omitempty"`
	Name        string      `json:"name"`
	Schema      string      `json:"schema,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	Fields      []FieldInfo `json:"fields,omitempty"`
}

// QualifiedName returns "schema.name", or the bare name without a schema.
func (t *TableInfo) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// FindField returns the field named name, compared case-insensitively.
func (t *TableInfo) FindField(name string) (FieldInfo, bool) {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// CoreTable converts t to the schema view shared with introspection.
func (t *TableInfo) CoreTable() *core.Table {
	out := &core.Table{ID: t.ID, Schema: t.Schema, Name: t.Name}
	for _, f := range t.Fields {
		out.Columns = append(out.Columns, &core.Column{
			ID:       f.ID,
			Name:     f.Name,
			TypeRaw:  f.DatabaseType,
			Type:     core.NormalizeDataType(f.DatabaseType),
			Nullable: true,
		})
	}
	return out
}

// DatabaseMetadata is a database with all its tables.
type DatabaseMetadata struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	Engine string      `json:"engine,omitempty"`
	Tables []TableInfo `json:"tables"`
}

// FindTable returns the table whose bare or qualified name equals name,
// compared case-insensitively.
func (d *DatabaseMetadata) FindTable(name string) (*TableInfo, bool) {
	for i := range d.Tables {
		t := &d.Tables[i]
		if strings.EqualFold(t.Name, name) || strings.EqualFold(t.QualifiedName(), name) {
			return t, true
		}
	}
	return nil, false
}

// Table fetches a table without its fields.
func (s *Session) Table(ctx context.Context, id int64) (*TableInfo, error) {
	var t TableInfo
	if err := s.getJSON(ctx, fmt.Sprintf("/api/table/%d", id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// TableQueryMetadata fetches a table with its fields.
func (s *Session) TableQueryMetadata(ctx context.Context, id int64) (*TableInfo, error) {
	var t TableInfo
	if err := s.getJSON(ctx, fmt.Sprintf("/api/table/%d/query_metadata", id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Field fetches a single field.
func (s *Session) Field(ctx context.Context, id int64) (*FieldInfo, error) {
	var f FieldInfo
	if err := s.getJSON(ctx, fmt.Sprintf("/api/field/%d", id), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DatabaseMetadata fetches a database with its tables.
func (s *Session) DatabaseMetadata(ctx context.Context, id int64) (*DatabaseMetadata, error) {
	var d DatabaseMetadata
	if err := s.getJSON(ctx, fmt.Sprintf("/api/database/%d/metadata", id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}
