// Package core contains the shared vocabulary of the migration tool: identities
// of tables and fields as Metabase knows them, the source-to-target table
// mapping, a schema view used for introspection and comparison, and the
// decisions recorded while migrating a query.
package core

import "strings"

// Dialect identifies the engine behind a Metabase database.
type Dialect string

const (
	DialectExasol    Dialect = "exasol"
	DialectStarRocks Dialect = "starrocks"
	DialectMySQL     Dialect = "mysql"
	DialectMariaDB   Dialect = "mariadb"
	DialectTiDB      Dialect = "tidb"
)

// SupportedDialects returns a slice of all supported dialect values.
func SupportedDialects() []Dialect {
	return []Dialect{
		DialectExasol,
		DialectStarRocks,
		DialectMySQL,
		DialectMariaDB,
		DialectTiDB,
	}
}

// IsValidDialect reports whether d is a recognized dialect string.
func IsValidDialect(d string) bool {
	for _, supported := range SupportedDialects() {
		if strings.EqualFold(string(supported), d) {
			return true
		}
	}
	return false
}

// Database represents a database, either as Metabase describes it or as
// introspected from the engine itself.
type Database struct {
	ID      int64    `json:"id,omitempty"`
	Name    string   `json:"name"`
	Dialect *Dialect `json:"dialect,omitempty"`
	Version string   `json:"version,omitempty"`
	Tables  []*Table `json:"tables"`
}

// Table represents a table. ID is the Metabase table id and is zero for
// tables read directly from the engine.
type Table struct {
	ID      int64     `json:"id,omitempty"`
	Schema  string    `json:"schema,omitempty"`
	Name    string    `json:"name"`
	Comment string    `json:"comment,omitempty"`
	Columns []*Column `json:"columns"`
}

// Column represents a single column. ID is the Metabase field id.
type Column struct {
	ID       int64    `json:"id,omitempty"`
	Name     string   `json:"name"`
	TypeRaw  string   `json:"typeRaw,omitempty"`
	Type     DataType `json:"type,omitempty"`
	Nullable bool     `json:"nullable"`
	Comment  string   `json:"comment,omitempty"`
}

// DataType is an ENUM with all possible column data types.
type DataType string

const (
	DataTypeString   DataType = "string"
	DataTypeInt      DataType = "int"
	DataTypeFloat    DataType = "float"
	DataTypeBoolean  DataType = "boolean"
	DataTypeDatetime DataType = "datetime"
	DataTypeJSON     DataType = "json"
	DataTypeBinary   DataType = "binary"
	DataTypeUnknown  DataType = "unknown"
)

// QualifiedName returns "schema.name", or the bare name when the table has no schema.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// FindTable looks for a table by name inside a database. Both bare and
// schema-qualified names are accepted; matching is case-insensitive.
func (db *Database) FindTable(name string) *Table {
	for _, t := range db.Tables {
		if strings.EqualFold(t.Name, name) || strings.EqualFold(t.QualifiedName(), name) {
			return t
		}
	}
	return nil
}

// FindColumn looks for a column by name inside a table.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// SplitQualified splits "schema.table" into its parts. A name without a dot
// has an empty schema.
func SplitQualified(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return "", name
	}
	return name[:dot], name[dot+1:]
}

type normalizeDataTypeRule struct {
	dataType   DataType
	substrings []string
}

var normalizeDataTypeRules = []normalizeDataTypeRule{
	{dataType: DataTypeString, substrings: []string{"char", "text", "string"}},
	{dataType: DataTypeBoolean, substrings: []string{"bool", "tinyint(1)"}},
	{dataType: DataTypeInt, substrings: []string{"int"}},
	{dataType: DataTypeFloat, substrings: []string{"float", "double", "decimal", "numeric", "real"}},
	{dataType: DataTypeDatetime, substrings: []string{"timestamp", "date", "time"}},
	{dataType: DataTypeJSON, substrings: []string{"json"}},
	{dataType: DataTypeBinary, substrings: []string{"blob", "binary", "varbinary"}},
}

// NormalizeDataType maps a raw SQL type string (e.g. "VARCHAR(255)") to one of
// the portable DataType constants. The matching is case-insensitive and based
// on substring containment using normalizeDataTypeRules.
func NormalizeDataType(rawType string) DataType {
	lower := strings.ToLower(strings.TrimSpace(rawType))
	if lower == "" {
		return DataTypeUnknown
	}
	for _, rule := range normalizeDataTypeRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.dataType
			}
		}
	}
	return DataTypeUnknown
}
