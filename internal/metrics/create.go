package metrics

import (
	"strings"

	"mbmigrate/internal/mbql"
)

// DefaultSuffix is appended to the names of metrics created for StarRocks.
const DefaultSuffix = " SR"

// TargetName returns name with suffix appended, unless it already ends with it.
func TargetName(name, suffix string) string {
	name = strings.TrimSpace(name)
	if suffix == "" || strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
		return name
	}
	return name + suffix
}

// NewDefinition builds the document posted to create a copy of the legacy
// metric src in collection collectionID. src must already point at the
// target database; only its table and definition are carried over.
func NewDefinition(src *mbql.Mapping, suffix string, collectionID int64) *mbql.Mapping {
	name := src.StringAt("name")
	doc := mbql.NewMapping()
	doc.Set("name", mbql.String(TargetName(name, suffix)))
	doc.Set("description", mbql.String("StarRocks version of "+name))
	if v, ok := src.Lookup("table_id"); ok {
		doc.Set("table_id", v)
	}
	if def := src.MappingAt("definition"); def != nil {
		doc.Set("definition", def.Clone())
	}
	if collectionID > 0 {
		doc.Set("collection_id", mbql.Int(collectionID))
	}
	return doc
}
