// Package diff compares a source table with the table it is mapped to, so that
// the fields a remap would drop can be listed before any card is touched.
package diff

import (
	"fmt"
	"strings"

	"mbmigrate/internal/core"
)

// TableDiff represents the column differences between a source and a target table.
type TableDiff struct {
	Source       string          `json:"source"`
	Target       string          `json:"target"`
	Warnings     []string        `json:"warnings,omitempty"`
	OnlyInSource []*core.Column  `json:"onlyInSource"`
	OnlyInTarget []*core.Column  `json:"onlyInTarget"`
	Common       []*ColumnChange `json:"common"`
}

// ColumnChange pairs a column present on both sides. Changes is empty when the
// two definitions agree.
type ColumnChange struct {
	Name    string         `json:"name"`
	Old     *core.Column   `json:"source"`
	New     *core.Column   `json:"target"`
	Changes []*FieldChange `json:"changes,omitempty"`
}

// FieldChange represents the differences between two fields.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// CompareTables compares source with target by column name, ignoring case.
// OnlyInSource and Common keep source column order; OnlyInTarget keeps target order.
func CompareTables(source, target *core.Table) *TableDiff {
	d := &TableDiff{
		Source:       source.QualifiedName(),
		Target:       target.QualifiedName(),
		OnlyInSource: []*core.Column{},
		OnlyInTarget: []*core.Column{},
		Common:       []*ColumnChange{},
	}

	for _, c := range nameCollisions(source.Columns) {
		d.Warnings = append(d.Warnings, "source: "+c)
	}
	for _, c := range nameCollisions(target.Columns) {
		d.Warnings = append(d.Warnings, "target: "+c)
	}

	seen := make(map[string]bool, len(source.Columns))
	for _, sc := range source.Columns {
		key := strings.ToLower(sc.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		tc := target.FindColumn(sc.Name)
		if tc == nil {
			d.OnlyInSource = append(d.OnlyInSource, sc)
			continue
		}
		d.Common = append(d.Common, compareColumn(sc, tc))
	}

	seen = make(map[string]bool, len(target.Columns))
	for _, tc := range target.Columns {
		key := strings.ToLower(tc.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if source.FindColumn(tc.Name) == nil {
			d.OnlyInTarget = append(d.OnlyInTarget, tc)
		}
	}
	return d
}

// IsEmpty returns true when both tables carry the same columns with compatible definitions.
func (d *TableDiff) IsEmpty() bool {
	if len(d.OnlyInSource) > 0 || len(d.OnlyInTarget) > 0 {
		return false
	}
	for _, c := range d.Common {
		if len(c.Changes) > 0 {
			return false
		}
	}
	return true
}

// Changed returns the common columns whose definitions differ.
func (d *TableDiff) Changed() []*ColumnChange {
	var out []*ColumnChange
	for _, c := range d.Common {
		if len(c.Changes) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Types are compared by their portable category, so VARCHAR(20) and STRING agree.
func compareColumn(oldC, newC *core.Column) *ColumnChange {
	ch := &ColumnChange{Name: oldC.Name, Old: oldC, New: newC}
	var c fieldChangeCollector
	c.Add("type", string(dataType(oldC)), string(dataType(newC)))
	c.Add("nullable", fmt.Sprint(oldC.Nullable), fmt.Sprint(newC.Nullable))
	ch.Changes = c.Changes
	return ch
}

func dataType(c *core.Column) core.DataType {
	if c.Type != "" {
		return c.Type
	}
	return core.NormalizeDataType(c.TypeRaw)
}

type fieldChangeCollector struct {
	Changes []*FieldChange
}

func (c *fieldChangeCollector) Add(field, oldV, newV string) {
	if oldV == newV {
		return
	}
	c.Changes = append(c.Changes, &FieldChange{Field: field, Old: oldV, New: newV})
}

// nameCollisions lists columns whose names differ only in case. Lookups by
// name resolve to the first of them.
func nameCollisions(columns []*core.Column) []string {
	original := make(map[string]string, len(columns))
	var collisions []string
	for _, c := range columns {
		key := strings.ToLower(c.Name)
		if prev, ok := original[key]; ok {
			if prev != c.Name {
				collisions = append(collisions, fmt.Sprintf("case-insensitive name collision: %q vs %q", prev, c.Name))
			}
			continue
		}
		original[key] = c.Name
	}
	return collisions
}
