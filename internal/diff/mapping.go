package diff

import (
	"strings"

	"mbmigrate/internal/core"
)

// MappingCheck is the result of checking a table mapping against a physical schema.
type MappingCheck struct {
	Checked int                 `json:"checked"`
	Present []core.MappingEntry `json:"present"`
	Missing []core.MappingEntry `json:"missing"`
}

// OK reports whether every mapped target table exists.
func (c *MappingCheck) OK() bool { return len(c.Missing) == 0 }

// CheckMapping lists the mapping entries whose target table does not exist in db.
// Targets may be bare or schema-qualified; a qualified target also matches a
// table of the same bare name when db was read without schemas.
func CheckMapping(m *core.TableMapping, db *core.Database) *MappingCheck {
	res := &MappingCheck{Present: []core.MappingEntry{}, Missing: []core.MappingEntry{}}
	for _, e := range m.Entries() {
		res.Checked++
		if findTarget(db, e.Target) != nil {
			res.Present = append(res.Present, e)
			continue
		}
		res.Missing = append(res.Missing, e)
	}
	return res
}

func findTarget(db *core.Database, name string) *core.Table {
	if t := db.FindTable(name); t != nil {
		return t
	}
	schema, table := core.SplitQualified(name)
	if schema == "" {
		return nil
	}
	for _, t := range db.Tables {
		if t.Schema == "" && strings.EqualFold(t.Name, table) {
			return t
		}
	}
	return nil
}
