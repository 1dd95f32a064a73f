package core

import (
	"fmt"
	"strconv"
	"strings"

	"mbmigrate/internal/mbql"
)

// TableID is the canonical string form of a Metabase table identifier. Physical
// tables have numeric handles ("5"); saved questions used as a source have
// virtual ones ("card__12").
type TableID string

// VirtualTablePrefix starts identifiers of saved questions used as a source table.
const VirtualTablePrefix = "card__"

// TableIDFromInt returns the identifier of a physical table.
func TableIDFromInt(id int64) TableID {
	return TableID(strconv.FormatInt(id, 10))
}

// TableIDFromNode reads a source-table value. Integers and non-empty strings
// are accepted; anything else is not a table identifier.
func TableIDFromNode(n mbql.Node) (TableID, bool) {
	s, ok := n.(mbql.Scalar)
	if !ok {
		return "", false
	}
	if id, ok := s.Int(); ok {
		return TableIDFromInt(id), true
	}
	if str, ok := s.Str(); ok && strings.TrimSpace(str) != "" {
		return TableID(strings.TrimSpace(str)), true
	}
	return "", false
}

// Int returns the numeric handle of a physical table.
func (t TableID) Int() (int64, bool) {
	id, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsVirtual reports whether t refers to a saved question rather than a table.
func (t TableID) IsVirtual() bool {
	return strings.HasPrefix(string(t), VirtualTablePrefix)
}

// FieldKey identifies one field reference occurrence: the field id together
// with the table and join alias in effect where it was found. The root query
// has an empty alias.
type FieldKey struct {
	ID    int64   `json:"fieldId"`
	Table TableID `json:"table"`
	Alias string  `json:"alias,omitempty"`
}

func (k FieldKey) String() string {
	if k.Alias == "" {
		return fmt.Sprintf("field %d (table %s)", k.ID, k.Table)
	}
	return fmt.Sprintf("field %d (table %s, alias %s)", k.ID, k.Table, k.Alias)
}
