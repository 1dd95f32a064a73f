// Package migration records the decisions taken while migrating a query from
// the source database to the target database. It is designed to be used with
// the mbmigrate/internal/core package.
package migration

import (
	"fmt"
	"strings"

	"mbmigrate/internal/core"
)

// Migration struct contains all decisions recorded while migrating one query.
type Migration struct {
	Decisions []core.Decision
}

// Plan returns the recorded decisions in the order they were taken.
func (m *Migration) Plan() []core.Decision {
	return m.Decisions
}

// AddMapped records a field reference rewritten to a target field id.
func (m *Migration) AddMapped(key core.FieldKey, column string, target int64) {
	m.Decisions = append(m.Decisions, core.Decision{
		Kind:     core.DecisionMapped,
		FieldID:  key.ID,
		Table:    key.Table,
		Alias:    key.Alias,
		Column:   column,
		TargetID: target,
	})
}

// AddRemoved records a field reference dropped from the query.
func (m *Migration) AddRemoved(key core.FieldKey, column string, reason core.Reason) {
	m.Decisions = append(m.Decisions, core.Decision{
		Kind:    core.DecisionRemoved,
		FieldID: key.ID,
		Table:   key.Table,
		Alias:   key.Alias,
		Column:  column,
		Reason:  reason,
	})
}

// AddUnresolved records a field that has no target, once per remap entry.
func (m *Migration) AddUnresolved(key core.FieldKey, column string, reason core.Reason, msg string) {
	m.Decisions = append(m.Decisions, core.Decision{
		Kind:    core.DecisionUnresolved,
		FieldID: key.ID,
		Table:   key.Table,
		Alias:   key.Alias,
		Column:  column,
		Reason:  reason,
		Message: strings.TrimSpace(msg),
	})
}

// AddTable records the resolution of a source table. A zero targetID with a
// reason means the table could not be mapped.
func (m *Migration) AddTable(source core.TableID, name, target string, targetID int64, reason core.Reason) {
	m.Decisions = append(m.Decisions, core.Decision{
		Kind:        core.DecisionTable,
		Table:       source,
		TargetTable: target,
		TargetID:    targetID,
		Reason:      reason,
		Message:     name,
	})
}

// AddJoin records a rewritten join.
func (m *Migration) AddJoin(alias string, source core.TableID, targetID int64, strategy string) {
	m.Decisions = append(m.Decisions, core.Decision{
		Kind:     core.DecisionJoin,
		Table:    source,
		Alias:    alias,
		TargetID: targetID,
		Message:  strategy,
	})
}

func (m *Migration) AddNote(msg string) {
	if msg = strings.TrimSpace(msg); msg == "" {
		return
	}
	m.Decisions = append(m.Decisions, core.Decision{Kind: core.DecisionNote, Message: msg})
}

// Dedupe drops repeated table, note and unresolved decisions. Mapped and
// removed decisions are kept per occurrence.
func (m *Migration) Dedupe() {
	n := len(m.Decisions)
	if n == 0 {
		return
	}
	seen := make(map[core.Decision]struct{}, n)
	out := make([]core.Decision, 0, n)
	for _, d := range m.Decisions {
		d.Message = strings.TrimSpace(d.Message)
		switch d.Kind {
		case core.DecisionTable, core.DecisionNote, core.DecisionUnresolved:
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
		}
		out = append(out, d)
	}
	m.Decisions = out
}

// Count returns how many decisions of kind were recorded.
func (m *Migration) Count(kind core.DecisionKind) int {
	n := 0
	for i := range m.Decisions {
		if m.Decisions[i].Kind == kind {
			n++
		}
	}
	return n
}

// Unresolved returns the unresolved decisions.
func (m *Migration) Unresolved() []core.Decision {
	return m.filterByKind(core.DecisionUnresolved)
}

// Removed returns the removed field references.
func (m *Migration) Removed() []core.Decision {
	return m.filterByKind(core.DecisionRemoved)
}

// UnresolvedNotes returns one human-readable line per unresolved field.
func (m *Migration) UnresolvedNotes() []string {
	ds := m.Unresolved()
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, FormatUnresolved(d))
	}
	return out
}

// InfoNotes returns the free-form notes.
func (m *Migration) InfoNotes() []string {
	ds := m.filterByKind(core.DecisionNote)
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Message)
	}
	return out
}

// FormatUnresolved renders an unresolved decision as
// "table 5 / alias t1 / column AMOUNT (field 100): column-missing".
func FormatUnresolved(d core.Decision) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "table %s", d.Table)
	if d.Alias != "" {
		fmt.Fprintf(&sb, " / alias %s", d.Alias)
	}
	if d.Column != "" {
		fmt.Fprintf(&sb, " / column %s", d.Column)
	}
	fmt.Fprintf(&sb, " (field %d)", d.FieldID)
	if d.Reason != "" {
		fmt.Fprintf(&sb, ": %s", d.Reason)
	}
	if d.Message != "" {
		fmt.Fprintf(&sb, " (%s)", d.Message)
	}
	return sb.String()
}

func (m *Migration) filterByKind(kind core.DecisionKind) []core.Decision {
	out := make([]core.Decision, 0, len(m.Decisions)/4+1)
	for _, d := range m.Decisions {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
