package output

import (
	"fmt"
	"strings"

	"mbmigrate/internal/core"
	"mbmigrate/internal/diff"
	"mbmigrate/internal/migration"
	"mbmigrate/internal/report"
)

type summaryFormatter struct{}

// FormatReport formats a run report as a compact summary.
// Example output:
//
//	remap dashboard_42 (dry run)
//	Processed: 5, updated: 0, planned: 3, unchanged: 1, skipped: 0, failed: 1
func (summaryFormatter) FormatReport(r *report.Report) (string, error) {
	if r == nil {
		return "Nothing processed.\n", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", r.Command, r.Target)
	if r.DryRun {
		sb.WriteString(" (dry run)")
	}
	sb.WriteString("\n")
	s := r.Summary
	fmt.Fprintf(&sb, "Processed: %d, updated: %d, planned: %d, unchanged: %d, skipped: %d, failed: %d\n",
		s.Processed, s.Updated, s.Planned, s.Unchanged, s.Skipped, s.Failed)

	if s.Failed > 0 {
		sb.WriteString("\nFailures:\n")
		for _, it := range r.Items {
			if it.Status != report.StatusFailed {
				continue
			}
			fmt.Fprintf(&sb, "   - %s %d %s: %s\n", it.Kind, it.ID, it.Name, it.Error)
		}
	}

	var created []report.Item
	for _, it := range r.Items {
		if it.Created != 0 {
			created = append(created, it)
		}
	}
	if len(created) > 0 {
		sb.WriteString("\nCreated:\n")
		for _, it := range created {
			fmt.Fprintf(&sb, "   - %s %d %s -> %d\n", it.Kind, it.ID, it.Name, it.Created)
		}
	}

	var unresolved int
	for _, it := range r.Items {
		unresolved += len(it.Unresolved)
	}
	if unresolved > 0 {
		fmt.Fprintf(&sb, "\nUnresolved fields: %d\n", unresolved)
		for _, it := range r.Items {
			for _, u := range it.Unresolved {
				fmt.Fprintf(&sb, "   - %s %d: %s\n", it.Kind, it.ID, u)
			}
		}
	}
	return sb.String(), nil
}

// FormatMigration formats the decisions of one query migration as a compact summary.
func (summaryFormatter) FormatMigration(m *migration.Migration) (string, error) {
	if m == nil || len(m.Decisions) == 0 {
		return "No remap decisions.\n", nil
	}

	var sb strings.Builder

	unresolved := m.UnresolvedNotes()
	notes := m.InfoNotes()

	sb.WriteString("Remap Summary\n")
	sb.WriteString("=============\n\n")

	fmt.Fprintf(&sb, "Tables:  %d\n", m.Count(core.DecisionTable))
	fmt.Fprintf(&sb, "Joins:   %d\n", m.Count(core.DecisionJoin))
	fmt.Fprintf(&sb, "Mapped:  %d\n", m.Count(core.DecisionMapped))
	fmt.Fprintf(&sb, "Removed: %d\n", m.Count(core.DecisionRemoved))

	if len(unresolved) > 0 {
		fmt.Fprintf(&sb, "\nUnresolved Fields: %d\n", len(unresolved))
		for _, u := range unresolved {
			fmt.Fprintf(&sb, "   - %s\n", u)
		}
	}

	if len(notes) > 0 {
		fmt.Fprintf(&sb, "\nNotes: %d\n", len(notes))
		for _, n := range notes {
			fmt.Fprintf(&sb, "   - %s\n", n)
		}
	}

	return sb.String(), nil
}

// FormatTableDiff formats a table comparison.
func (summaryFormatter) FormatTableDiff(d *diff.TableDiff) (string, error) {
	if d == nil {
		return "No tables compared.\n", nil
	}
	return d.String(), nil
}

// FormatMappingCheck formats a mapping verification.
func (summaryFormatter) FormatMappingCheck(c *diff.MappingCheck) (string, error) {
	if c == nil {
		return "No mapping checked.\n", nil
	}
	return c.String(), nil
}
