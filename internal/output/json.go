package output

import (
	"encoding/json"

	"mbmigrate/internal/core"
	"mbmigrate/internal/diff"
	"mbmigrate/internal/migration"
	"mbmigrate/internal/report"
)

type jsonFormatter struct{}

type migrationSummary struct {
	Mapped     int `json:"mapped"`
	Removed    int `json:"removed"`
	Unresolved int `json:"unresolved"`
	Notes      int `json:"notes"`
}

type migrationPayload struct {
	Format     string           `json:"format"`
	Summary    migrationSummary `json:"summary"`
	Unresolved []string         `json:"unresolved,omitempty"`
	Notes      []string         `json:"notes,omitempty"`
	Decisions  []core.Decision  `json:"decisions,omitempty"`
}

type tableDiffPayload struct {
	Format string          `json:"format"`
	Diff   *diff.TableDiff `json:"diff"`
}

type mappingCheckPayload struct {
	Format string             `json:"format"`
	Check  *diff.MappingCheck `json:"check"`
}

type Payload interface {
	migrationPayload | tableDiffPayload | mappingCheckPayload
}

// FormatReport writes the report exactly as it is saved to disk.
func (jsonFormatter) FormatReport(r *report.Report) (string, error) {
	if r == nil {
		return "null\n", nil
	}
	b, err := r.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (jsonFormatter) FormatMigration(m *migration.Migration) (string, error) {
	payload := migrationPayload{Format: string(FormatJSON)}
	if m != nil {
		unresolved := m.UnresolvedNotes()
		notes := m.InfoNotes()

		payload.Unresolved = unresolved
		payload.Notes = notes
		payload.Decisions = m.Plan()
		payload.Summary = migrationSummary{
			Mapped:     m.Count(core.DecisionMapped),
			Removed:    m.Count(core.DecisionRemoved),
			Unresolved: len(unresolved),
			Notes:      len(notes),
		}
	}
	return marshalJSON(payload)
}

func (jsonFormatter) FormatTableDiff(d *diff.TableDiff) (string, error) {
	return marshalJSON(tableDiffPayload{Format: string(FormatJSON), Diff: d})
}

func (jsonFormatter) FormatMappingCheck(c *diff.MappingCheck) (string, error) {
	return marshalJSON(mappingCheckPayload{Format: string(FormatJSON), Check: c})
}

func marshalJSON[T Payload](payload T) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
