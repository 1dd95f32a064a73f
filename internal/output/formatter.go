// Package output provides a set of formatters for run reports, remap decisions
// and table comparisons. It is extendable and for now provides two formats:
// JSON and a human readable summary.
package output

import (
	"fmt"
	"strings"

	"mbmigrate/internal/diff"
	"mbmigrate/internal/migration"
	"mbmigrate/internal/report"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// Formatter is an interface for formatting command results.
type Formatter interface {
	FormatReport(*report.Report) (string, error)
	FormatMigration(*migration.Migration) (string, error)
	FormatTableDiff(*diff.TableDiff) (string, error)
	FormatMappingCheck(*diff.MappingCheck) (string, error)
}

// NewFormatter creates a new Formatter instance based on the given name.
// If no format is specified, defaults to the summary format.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatSummary:
		return summaryFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'json' or 'summary'", name)
	}
}
