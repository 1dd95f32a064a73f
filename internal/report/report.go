// Package report collects the per-item outcome of a command run and writes it
// as one JSON file per run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Status is the outcome of one item.
type Status string

const (
	StatusUpdated Status = "updated"
	// StatusPlanned marks an item that would have been updated in a dry run.
	StatusPlanned   Status = "planned"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Item is the outcome for one card or metric. Created is the id of the copy
// written by a command that creates items instead of updating them.
type Item struct {
	Kind       string   `json:"kind"`
	ID         int64    `json:"id"`
	Created    int64    `json:"created,omitempty"`
	Name       string   `json:"name,omitempty"`
	Status     Status   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
	Changes    []string `json:"changes,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Summary counts items per status. Processed counts every item.
type Summary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Planned   int `json:"planned"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Report is the outcome of one command run.
type Report struct {
	Command string  `json:"command"`
	Target  string  `json:"target"`
	DryRun  bool    `json:"dryRun"`
	Summary Summary `json:"summary"`
	Items   []Item  `json:"items"`
	// Extra carries command specific data, for example metric suggestions.
	Extra any `json:"extra,omitempty"`
}

func New(command, target string, dryRun bool) *Report {
	return &Report{
		Command: command,
		Target:  target,
		DryRun:  dryRun,
		Items:   []Item{},
	}
}

// Add records it and updates the summary.
func (r *Report) Add(it Item) {
	r.Items = append(r.Items, it)
	r.Summary.Processed++
	switch it.Status {
	case StatusUpdated:
		r.Summary.Updated++
	case StatusPlanned:
		r.Summary.Planned++
	case StatusUnchanged:
		r.Summary.Unchanged++
	case StatusSkipped:
		r.Summary.Skipped++
	case StatusFailed:
		r.Summary.Failed++
	}
}

// HasFailures reports whether any item failed.
func (r *Report) HasFailures() bool {
	return r.Summary.Failed > 0
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName returns "<command>_<target>_report.json".
func (r *Report) FileName() string {
	return fmt.Sprintf("%s_%s_report.json",
		unsafeNameRe.ReplaceAllString(r.Command, "_"),
		unsafeNameRe.ReplaceAllString(r.Target, "_"))
}

// Marshal returns the indented JSON form of r.
func (r *Report) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save writes r to FileName inside dir and returns the path written.
func (r *Report) Save(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	data, err := r.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
