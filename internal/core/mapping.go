package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyTarget is returned when a mapping entry has no target table.
var ErrEmptyTarget = errors.New("empty target table name")

// TableMapping maps source table names to target table names. Keys are
// compared case-insensitively.
type TableMapping struct {
	entries map[string]MappingEntry
}

// MappingEntry is a single source to target pair as written in the mapping file.
type MappingEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewTableMapping builds a mapping from pairs. An empty target, or two sources
// differing only in case with different targets, is an error.
func NewTableMapping(pairs map[string]string) (*TableMapping, error) {
	m := &TableMapping{entries: make(map[string]MappingEntry, len(pairs))}
	sources := make([]string, 0, len(pairs))
	for src := range pairs {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		if err := m.Add(src, pairs[src]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add inserts one entry.
func (m *TableMapping) Add(source, target string) error {
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	if source == "" {
		return fmt.Errorf("table mapping: empty source table name")
	}
	if target == "" {
		return fmt.Errorf("table mapping %q: %w", source, ErrEmptyTarget)
	}
	if m.entries == nil {
		m.entries = make(map[string]MappingEntry)
	}
	key := strings.ToLower(source)
	if prev, ok := m.entries[key]; ok && !strings.EqualFold(prev.Target, target) {
		return fmt.Errorf("table mapping: %q and %q map to different targets (%q, %q)",
			prev.Source, source, prev.Target, target)
	}
	m.entries[key] = MappingEntry{Source: source, Target: target}
	return nil
}

// Len returns the number of entries.
func (m *TableMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns all entries sorted by source name.
func (m *TableMapping) Entries() []MappingEntry {
	if m == nil {
		return nil
	}
	out := make([]MappingEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Source) < strings.ToLower(out[j].Source)
	})
	return out
}

// LookupCandidates returns the spellings tried by Lookup, in order: the name as
// given, upper case, lower case, the unqualified name in upper and lower case,
// and finally the numeric id. Duplicates are kept out.
func LookupCandidates(name string, id int64) []string {
	name = strings.TrimSpace(name)
	out := make([]string, 0, 6)
	seen := make(map[string]struct{}, 6)
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	add(name)
	add(strings.ToUpper(name))
	add(strings.ToLower(name))
	if _, bare := SplitQualified(name); bare != name {
		add(strings.ToUpper(bare))
		add(strings.ToLower(bare))
	}
	if id > 0 {
		add(strconv.FormatInt(id, 10))
	}
	return out
}

// Lookup returns the target table for a source table known by name and id.
// The second result is false when no candidate spelling has an entry, which is
// different from any mapped value.
func (m *TableMapping) Lookup(name string, id int64) (string, bool) {
	if m.Len() == 0 {
		return "", false
	}
	for _, c := range LookupCandidates(name, id) {
		if e, ok := m.entries[strings.ToLower(c)]; ok {
			return e.Target, true
		}
	}
	return "", false
}
