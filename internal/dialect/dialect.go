// Package dialect provides a unified interface for translating native SQL
// between the engines behind Metabase databases. Translators register
// themselves per source and target dialect.
package dialect

import (
	"fmt"
	"sort"
	"strings"
)

type Type string

const (
	Exasol    Type = "exasol"
	StarRocks Type = "starrocks"
)

// Rewrite counts the occurrences of one function or keyword that were replaced.
type Rewrite struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// Result is the outcome of translating one query.
type Result struct {
	SQL      string    `json:"sql"`
	Rewrites []Rewrite `json:"rewrites,omitempty"`
	// Warnings lists problems the translation could not fix, for example
	// output the target parser rejects.
	Warnings []string `json:"warnings,omitempty"`
}

// Changed reports whether any rewrite was applied.
func (r *Result) Changed() bool {
	return len(r.Rewrites) > 0
}

// Translator rewrites SQL of one dialect into another.
type Translator interface {
	Source() Type
	Target() Type
	Translate(sql string) *Result
}

// Options customize a translator. Functions maps source function or keyword
// names to target names and is merged over the translator's defaults.
type Options struct {
	Functions map[string]string
}

type pair struct {
	from, to Type
}

var registry = map[pair]func(Options) Translator{}

// RegisterTranslator creates a new registry entry for translations from one
// dialect to another.
func RegisterTranslator(from, to Type, ctor func(Options) Translator) {
	registry[pair{from, to}] = ctor
}

// GetTranslator returns the translator registered for the dialect pair.
func GetTranslator(from, to Type, opts Options) (Translator, error) {
	ctor, ok := registry[pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("no translator from %s to %s (available: %s)", from, to, available())
	}
	return ctor(opts), nil
}

func available() string {
	names := make([]string, 0, len(registry))
	for p := range registry {
		names = append(names, string(p.from)+"->"+string(p.to))
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
