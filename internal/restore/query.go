package restore

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"mbmigrate/internal/sqltag"
)

// Template placeholders.
const (
	SelectPlaceholder  = "{select}"
	GroupByPlaceholder = "{group_by}"
)

// DefaultSelect fills the select list of cards without an entry.
const DefaultSelect = `count(*) as "Count"`

var (
	selectRe = regexp.MustCompile(`(?i)\bselect\b`)
	fromRe   = regexp.MustCompile(`(?i)\bfrom\b`)
)

// QueryParts are the card specific pieces put into the template.
type QueryParts struct {
	Select  string `yaml:"select"`
	GroupBy string `yaml:"group_by"`
}

// Queries rebuilds native queries from a shared template.
type Queries struct {
	Template      string                `yaml:"template"`
	DefaultSelect string                `yaml:"default_select"`
	Cards         map[string]QueryParts `yaml:"cards"`
}

// LoadQueries reads and validates a query template file.
func LoadQueries(path string) (*Queries, error) {
	var q Queries
	if err := decodeFile(path, &q); err != nil {
		return nil, err
	}
	return &q, q.validate()
}

// ParseQueries is LoadQueries for an open reader.
func ParseQueries(r io.Reader) (*Queries, error) {
	var q Queries
	if err := decode(r, &q); err != nil {
		return nil, err
	}
	return &q, q.validate()
}

func (q *Queries) validate() error {
	if !strings.Contains(q.Template, SelectPlaceholder) {
		return fmt.Errorf("restore: template must contain %s", SelectPlaceholder)
	}
	if q.DefaultSelect == "" {
		q.DefaultSelect = DefaultSelect
	}
	return nil
}

// IsComplete reports whether query still has both a SELECT and a FROM.
func IsComplete(query string) bool {
	return selectRe.MatchString(query) && fromRe.MatchString(query)
}

// Build returns the query for the card called name.
func (q *Queries) Build(name string) string {
	parts := q.Cards[name]
	sel := parts.Select
	if sel == "" {
		sel = q.DefaultSelect
	}
	out := strings.NewReplacer(SelectPlaceholder, sel, GroupByPlaceholder, parts.GroupBy).Replace(q.Template)
	return strings.TrimRight(out, " \t\r\n")
}

// Restore replaces the query of n, the native query of the card called name,
// when it is incomplete or force is set.
func (q *Queries) Restore(n *sqltag.Native, name string, force bool) []string {
	if IsComplete(n.Query) && !force {
		return nil
	}
	rebuilt := q.Build(name)
	if rebuilt == n.Query {
		return nil
	}
	n.Query = rebuilt
	if q.Cards[name].Select != "" {
		return []string{"query rebuilt from template with the card's select list"}
	}
	return []string{"query rebuilt from template with the default select list"}
}
