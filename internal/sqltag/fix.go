package sqltag

import (
	"fmt"
	"regexp"
	"strings"

	"mbmigrate/internal/mbql"
)

var whereClauseRe = regexp.MustCompile(`(?is)\bwhere\b.*?(\bgroup\s+by\b|\border\s+by\b|\blimit\b|$)`)

// Fix rewrites n in place and returns a description of every change made.
// An empty result means the query already conforms.
func (i *Inspector) Fix(n *Native) []string {
	var changes []string

	if q, converted := convertSingleBrackets(n.Query, i.catalog); len(converted) > 0 {
		n.Query = q
		for _, name := range converted {
			changes = append(changes, fmt.Sprintf("converted {%s} to {{%s}}", name, name))
		}
	}

	for _, t := range i.catalog.tags {
		if t.Column == "" {
			continue
		}
		re := literalRe(t.Column)
		if !re.MatchString(n.Query) {
			continue
		}
		n.Query = re.ReplaceAllLiteralString(n.Query, "{{"+t.Name+"}}")
		changes = append(changes, fmt.Sprintf("replaced hardcoded %s with {{%s}}", t.Column, t.Name))
	}

	for _, t := range i.catalog.tags {
		if !t.RequiredInWhere {
			continue
		}
		f := i.analyze(n.Query)
		if !f.hasWhere || f.whereTags[t.Name] {
			continue
		}
		if q, ok := appendToWhere(n.Query, "{{"+t.Name+"}}"); ok {
			n.Query = q
			changes = append(changes, fmt.Sprintf("added 'and {{%s}}' to WHERE clause", t.Name))
		}
	}

	changes = append(changes, i.AddMissingTags(n)...)

	for _, t := range i.catalog.tags {
		if !n.hasDefault(t.Name) {
			continue
		}
		n.Tags.MappingAt(t.Name).Set("default", mbql.Null())
		changes = append(changes, fmt.Sprintf("removed default value from %s template tag", t.Name))
	}

	return changes
}

// AddMissingTags defines every catalog tag that the query references but n
// does not define yet.
func (i *Inspector) AddMissingTags(n *Native) []string {
	var changes []string
	for _, t := range i.catalog.tags {
		if n.HasTag(t.Name) || !tagRefRe(t.Name).MatchString(n.Query) {
			continue
		}
		n.Tags.Set(t.Name, t.Definition())
		changes = append(changes, fmt.Sprintf("added %s template tag", t.Name))
	}
	return changes
}

// FixBrackets only converts single-bracket tag references.
func (i *Inspector) FixBrackets(n *Native) []string {
	q, converted := convertSingleBrackets(n.Query, i.catalog)
	if len(converted) == 0 {
		return nil
	}
	n.Query = q
	changes := make([]string, 0, len(converted))
	for _, name := range converted {
		changes = append(changes, fmt.Sprintf("converted {%s} to {{%s}}", name, name))
	}
	return changes
}

// convertSingleBrackets rewrites {NAME} to {{NAME}} for catalog tags and
// returns the converted names in order of first occurrence.
func convertSingleBrackets(query string, catalog *Catalog) (string, []string) {
	var (
		sb        strings.Builder
		last      int
		converted []string
		seen      = map[string]bool{}
	)
	for _, m := range bracketRe.FindAllStringSubmatchIndex(query, -1) {
		name := query[m[2]:m[3]]
		if !isSingleBracket(query, m) {
			continue
		}
		if _, ok := catalog.Get(name); !ok {
			continue
		}
		sb.WriteString(query[last:m[0]])
		sb.WriteString("{{" + name + "}}")
		last = m[1]
		if !seen[name] {
			seen[name] = true
			converted = append(converted, name)
		}
	}
	if len(converted) == 0 {
		return query, nil
	}
	sb.WriteString(query[last:])
	return sb.String(), converted
}

// appendToWhere adds " and <expr>" at the end of the first WHERE clause,
// before any GROUP BY, ORDER BY or LIMIT.
func appendToWhere(query, expr string) (string, bool) {
	loc := whereClauseRe.FindStringSubmatchIndex(query)
	if loc == nil {
		return query, false
	}
	end := loc[2]
	clause := query[:end]
	trimmed := strings.TrimRight(clause, " \t\r\n;")
	return trimmed + " and " + expr + clause[len(trimmed):] + query[end:], true
}
