package sqltag

import (
	"fmt"
	"regexp"
	"strings"

	"mbmigrate/internal/parser/mysql"
)

// FindingKind classifies a template tag problem.
type FindingKind string

const (
	KindHardcodedLiteral FindingKind = "hardcoded-literal"
	KindMissingTag       FindingKind = "missing-tag"
	KindTagDefault       FindingKind = "tag-default"
	KindMissingInWhere   FindingKind = "missing-in-where"
	KindSingleBracket    FindingKind = "single-bracket"
)

// Finding is one problem found in a native query.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	Tag     string      `json:"tag"`
	Message string      `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

var (
	whereRe   = regexp.MustCompile(`(?i)\bwhere\b`)
	bracketRe = regexp.MustCompile(`\{+([A-Za-z_][A-Za-z0-9_]*)\}+`)
)

func literalRe(column string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:\b[A-Za-z_][A-Za-z0-9_]*\.)?\b` + regexp.QuoteMeta(column) + `\s*=\s*(?:'[^']*'|"[^"]*")`)
}

func tagRefRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
}

// Inspector checks native queries against a catalog.
type Inspector struct {
	catalog  *Catalog
	analyzer *mysql.NativeAnalyzer
}

func NewInspector(catalog *Catalog) *Inspector {
	return &Inspector{
		catalog:  catalog,
		analyzer: mysql.NewNativeAnalyzer(),
	}
}

// facts is what the inspector knows about one query text.
type facts struct {
	hasWhere  bool
	whereTags map[string]bool
	literals  map[string]bool
}

// analyze prefers the SQL parser and falls back to text matching when the
// query does not parse.
func (i *Inspector) analyze(query string) facts {
	f := facts{whereTags: map[string]bool{}, literals: map[string]bool{}}
	a, err := i.analyzer.Analyze(query)
	if err != nil {
		f.hasWhere = whereRe.MatchString(query)
		where := whereClauses(query)
		for _, t := range i.catalog.tags {
			if tagRefRe(t.Name).MatchString(where) {
				f.whereTags[t.Name] = true
			}
			if t.Column != "" && literalRe(t.Column).MatchString(query) {
				f.literals[strings.ToUpper(t.Column)] = true
			}
		}
		return f
	}
	f.hasWhere = a.HasWhere
	for _, name := range a.WhereTags {
		f.whereTags[name] = true
	}
	for _, lit := range a.Literals {
		f.literals[strings.ToUpper(lit.Column)] = true
	}
	return f
}

// whereClauses returns the text of every WHERE clause, each up to the next
// GROUP BY, ORDER BY or LIMIT.
func whereClauses(query string) string {
	var sb strings.Builder
	for _, loc := range whereClauseRe.FindAllStringSubmatchIndex(query, -1) {
		sb.WriteString(query[loc[0]:loc[2]])
		sb.WriteString("\n")
	}
	return sb.String()
}

// Inspect returns the problems of n in catalog order.
func (i *Inspector) Inspect(n *Native) []Finding {
	f := i.analyze(n.Query)
	single := singleBracketNames(n.Query)

	var out []Finding
	for _, t := range i.catalog.tags {
		if single[t.Name] {
			out = append(out, Finding{
				Kind:    KindSingleBracket,
				Tag:     t.Name,
				Message: fmt.Sprintf("{%s} should be {{%s}}", t.Name, t.Name),
			})
		}
		if t.Column != "" && f.literals[strings.ToUpper(t.Column)] {
			out = append(out, Finding{
				Kind:    KindHardcodedLiteral,
				Tag:     t.Name,
				Message: fmt.Sprintf("has hardcoded %s that should be replaced with {{%s}}", t.Column, t.Name),
			})
			if !n.HasTag(t.Name) {
				out = append(out, Finding{
					Kind:    KindMissingTag,
					Tag:     t.Name,
					Message: fmt.Sprintf("has hardcoded %s but no %s template tag", t.Column, t.Name),
				})
			}
		}
		if n.hasDefault(t.Name) {
			out = append(out, Finding{
				Kind:    KindTagDefault,
				Tag:     t.Name,
				Message: fmt.Sprintf("%s template tag has default value that should be removed", t.Name),
			})
		}
		if t.RequiredInWhere && f.hasWhere && !f.whereTags[t.Name] {
			out = append(out, Finding{
				Kind:    KindMissingInWhere,
				Tag:     t.Name,
				Message: fmt.Sprintf("missing {{%s}} in WHERE clause", t.Name),
			})
		}
	}
	return out
}

// singleBracketNames returns the names written as {NAME}. Runs of two or more
// braces on either side are left alone.
func singleBracketNames(query string) map[string]bool {
	out := map[string]bool{}
	for _, m := range bracketRe.FindAllStringSubmatchIndex(query, -1) {
		if isSingleBracket(query, m) {
			out[query[m[2]:m[3]]] = true
		}
	}
	return out
}

func isSingleBracket(query string, m []int) bool {
	return m[2]-m[0] == 1 && m[1]-m[3] == 1
}
