// Package starrocks translates Exasol SQL into SQL accepted by StarRocks.
// StarRocks speaks the MySQL protocol, so translated queries are checked with
// the MySQL parser.
package starrocks

import (
	"fmt"
	"strings"

	"mbmigrate/internal/dialect"
	"mbmigrate/internal/parser/mysql"
)

func init() {
	dialect.RegisterTranslator(dialect.Exasol, dialect.StarRocks, func(opts dialect.Options) dialect.Translator {
		return NewTranslator(opts)
	})
}

// DefaultFunctions returns the Exasol to StarRocks function renames. A target
// ending in "()" also replaces the bare keyword form, e.g. CURRENT_DATE.
func DefaultFunctions() map[string]string {
	return map[string]string{
		"ADD_DAYS":          "DATE_ADD",
		"ADD_WEEKS":         "WEEKS_ADD",
		"ADD_YEARS":         "YEARS_ADD",
		"ADD_HOURS":         "HOURS_ADD",
		"ADD_MINUTES":       "MINUTES_ADD",
		"ADD_SECONDS":       "SECONDS_ADD",
		"DAYS_BETWEEN":      "DATEDIFF",
		"MONTHS_BETWEEN":    "MONTHS_DIFF",
		"SECONDS_BETWEEN":   "SECONDS_DIFF",
		"SUBSTR":            "SUBSTRING",
		"INSTR":             "LOCATE",
		"NVL":               "IFNULL",
		"CURRENT_TIMESTAMP": "NOW()",
		"SYSTIMESTAMP":      "NOW()",
		"CURRENT_DATE":      "CURDATE()",
	}
}

type rule struct {
	from string
	to   string
	// swap exchanges the first two arguments, as LOCATE takes the needle first.
	swap bool
}

// Translator rewrites Exasol function calls. String literals, quoted
// identifiers, comments and {{template tags}} are copied unchanged.
type Translator struct {
	rules    map[string]rule
	analyzer *mysql.NativeAnalyzer
}

// NewTranslator merges opts.Functions over DefaultFunctions. An empty target
// disables a default rename.
func NewTranslator(opts dialect.Options) *Translator {
	funcs := DefaultFunctions()
	for from, to := range opts.Functions {
		funcs[strings.ToUpper(strings.TrimSpace(from))] = to
	}

	t := &Translator{
		rules:    make(map[string]rule, len(funcs)),
		analyzer: mysql.NewNativeAnalyzer(),
	}
	for from, to := range funcs {
		to = strings.TrimSpace(to)
		if from == "" || to == "" {
			continue
		}
		t.rules[from] = rule{
			from: from,
			to:   to,
			swap: from == "INSTR" && strings.EqualFold(to, "LOCATE"),
		}
	}
	return t
}

func (t *Translator) Source() dialect.Type { return dialect.Exasol }
func (t *Translator) Target() dialect.Type { return dialect.StarRocks }

// Translate rewrites sql. When something changed and the result is not valid
// MySQL-flavoured SQL a warning is attached; the rewrite is still returned.
func (t *Translator) Translate(sql string) *dialect.Result {
	tr := &translation{rules: t.rules, counts: map[string]int{}}
	res := &dialect.Result{SQL: tr.rewrite(sql)}
	for _, from := range tr.order {
		r := t.rules[from]
		res.Rewrites = append(res.Rewrites, dialect.Rewrite{From: from, To: r.to, Count: tr.counts[from]})
	}
	if res.Changed() {
		if _, err := t.analyzer.Analyze(res.SQL); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("translated SQL does not parse: %v", err))
		}
	}
	return res
}

type translation struct {
	rules  map[string]rule
	counts map[string]int
	order  []string
}

func (tr *translation) hit(from string) {
	if tr.counts[from] == 0 {
		tr.order = append(tr.order, from)
	}
	tr.counts[from]++
}

func (tr *translation) rewrite(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(sql, i)
			sb.WriteString(sql[i:j])
			i = j
		case strings.HasPrefix(sql[i:], "--"):
			j := indexFrom(sql, i, "\n", 0)
			sb.WriteString(sql[i:j])
			i = j
		case strings.HasPrefix(sql[i:], "/*"):
			j := indexFrom(sql, i+2, "*/", 2)
			sb.WriteString(sql[i:j])
			i = j
		case strings.HasPrefix(sql[i:], "{{"):
			j := indexFrom(sql, i+2, "}}", 2)
			sb.WriteString(sql[i:j])
			i = j
		case isIdentStart(c):
			i = tr.word(&sb, sql, i)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// word handles the identifier starting at i and returns the index after
// everything it consumed.
func (tr *translation) word(sb *strings.Builder, sql string, i int) int {
	j := i + 1
	for j < len(sql) && isIdentPart(sql[j]) {
		j++
	}
	name := sql[i:j]
	r, ok := tr.rules[strings.ToUpper(name)]
	if !ok || (i > 0 && sql[i-1] == '.') {
		sb.WriteString(name)
		return j
	}

	k := j
	for k < len(sql) && isSpace(sql[k]) {
		k++
	}
	call := k < len(sql) && sql[k] == '('
	switch {
	case call && r.swap:
		end := matchParen(sql, k)
		if end < 0 {
			break
		}
		tr.hit(r.from)
		args := splitArgs(sql[k+1 : end-1])
		for n := range args {
			args[n] = strings.TrimSpace(tr.rewrite(args[n]))
		}
		if len(args) >= 2 {
			args[0], args[1] = args[1], args[0]
		}
		sb.WriteString(r.to + "(" + strings.Join(args, ", ") + ")")
		return end
	case call:
		tr.hit(r.from)
		sb.WriteString(strings.TrimSuffix(r.to, "()"))
		return j
	case strings.HasSuffix(r.to, "()"):
		tr.hit(r.from)
		sb.WriteString(r.to)
		return j
	}
	sb.WriteString(name)
	return j
}

// indexFrom returns the index just past sep, searching from start, or
// len(s) when sep does not occur.
func indexFrom(s string, start int, sep string, width int) int {
	n := strings.Index(s[start:], sep)
	if n < 0 {
		return len(s)
	}
	return start + n + width
}

// skipQuoted returns the index after the quoted section starting at i.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// matchParen returns the index after the parenthesis closing the one at
// open, or -1 when it is unbalanced.
func matchParen(s string, open int) int {
	depth := 0
	for j := open; j < len(s); {
		switch s[j] {
		case '\'', '"', '`':
			j = skipQuoted(s, j)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
		j++
	}
	return -1
}

// splitArgs splits an argument list at top-level commas.
func splitArgs(s string) []string {
	var (
		args  []string
		depth int
		start int
	)
	for j := 0; j < len(s); {
		switch s[j] {
		case '\'', '"', '`':
			j = skipQuoted(s, j)
			continue
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, s[start:j])
				start = j + 1
			}
		}
		j++
	}
	return append(args, s[start:])
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
