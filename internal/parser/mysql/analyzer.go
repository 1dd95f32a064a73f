package mysql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
)

// TagPlaceholderPrefix starts the identifiers that stand in for template tags
// while a native query is parsed.
const TagPlaceholderPrefix = "__mbtag_"

var (
	tagRe           = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	optionalBlockRe = regexp.MustCompile(`\[\[|\]\]`)
)

// Literal is a "column = 'value'" predicate found in a WHERE clause.
type Literal struct {
	Table  string
	Column string
	Value  string
}

// NativeAnalysis contains the results of analyzing a native query.
type NativeAnalysis struct {
	HasWhere bool
	// Tags lists the template tags referenced anywhere, in order of first use.
	Tags []string
	// WhereTags lists the template tags referenced inside a WHERE clause.
	WhereTags []string
	Literals  []Literal
}

// NativeAnalyzer uses TiDB's AST parser to inspect Metabase native queries.
type NativeAnalyzer struct {
	parser *parser.Parser
}

// NewNativeAnalyzer creates a new AST-based native query analyzer.
func NewNativeAnalyzer() *NativeAnalyzer {
	return &NativeAnalyzer{
		parser: parser.New(),
	}
}

// PrepareNative makes a native query parseable: optional [[...]] blocks are
// unwrapped and {{tag}} references become identifiers.
func PrepareNative(sql string) string {
	sql = optionalBlockRe.ReplaceAllString(sql, " ")
	return tagRe.ReplaceAllString(sql, TagPlaceholderPrefix+"$1")
}

// Analyze parses sql and reports its WHERE clauses, template tags and
// hardcoded literal predicates. An error means the query is not valid
// MySQL-flavoured SQL; callers fall back to text matching.
func (a *NativeAnalyzer) Analyze(sql string) (*NativeAnalysis, error) {
	stmtNodes, _, err := a.parser.Parse(PrepareNative(sql), "", "")
	if err != nil {
		return nil, fmt.Errorf("parse native query: %w", err)
	}

	v := &nativeVisitor{seen: make(map[string]struct{}), seenWhere: make(map[string]struct{})}
	for _, stmt := range stmtNodes {
		stmt.Accept(v)
	}
	for _, sel := range v.selects {
		if sel.Where == nil {
			continue
		}
		v.analysis.HasWhere = true
		pv := &predicateVisitor{parent: v}
		sel.Where.Accept(pv)
	}
	return &v.analysis, nil
}

type nativeVisitor struct {
	analysis  NativeAnalysis
	selects   []*ast.SelectStmt
	seen      map[string]struct{}
	seenWhere map[string]struct{}
}

func (v *nativeVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.SelectStmt:
		v.selects = append(v.selects, node)
	case *ast.ColumnNameExpr:
		if tag, ok := placeholderTag(node); ok {
			if _, dup := v.seen[tag]; !dup {
				v.seen[tag] = struct{}{}
				v.analysis.Tags = append(v.analysis.Tags, tag)
			}
		}
	}
	return n, false
}

func (v *nativeVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

// predicateVisitor walks one WHERE expression.
type predicateVisitor struct {
	parent *nativeVisitor
}

func (v *predicateVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.SubqueryExpr:
		// Nested selects are analyzed on their own.
		return n, true
	case *ast.ColumnNameExpr:
		if tag, ok := placeholderTag(node); ok {
			if _, dup := v.parent.seenWhere[tag]; !dup {
				v.parent.seenWhere[tag] = struct{}{}
				v.parent.analysis.WhereTags = append(v.parent.analysis.WhereTags, tag)
			}
		}
	case *ast.BinaryOperationExpr:
		if lit, ok := literalPredicate(node); ok {
			v.parent.analysis.Literals = append(v.parent.analysis.Literals, lit)
		}
	}
	return n, false
}

func (v *predicateVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func placeholderTag(c *ast.ColumnNameExpr) (string, bool) {
	if c.Name == nil {
		return "", false
	}
	name := c.Name.Name.O
	if !strings.HasPrefix(name, TagPlaceholderPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, TagPlaceholderPrefix), true
}

// literalPredicate matches "col = 'text'" in either operand order.
func literalPredicate(b *ast.BinaryOperationExpr) (Literal, bool) {
	if b.Op != opcode.EQ {
		return Literal{}, false
	}
	col, val := b.L, b.R
	if _, ok := col.(*ast.ColumnNameExpr); !ok {
		col, val = val, col
	}
	c, ok := col.(*ast.ColumnNameExpr)
	if !ok || c.Name == nil {
		return Literal{}, false
	}
	if _, isTag := placeholderTag(c); isTag {
		return Literal{}, false
	}
	v, ok := val.(ast.ValueExpr)
	if !ok {
		return Literal{}, false
	}
	s, ok := v.GetValue().(string)
	if !ok {
		return Literal{}, false
	}
	return Literal{Table: c.Name.Table.O, Column: c.Name.Name.O, Value: s}, true
}
