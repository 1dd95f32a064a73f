// Package mysql reads MySQL-protocol SQL with the TiDB parser. Parser turns a
// DDL dump (for example the output of SHOW CREATE TABLE on StarRocks) into the
// shared schema view, and NativeAnalyzer inspects the native queries of
// Metabase cards.
package mysql

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // required to register TiDB parser driver implementations

	"mbmigrate/internal/core"
)

type Parser struct {
	p *parser.Parser
}

func NewParser() *Parser {
	return &Parser{
		p: parser.New(),
	}
}

// Parse reads every CREATE TABLE statement of a dump. Other statements are ignored.
func (p *Parser) Parse(sql string) (*core.Database, error) {
	stmtNodes, _, err := p.p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse DDL dump: %w", err)
	}

	db := &core.Database{
		Tables: []*core.Table{},
	}
	for _, stmtNode := range stmtNodes {
		if createStmt, ok := stmtNode.(*ast.CreateTableStmt); ok {
			db.Tables = append(db.Tables, p.convertCreateTable(createStmt))
		}
	}
	return db, nil
}

func (p *Parser) convertCreateTable(stmt *ast.CreateTableStmt) *core.Table {
	table := &core.Table{
		Schema:  stmt.Table.Schema.O,
		Name:    stmt.Table.Name.O,
		Columns: make([]*core.Column, 0, len(stmt.Cols)),
	}
	for _, opt := range stmt.Options {
		if opt.Tp == ast.TableOptionComment {
			table.Comment = opt.StrValue
		}
	}
	for _, colDef := range stmt.Cols {
		table.Columns = append(table.Columns, newColumnFromDef(colDef))
	}
	return table
}

func newColumnFromDef(colDef *ast.ColumnDef) *core.Column {
	typeRaw := colDef.Tp.String()
	col := &core.Column{
		Name:     colDef.Name.Name.O,
		TypeRaw:  typeRaw,
		Type:     core.NormalizeDataType(typeRaw),
		Nullable: true,
	}
	for _, opt := range colDef.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull, ast.ColumnOptionPrimaryKey:
			col.Nullable = false
		case ast.ColumnOptionNull:
			col.Nullable = true
		case ast.ColumnOptionComment:
			if s := exprToString(opt.Expr); s != nil {
				col.Comment = *s
			}
		}
	}
	return col
}

func exprToString(expr ast.ExprNode) *string {
	if expr == nil {
		return nil
	}

	var sb strings.Builder
	restoreCtx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := expr.Restore(restoreCtx); err != nil {
		return nil
	}
	s := strings.TrimSpace(sb.String())

	if unquoted, ok := tryUnquoteSQLStringLiteral(s); ok {
		return &unquoted
	}
	return &s
}

func tryUnquoteSQLStringLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}
