package parser

import (
	"fmt"
	"os"

	"mbmigrate/internal/core"
	"mbmigrate/internal/parser/mysql"
)

// SQLParser reads DDL dumps such as the concatenated SHOW CREATE TABLE output
// of the target database.
type SQLParser struct {
	mysqlParser *mysql.Parser
}

func NewSQLParser() *SQLParser {
	return &SQLParser{
		mysqlParser: mysql.NewParser(),
	}
}

func (p *SQLParser) ParseSchema(sql string) (*core.Database, error) {
	return p.mysqlParser.Parse(sql)
}

// ParseSchemaFile reads and parses the DDL dump at path.
func (p *SQLParser) ParseSchemaFile(path string) (*core.Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read DDL dump %q: %w", path, err)
	}
	db, err := p.ParseSchema(string(data))
	if err != nil {
		return nil, err
	}
	d := core.DialectStarRocks
	db.Dialect = &d
	return db, nil
}
