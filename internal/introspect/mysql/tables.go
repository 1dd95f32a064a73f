package mysql

import (
	"database/sql"
	"fmt"

	"mbmigrate/internal/core"
)

func introspectTables(ic *introspectCtx, db *core.Database) error {
	rows, err := ic.db.QueryContext(ic.ctx, `
		SELECT table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name
	`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var comment sql.NullString
		if err := rows.Scan(&name, &comment); err != nil {
			return err
		}

		db.Tables = append(db.Tables, &core.Table{
			Schema:  db.Name,
			Name:    name,
			Comment: comment.String,
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Columns are read once the table cursor is closed.
	rows.Close()
	for _, t := range db.Tables {
		if err := introspectColumns(ic, t); err != nil {
			return fmt.Errorf("columns of %s: %w", t.Name, err)
		}
	}
	return nil
}

func introspectColumns(ic *introspectCtx, t *core.Table) error {
	rows, err := ic.db.QueryContext(ic.ctx, `
		SELECT
			c.column_name,
			c.column_type,
			c.column_comment,
			c.is_nullable
		FROM information_schema.columns c
		WHERE c.table_schema = DATABASE() AND c.table_name = ?
		ORDER BY c.ordinal_position
	`, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, colType, comment, nullable sql.NullString
		if err := rows.Scan(&name, &colType, &comment, &nullable); err != nil {
			return err
		}

		t.Columns = append(t.Columns, &core.Column{
			Name:     name.String,
			TypeRaw:  colType.String,
			Type:     core.NormalizeDataType(colType.String),
			Nullable: nullable.String == "YES",
			Comment:  comment.String,
		})
	}

	return rows.Err()
}
