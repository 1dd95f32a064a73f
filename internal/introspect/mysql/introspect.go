// Package mysql contains the introspect implementation for StarRocks, MySQL, MariaDB
// and TiDB. They all speak the MySQL protocol and expose information_schema, so one
// implementation detects which engine it talks to and reads the connected schema
// into core.Database.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"mbmigrate/internal/core"
	"mbmigrate/internal/introspect"
)

func init() {
	introspect.Register(core.DialectStarRocks, New)
	introspect.Register(core.DialectMySQL, New)
	introspect.Register(core.DialectMariaDB, New)
	introspect.Register(core.DialectTiDB, New)
}

type introspecter struct{}

type introspectCtx struct {
	dialect core.Dialect
	version string
	db      *sql.DB
	ctx     context.Context
}

func New() introspect.Introspecter {
	return &introspecter{}
}

// Open connects to dsn and pings the server. The caller closes the pool.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %v; additionally failed to close connection: %w", pingErr, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

func (i *introspecter) Introspect(ctx context.Context, db *sql.DB) (*core.Database, error) {
	d := new(core.Database)
	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return nil, fmt.Errorf("read current database: %w", err)
	}
	if !name.Valid || name.String == "" {
		return nil, fmt.Errorf("no database selected; add one to the DSN")
	}
	d.Name = name.String

	dialect, version, err := detectDialect(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("detect dialect: %w", err)
	}
	d.Dialect = &dialect
	d.Version = version

	ic := &introspectCtx{
		dialect: dialect,
		version: version,
		db:      db,
		ctx:     ctx,
	}
	if err := introspectTables(ic, d); err != nil {
		return nil, err
	}

	return d, nil
}
