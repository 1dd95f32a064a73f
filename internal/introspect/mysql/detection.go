package mysql

import (
	"context"
	"database/sql"
	"strings"

	"mbmigrate/internal/core"
)

func detectDialect(ctx context.Context, db *sql.DB) (core.Dialect, string, error) {
	var varName, comment string

	err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'version_comment'").Scan(&varName, &comment)
	if err != nil {
		return "", "", err
	}

	dialect := dialectFromComment(comment)
	if dialect == core.DialectStarRocks {
		return dialect, starRocksVersion(ctx, db), nil
	}
	return dialect, getVersion(ctx, db), nil
}

func dialectFromComment(comment string) core.Dialect {
	comment = strings.ToLower(comment)

	switch {
	case strings.Contains(comment, "starrocks"):
		return core.DialectStarRocks
	case strings.Contains(comment, "mariadb"):
		return core.DialectMariaDB
	case strings.Contains(comment, "tidb"):
		return core.DialectTiDB
	default:
		return core.DialectMySQL
	}
}

func getVersion(ctx context.Context, db *sql.DB) string {
	var version string
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version)
	return trimVersion(version)
}

// VERSION() on StarRocks reports the emulated MySQL version.
func starRocksVersion(ctx context.Context, db *sql.DB) string {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT current_version()").Scan(&version); err != nil {
		return getVersion(ctx, db)
	}
	if idx := strings.Index(version, " "); idx > 0 {
		version = version[:idx]
	}
	return trimVersion(version)
}

func trimVersion(version string) string {
	if idx := strings.Index(version, "-"); idx > 0 {
		version = version[:idx]
	}
	return version
}
