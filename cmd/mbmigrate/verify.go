package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mbmigrate/internal/core"
	"mbmigrate/internal/diff"
	"mbmigrate/internal/introspect"
	"mbmigrate/internal/introspect/mysql"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/parser"
	"mbmigrate/internal/report"
)

func newVerifyMappingCmd(a *app) *cobra.Command {
	var mappingFile string
	var ddlFile string
	var dsn string

	cmd := &cobra.Command{
		Use:   "verify-mapping",
		Short: "Check that every mapped target table exists",
		Long: `Verify-mapping loads the table mapping and checks each target table against
one of, in order of preference:
  - a DDL dump of the target schema (--ddl)
  - the StarRocks database itself over the MySQL protocol (--dsn or [starrocks] dsn)
  - the target database as Metabase has synced it

Examples:
  mbmigrate verify-mapping --ddl starrocks_schema.sql
  mbmigrate verify-mapping --dsn "root@tcp(starrocks:9030)/analytics"
  mbmigrate verify-mapping --mapping table_mapping.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mappingFile != "" {
				a.cfg.Migration.MappingFile = mappingFile
			}
			if dsn != "" {
				a.cfg.StarRocks.DSN = dsn
			}
			mapping, err := parser.ParseMappingFile(a.cfg.Migration.MappingFile)
			if err != nil {
				return fmt.Errorf("failed to load table mapping: %w", err)
			}

			db, source, err := a.targetSchema(cmd.Context(), ddlFile)
			if err != nil {
				return err
			}
			a.printInfo(fmt.Sprintf("Checking %d mapped tables against %s (%d tables)", mapping.Len(), source, len(db.Tables)))

			check := diff.CheckMapping(mapping, db)
			formatted, err := a.formatter.FormatMappingCheck(check)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			_, _ = fmt.Fprint(a.stdout, formatted)

			rep := report.New("verify_mapping", source, true)
			for _, e := range check.Missing {
				rep.Add(report.Item{Kind: "table", Name: e.Source, Status: report.StatusFailed,
					Error: fmt.Sprintf("target table %s does not exist", e.Target)})
			}
			rep.Extra = check
			if err := a.saveReport(rep); err != nil {
				return err
			}
			if !check.OK() {
				return fmt.Errorf("%w: %d mapped target tables are missing", errItemsFailed, len(check.Missing))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "Table mapping file (overrides config)")
	cmd.Flags().StringVar(&ddlFile, "ddl", "", "CREATE TABLE dump of the target schema")
	cmd.Flags().StringVar(&dsn, "dsn", "", "StarRocks connection string, e.g. user:pass@tcp(host:9030)/db (overrides config)")
	return cmd
}

// targetSchema returns the target tables and a short name of where they came from.
func (a *app) targetSchema(ctx context.Context, ddlFile string) (*core.Database, string, error) {
	switch {
	case ddlFile != "":
		db, err := parser.NewSQLParser().ParseSchemaFile(ddlFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse target schema: %w", err)
		}
		return db, "ddl", nil
	case a.cfg.StarRocks.DSN != "":
		db, err := a.introspectTarget(ctx, a.cfg.StarRocks.DSN)
		if err != nil {
			return nil, "", err
		}
		return db, "starrocks", nil
	default:
		sess, err := a.session(ctx)
		if err != nil {
			return nil, "", err
		}
		md, err := sess.DatabaseMetadata(ctx, a.cfg.Migration.TargetDatabaseID)
		if err != nil {
			return nil, "", fmt.Errorf("target database %d metadata: %w", a.cfg.Migration.TargetDatabaseID, err)
		}
		return metadataDatabase(md), "metabase", nil
	}
}

func (a *app) introspectTarget(ctx context.Context, dsn string) (*core.Database, error) {
	conn, err := mysql.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			a.logger.Warn("failed to close database connection", "error", err)
		}
	}()

	dialect := a.cfg.StarRocks.TargetDialect()
	i, err := introspect.NewIntrospecter(dialect)
	if err != nil {
		return nil, err
	}
	db, err := i.Introspect(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("introspect target: %w", err)
	}
	if db.Dialect != nil && *db.Dialect != dialect {
		a.logger.Warn("target database dialect differs from configuration", "configured", dialect, "dialect", *db.Dialect, "version", db.Version)
	}
	return db, nil
}

// metadataDatabase converts synced Metabase metadata to the schema view.
func metadataDatabase(md *metabase.DatabaseMetadata) *core.Database {
	d := core.DialectStarRocks
	db := &core.Database{ID: md.ID, Name: md.Name, Dialect: &d}
	for i := range md.Tables {
		db.Tables = append(db.Tables, md.Tables[i].CoreTable())
	}
	return db
}
