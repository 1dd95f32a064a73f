package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mbmigrate/internal/core"
	"mbmigrate/internal/diff"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/parser"
)

func newCompareTablesCmd(a *app) *cobra.Command {
	var mappingFile string
	var ddlFile string

	cmd := &cobra.Command{
		Use:   "compare-tables <source-table-id> [target-table]",
		Short: "Compare the columns of a source table with its StarRocks table",
		Long: `Compare-tables lists the columns a remap would drop, the columns only the
target has and the columns whose type changed. The target is a Metabase table
id or name in the target database; without one it comes from the table mapping.
With --ddl the target columns are read from a CREATE TABLE dump instead.

Examples:
  mbmigrate compare-tables 5
  mbmigrate compare-tables 5 sr_orders
  mbmigrate compare-tables 5 50
  mbmigrate compare-tables 5 --ddl starrocks_schema.sql`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sourceID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || sourceID <= 0 {
				return fmt.Errorf("invalid source table id %q", args[0])
			}
			if mappingFile != "" {
				a.cfg.Migration.MappingFile = mappingFile
			}

			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			src, err := sess.TableQueryMetadata(ctx, sourceID)
			if err != nil {
				return fmt.Errorf("source table %d: %w", sourceID, err)
			}

			targetName := ""
			if len(args) == 2 {
				targetName = args[1]
			} else {
				mapping, err := parser.ParseMappingFile(a.cfg.Migration.MappingFile)
				if err != nil {
					return fmt.Errorf("failed to load table mapping: %w", err)
				}
				var ok bool
				targetName, ok = mapping.Lookup(src.QualifiedName(), src.ID)
				if !ok {
					return fmt.Errorf("table %s (id %d) has no mapping entry", src.QualifiedName(), src.ID)
				}
			}

			var target *core.Table
			if ddlFile != "" {
				target, err = ddlTable(ddlFile, targetName)
			} else {
				target, err = a.metabaseTable(ctx, sess, targetName)
			}
			if err != nil {
				return err
			}
			// Metabase does not expose nullability, so neither side reports it.
			for _, c := range target.Columns {
				c.Nullable = true
			}

			d := diff.CompareTables(src.CoreTable(), target)
			formatted, err := a.formatter.FormatTableDiff(d)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			_, _ = fmt.Fprint(a.stdout, formatted)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "Table mapping file (overrides config)")
	cmd.Flags().StringVar(&ddlFile, "ddl", "", "CREATE TABLE dump to read the target table from")
	return cmd
}

// metabaseTable resolves ref, a table id or name, in the target database.
func (a *app) metabaseTable(ctx context.Context, sess *metabase.Session, ref string) (*core.Table, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		t, err := sess.TableQueryMetadata(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("target table %d: %w", id, err)
		}
		return t.CoreTable(), nil
	}

	dbID := a.cfg.Migration.TargetDatabaseID
	md, err := sess.DatabaseMetadata(ctx, dbID)
	if err != nil {
		return nil, fmt.Errorf("target database %d metadata: %w", dbID, err)
	}
	info, ok := md.FindTable(ref)
	if !ok {
		return nil, fmt.Errorf("table %s not found in target database %d", ref, dbID)
	}
	if len(info.Fields) > 0 {
		return info.CoreTable(), nil
	}
	t, err := sess.TableQueryMetadata(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("target table %d: %w", info.ID, err)
	}
	return t.CoreTable(), nil
}

func ddlTable(path, name string) (*core.Table, error) {
	db, err := parser.NewSQLParser().ParseSchemaFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target schema: %w", err)
	}
	if t := db.FindTable(name); t != nil {
		return t, nil
	}
	if _, table := core.SplitQualified(name); table != name {
		if t := db.FindTable(table); t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table %s not found in %s", name, path)
}
