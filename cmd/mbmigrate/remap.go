package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/core"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/parser"
	"mbmigrate/internal/remap"
	"mbmigrate/internal/report"
)

func newRemapCmd(a *app) *cobra.Command {
	var mappingFile string
	var joinStrategy string
	var explain bool

	cmd := &cobra.Command{
		Use:   "remap <dashboard|card|metric> <id>...",
		Short: "Move structured queries from the Exasol database to StarRocks",
		Long: `Remap rewrites the structured (MBQL) queries of cards so that they run
against the StarRocks database: every source table is replaced by the table
the mapping file names, every field reference by the field of the same column
in the target table. Fields without a counterpart are removed together with the
clauses that use them and listed in the report.

Examples:
  mbmigrate remap dashboard 42 --dry-run
  mbmigrate remap card 5292 5293 --mapping table_mapping.yaml
  mbmigrate remap metric 17`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard, targetMetric)
			if err != nil {
				return err
			}
			if mappingFile != "" {
				a.cfg.Migration.MappingFile = mappingFile
			}
			if joinStrategy != "" {
				a.cfg.Migration.JoinStrategy = joinStrategy
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			mapping, err := parser.ParseMappingFile(a.cfg.Migration.MappingFile)
			if err != nil {
				return fmt.Errorf("failed to load table mapping: %w", err)
			}
			a.printInfo(fmt.Sprintf("Loaded %d table mappings from %s", mapping.Len(), a.cfg.Migration.MappingFile))

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			migrator, err := a.newMigrator(sess, mapping)
			if err != nil {
				return err
			}
			ids, err := a.cardIDs(ctx, sess, t)
			if err != nil {
				return err
			}

			transform := a.remapCard(migrator, explain)
			if t.kind == targetMetric {
				transform = a.remapMetric(migrator, explain)
			}
			rep := report.New("remap", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, t.applyKind(), rep, ids, transform)
		},
	}

	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "Table mapping file (.json, .yaml or .toml; overrides config)")
	cmd.Flags().StringVar(&joinStrategy, "join-strategy", "", "Strategy set on every join, e.g. left-join (overrides config)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the remap decisions of every card")
	return cmd
}

func (a *app) newMigrator(sess *metabase.Session, mapping *core.TableMapping) (*remap.Migrator, error) {
	identity, err := remap.NewIdentityResolver(sess, remap.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &remap.Migrator{
		Mapping:      mapping,
		Identity:     identity,
		Target:       remap.NewTargetResolver(sess, a.cfg.Migration.TargetDatabaseID, a.cfg.Migration.ColumnOverrides),
		JoinStrategy: a.cfg.Migration.JoinStrategy,
		Logger:       a.logger,
	}, nil
}

func (a *app) remapCard(m *remap.Migrator, explain bool) apply.Transform {
	return func(ctx context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		res, err := m.Migrate(ctx, doc)
		if errors.Is(err, remap.ErrNotStructured) {
			return &apply.Outcome{Skip: "not a structured query"}, nil
		}
		if err != nil {
			return nil, err
		}
		return a.remapOutcome(res, res.Card, explain)
	}
}

// remapMetric migrates the definition of a legacy metric by treating it as
// the structured query of a card.
func (a *app) remapMetric(m *remap.Migrator, explain bool) apply.Transform {
	return func(ctx context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		def := doc.MappingAt("definition")
		if def == nil {
			return &apply.Outcome{Skip: "metric has no definition"}, nil
		}
		card := mbql.NewMapping()
		dq := card.EnsureMapping("dataset_query")
		dq.Set("type", mbql.String("query"))
		dq.Set("query", def)

		res, err := m.Migrate(ctx, card)
		if err != nil {
			return nil, err
		}
		out := doc.Clone().(*mbql.Mapping)
		out.Set("definition", res.Card.MappingAt("dataset_query", "query"))
		if res.RootTable != 0 {
			out.Set("table_id", mbql.Int(res.RootTable))
		}
		res.Changed = !mbql.Equal(doc, out)
		return a.remapOutcome(res, out, explain)
	}
}

func (a *app) remapOutcome(res *remap.Result, doc *mbql.Mapping, explain bool) (*apply.Outcome, error) {
	if explain {
		formatted, err := a.formatter.FormatMigration(res.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to format decisions: %w", err)
		}
		_, _ = fmt.Fprint(a.progress(), formatted)
	}
	out := &apply.Outcome{Unresolved: res.Log.UnresolvedNotes()}
	if res.Changed {
		out.Doc = doc
		out.Changes = remapChanges(res)
	}
	return out, nil
}

func remapChanges(res *remap.Result) []string {
	var changes []string
	for _, t := range res.Tables {
		if t.TargetID != 0 {
			changes = append(changes, fmt.Sprintf("table %s (%s) -> %s (%d)", t.Source, t.Name, t.Target, t.TargetID))
		}
	}
	if n := res.Log.Count(core.DecisionMapped); n > 0 {
		changes = append(changes, fmt.Sprintf("%d field references remapped", n))
	}
	if n := res.Log.Count(core.DecisionRemoved); n > 0 {
		changes = append(changes, fmt.Sprintf("%d field references removed", n))
	}
	changes = append(changes, res.Log.InfoNotes()...)
	return changes
}
