package main

import (
	"context"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/report"
	"mbmigrate/internal/restore"
	"mbmigrate/internal/sqltag"
)

func newRestoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Repair cards damaged by earlier bulk edits",
	}
	cmd.AddCommand(newRestoreQueriesCmd(a), newRestoreVisualizationsCmd(a))
	return cmd
}

func newRestoreQueriesCmd(a *app) *cobra.Command {
	var templateFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "queries <dashboard|card> <id>...",
		Short: "Rebuild native SQL that lost its SELECT or FROM clause",
		Long: `Queries rebuilds the native SQL of cards from a YAML template. The template
holds the shared query with {select} and {group_by} placeholders, and the
select list and GROUP BY clause of each card by card name:

  template: |
    select {select}
    from MART__TRANSACTIONS
    where CONFIRMED and {{CREATED_AT}}
    {group_by}
  default_select: count(*) as "Count"
  cards:
    Turnover:
      select: round(sum(TURNOVER_EUR), 0) as "Turnover"

Only queries without a SELECT or FROM are rebuilt unless --force is given.
Catalog template tags referenced by the new query are defined as well.

Examples:
  mbmigrate restore queries dashboard 485 --template restore_queries.yaml --dry-run`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
			}
			queries, err := restore.LoadQueries(templateFile)
			if err != nil {
				return err
			}
			cat, err := a.catalog(nil)
			if err != nil {
				return err
			}
			inspector := sqltag.NewInspector(cat)

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			ids, err := a.cardIDs(ctx, sess, t)
			if err != nil {
				return err
			}

			transform := func(_ context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
				n, ok := sqltag.FromCard(doc)
				if !ok {
					return &apply.Outcome{Skip: "not a native query"}, nil
				}
				changes := queries.Restore(n, doc.StringAt("name"), force)
				if len(changes) == 0 {
					return &apply.Outcome{}, nil
				}
				changes = append(changes, inspector.AddMissingTags(n)...)
				n.Store(doc)
				return &apply.Outcome{Doc: doc, Changes: changes}, nil
			}
			rep := report.New("restore_queries", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	cmd.Flags().StringVar(&templateFile, "template", "", "YAML file with the query template and per-card select lists")
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild queries that still have SELECT and FROM")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newRestoreVisualizationsCmd(a *app) *cobra.Command {
	var settingsFile string

	cmd := &cobra.Command{
		Use:   "visualizations <dashboard|card> <id>...",
		Short: "Reset visualization settings to the defaults of each card's display",
		Long: `Visualizations sets the visualization_settings of cards to the settings known
for their display type. Built-in settings exist for line, bar, pie, table and
scalar; a YAML file given with --settings can replace them per display and
set the display or the settings of single cards by name:

  default_display: scalar
  displays:
    scalar:
      scalar.decimals: 0
  cards:
    Failed reasons:
      display: pie

Examples:
  mbmigrate restore visualizations dashboard 485 --dry-run`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
			}
			vis := restore.DefaultVisualizations()
			if settingsFile != "" {
				if vis, err = restore.LoadVisualizations(settingsFile); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			ids, err := a.cardIDs(ctx, sess, t)
			if err != nil {
				return err
			}

			transform := func(_ context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
				changes, skip := vis.Restore(doc)
				if skip != "" {
					return &apply.Outcome{Skip: skip}, nil
				}
				out := &apply.Outcome{Changes: changes}
				if len(changes) > 0 {
					out.Doc = doc
				}
				return out, nil
			}
			rep := report.New("restore_visualizations", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	cmd.Flags().StringVar(&settingsFile, "settings", "", "YAML file with visualization settings per display and per card")
	return cmd
}
