package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/dialect"
	_ "mbmigrate/internal/dialect/starrocks"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/report"
	"mbmigrate/internal/sqltag"
)

func newTranslateCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "translate [<dashboard|card> <id>...]",
		Short: "Rewrite Exasol SQL functions in native cards to their StarRocks names",
		Long: `Translate renames Exasol functions and keywords (ADD_DAYS, NVL, SUBSTR,
CURRENT_TIMESTAMP, ...) in native SQL cards to their StarRocks equivalents.
String literals, comments and template tags are left alone. Extra or disabled
rewrites come from the [dialect.functions] config section.

With --file the SQL is read from a file ("-" for stdin), translated and printed;
Metabase is not contacted.

Examples:
  mbmigrate translate dashboard 42 --dry-run
  mbmigrate translate --file query.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := dialect.GetTranslator(dialect.Exasol, dialect.StarRocks, dialect.Options{Functions: a.cfg.Dialect.Functions})
			if err != nil {
				return err
			}
			if file != "" {
				return a.translateFile(tr, file)
			}

			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
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
			rep := report.New("translate", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, translateTransform(tr))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Translate SQL from a file instead of cards (- for stdin)")
	return cmd
}

func translateTransform(tr dialect.Translator) apply.Transform {
	return func(_ context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		n, ok := sqltag.FromCard(doc)
		if !ok {
			return &apply.Outcome{Skip: "not a native query"}, nil
		}
		res := tr.Translate(n.Query)
		out := &apply.Outcome{Unresolved: res.Warnings}
		if !res.Changed() {
			return out, nil
		}
		for _, rw := range res.Rewrites {
			out.Changes = append(out.Changes, fmt.Sprintf("%s -> %s (%d)", rw.From, rw.To, rw.Count))
		}
		n.Query = res.SQL
		n.Store(doc)
		out.Doc = doc
		return out, nil
	}
}

func (a *app) translateFile(tr dialect.Translator, path string) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read SQL: %w", err)
	}
	res := tr.Translate(string(data))
	_, _ = fmt.Fprint(a.stdout, res.SQL)
	for _, rw := range res.Rewrites {
		_, _ = fmt.Fprintf(a.stderr, "%s -> %s (%d)\n", rw.From, rw.To, rw.Count)
	}
	for _, w := range res.Warnings {
		a.logger.Warn(w)
	}
	return nil
}
