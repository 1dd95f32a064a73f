package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/report"
	"mbmigrate/internal/sqltag"
)

func newFiltersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Check and fix the template tags of native SQL cards",
	}
	cmd.AddCommand(newFiltersCheckCmd(a), newFiltersFixCmd(a), newFiltersCopyCmd(a))
	return cmd
}

// catalog returns the configured template tag catalog, restricted to names when given.
func (a *app) catalog(names []string) (*sqltag.Catalog, error) {
	cat, err := a.cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("template tags: %w", err)
	}
	return cat.Subset(names)
}

func newFiltersCheckCmd(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "check <dashboard|card> <id>...",
		Short: "Report hardcoded filters, missing tags and tag defaults without changing anything",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
			}
			cat, err := a.catalog(tags)
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

			transform := nativeTransform(func(n *sqltag.Native) ([]string, bool) {
				var findings []string
				for _, f := range inspector.Inspect(n) {
					findings = append(findings, f.String())
				}
				return findings, false
			})
			rep := report.New("filters_check", t.name(), true)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Only check these catalog tags (default all)")
	return cmd
}

func newFiltersFixCmd(a *app) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "fix <dashboard|card> <id>...",
		Short: "Add missing tags, clear defaults, replace hardcoded filters and convert brackets",
		Long: `Fix brings native SQL cards in line with the template tag catalog:
  - single-bracket references such as {CARD_GEO} become {{CARD_GEO}}
  - hardcoded predicates such as CARD_GEO = 'EU' are replaced by the tag
  - tags required in the WHERE clause are appended to it
  - referenced catalog tags without a definition are added
  - default values are removed from catalog tags

Examples:
  mbmigrate filters fix dashboard 42 --dry-run
  mbmigrate filters fix card 5260 --tags Card_Geo`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
			}
			cat, err := a.catalog(tags)
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

			transform := nativeTransform(func(n *sqltag.Native) ([]string, bool) {
				changes := inspector.Fix(n)
				return changes, len(changes) > 0
			})
			rep := report.New("filters_fix", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Only fix these catalog tags (default all)")
	return cmd
}

func newFiltersCopyCmd(a *app) *cobra.Command {
	var tags []string
	var keepDefaults bool

	cmd := &cobra.Command{
		Use:   "copy <source-card-id> <dashboard|card> <id>...",
		Short: "Copy template tags from a reference card",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcIDs, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			t, err := parseTarget(args[1:], targetDashboard, targetCard)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			srcCard, err := sess.Card(ctx, srcIDs[0])
			if err != nil {
				return fmt.Errorf("fetch source card %d: %w", srcIDs[0], err)
			}
			src, ok := sqltag.FromCard(srcCard)
			if !ok {
				return fmt.Errorf("source card %d is not a native query", srcIDs[0])
			}
			a.printInfo(fmt.Sprintf("Source card %d %q defines %d template tags", srcIDs[0], srcCard.StringAt("name"), src.Tags.Len()))

			ids, err := a.cardIDs(ctx, sess, t)
			if err != nil {
				return err
			}

			transform := nativeTransform(func(n *sqltag.Native) ([]string, bool) {
				added := sqltag.Copy(src.Tags, n.Tags, tags, !keepDefaults)
				changes := make([]string, 0, len(added))
				for _, name := range added {
					changes = append(changes, fmt.Sprintf("copied %s template tag", name))
				}
				return changes, len(added) > 0
			})
			rep := report.New("filters_copy", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Only copy these tags (default all tags of the source card)")
	cmd.Flags().BoolVar(&keepDefaults, "keep-defaults", false, "Keep default values on copied tags")
	return cmd
}

func newBracketsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brackets <dashboard|card> <id>...",
		Short: "Convert single-bracket {TAG} references to {{TAG}}",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
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

			transform := nativeTransform(func(n *sqltag.Native) ([]string, bool) {
				changes := inspector.FixBrackets(n)
				return changes, len(changes) > 0
			})
			rep := report.New("brackets", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, ids, transform)
		},
	}
	return cmd
}

// nativeTransform adapts an edit of a native query to apply.Transform.
// Structured cards are skipped. edit reports whether it changed n.
func nativeTransform(edit func(n *sqltag.Native) ([]string, bool)) apply.Transform {
	return func(_ context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		n, ok := sqltag.FromCard(doc)
		if !ok {
			return &apply.Outcome{Skip: "not a native query"}, nil
		}
		changes, changed := edit(n)
		out := &apply.Outcome{Changes: changes}
		if changed {
			n.Store(doc)
			out.Doc = doc
		}
		return out, nil
	}
}
