package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mbmigrate/internal/apply"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/metabase"
	"mbmigrate/internal/metrics"
	"mbmigrate/internal/parser"
	"mbmigrate/internal/remap"
	"mbmigrate/internal/report"
)

// metricSource selects where source and target metrics are listed from.
type metricSource struct {
	sourceCollectionID int64
	targetCollectionID int64
}

func (ms *metricSource) addFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&ms.sourceCollectionID, "source-collection-id", 0, "List source metrics from this collection instead of searching by collection name")
	cmd.Flags().Int64Var(&ms.targetCollectionID, "target-collection-id", 0, "List target metrics from this collection instead of searching by collection name")
}

func newMetricsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Pair source metrics with their StarRocks counterparts and swap them in cards",
	}
	cmd.AddCommand(newMetricsMapCmd(a), newMetricsReplaceCmd(a), newMetricsCreateCmd(a))
	return cmd
}

// loadMetrics lists both sides, from collections when their ids are set and
// otherwise from a metric search split by the configured collection names.
func (a *app) loadMetrics(ctx context.Context, sess *metabase.Session, ms metricSource) (sources, targets []metrics.Metric, err error) {
	if ms.sourceCollectionID > 0 && ms.targetCollectionID > 0 {
		sources, err = collectionMetrics(ctx, sess, ms.sourceCollectionID)
		if err != nil {
			return nil, nil, err
		}
		targets, err = collectionMetrics(ctx, sess, ms.targetCollectionID)
		if err != nil {
			return nil, nil, err
		}
		return sources, targets, nil
	}

	items, err := sess.Search(ctx, "metric", "")
	if err != nil {
		return nil, nil, fmt.Errorf("search metrics: %w", err)
	}
	all := make([]metrics.Metric, 0, len(items))
	for _, it := range items {
		all = append(all, metrics.MetricFromItem(it))
	}
	sources, targets = metrics.Partition(all, a.cfg.Metrics.SourceCollection, a.cfg.Metrics.TargetCollection)
	return sources, targets, nil
}

func collectionMetrics(ctx context.Context, sess *metabase.Session, id int64) ([]metrics.Metric, error) {
	items, err := sess.CollectionItems(ctx, id, "metric")
	if err != nil {
		return nil, fmt.Errorf("collection %d: %w", id, err)
	}
	out := make([]metrics.Metric, 0, len(items))
	for _, it := range items {
		out = append(out, metrics.MetricFromItem(it))
	}
	return out, nil
}

func newMetricsMapCmd(a *app) *cobra.Command {
	var ms metricSource

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Suggest a target metric for every source metric by name similarity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			sources, targets, err := a.loadMetrics(ctx, sess, ms)
			if err != nil {
				return err
			}
			a.printInfo(fmt.Sprintf("Matching %d source metrics against %d target metrics", len(sources), len(targets)))

			res := metrics.Match(sources, targets)
			rep := report.New("metrics_map", "metrics", true)
			for _, s := range res.Suggestions {
				rep.Add(report.Item{
					Kind:    string(apply.KindMetric),
					ID:      s.Source.ID,
					Name:    s.Source.Name,
					Status:  report.StatusPlanned,
					Changes: []string{fmt.Sprintf("-> %d %s (score %d)", s.Target.ID, s.Target.Name, s.Score)},
				})
			}
			for _, m := range res.Unmapped {
				rep.Add(report.Item{
					Kind:   string(apply.KindMetric),
					ID:     m.ID,
					Name:   m.Name,
					Status: report.StatusSkipped,
					Reason: fmt.Sprintf("no target metric scored above %d", metrics.Threshold),
				})
			}
			rep.Extra = res
			return a.finish(rep)
		},
	}
	ms.addFlags(cmd)
	return cmd
}

func newMetricsReplaceCmd(a *app) *cobra.Command {
	var ms metricSource
	var pairs []string

	cmd := &cobra.Command{
		Use:   "replace <dashboard|card> <id>...",
		Short: "Point metric aggregations of structured cards at the target metrics",
		Long: `Replace rewrites ["metric", id] aggregations of structured cards. The
source to target ids come from --pair flags or, when none are given, from the
same name matching "metrics map" reports.

Examples:
  mbmigrate metrics replace dashboard 42 --dry-run
  mbmigrate metrics replace card 7 --pair 12=812 --pair 13=813`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args, targetDashboard, targetCard)
			if err != nil {
				return err
			}
			ids, err := parsePairs(pairs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				sources, targets, err := a.loadMetrics(ctx, sess, ms)
				if err != nil {
					return err
				}
				ids = metrics.Match(sources, targets).IDs()
				a.printInfo(fmt.Sprintf("Matched %d of %d source metrics", len(ids), len(sources)))
			}
			cardIDs, err := a.cardIDs(ctx, sess, t)
			if err != nil {
				return err
			}
			rep := report.New("metrics_replace", t.name(), a.opts.dryRun)
			return a.run(ctx, sess, apply.KindCard, rep, cardIDs, replaceMetricsTransform(ids))
		},
	}
	ms.addFlags(cmd)
	cmd.Flags().StringArrayVar(&pairs, "pair", nil, "Source to target metric id, as source=target (repeatable)")
	return cmd
}

func newMetricsCreateCmd(a *app) *cobra.Command {
	var ms metricSource
	var mappingFile string
	var suffix string

	cmd := &cobra.Command{
		Use:   "create [metric-id]...",
		Short: "Create StarRocks copies of source metrics in the target collection",
		Long: `Create copies legacy metrics into the target collection. The definition of
each copy is remapped to the StarRocks tables like "remap metric" does, and its
name gets a suffix. Without ids every metric of the source collection is copied.
Metrics whose copy already exists in the target collection are skipped.

Examples:
  mbmigrate metrics create --target-collection-id 767 --dry-run
  mbmigrate metrics create 12 13 --target-collection-id 767 --suffix " (SR)"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ms.targetCollectionID <= 0 {
				return fmt.Errorf("--target-collection-id is required")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if mappingFile != "" {
				a.cfg.Migration.MappingFile = mappingFile
			}
			mapping, err := parser.ParseMappingFile(a.cfg.Migration.MappingFile)
			if err != nil {
				return fmt.Errorf("failed to load table mapping: %w", err)
			}

			ctx := cmd.Context()
			sess, err := a.session(ctx)
			if err != nil {
				return err
			}
			var targets []metrics.Metric
			if len(ids) == 0 {
				var sources []metrics.Metric
				sources, targets, err = a.loadMetrics(ctx, sess, ms)
				if err != nil {
					return err
				}
				for _, m := range sources {
					ids = append(ids, m.ID)
				}
			} else {
				targets, err = collectionMetrics(ctx, sess, ms.targetCollectionID)
				if err != nil {
					return err
				}
			}
			a.printInfo(fmt.Sprintf("Creating up to %d metrics in collection %d (%d metrics there already)", len(ids), ms.targetCollectionID, len(targets)))

			migrator, err := a.newMigrator(sess, mapping)
			if err != nil {
				return err
			}
			existing := make(map[string]bool, len(targets))
			for _, m := range targets {
				existing[strings.ToLower(strings.TrimSpace(m.Name))] = true
			}
			transform := a.createMetric(migrator, suffix, ms.targetCollectionID, existing)
			rep := report.New("metrics_create", fmt.Sprintf("collection_%d", ms.targetCollectionID), a.opts.dryRun)
			return a.runWith(ctx, sess, apply.Options{Kind: apply.KindMetric, Create: true}, rep, ids, transform)
		},
	}
	ms.addFlags(cmd)
	cmd.Flags().StringVarP(&mappingFile, "mapping", "m", "", "Table mapping file (overrides config)")
	cmd.Flags().StringVar(&suffix, "suffix", metrics.DefaultSuffix, "Appended to the name of every created metric")
	return cmd
}

// createMetric remaps a source metric and turns it into the document of its
// copy. Names in existing, lowercased, are not created again.
func (a *app) createMetric(m *remap.Migrator, suffix string, collectionID int64, existing map[string]bool) apply.Transform {
	remapDef := a.remapMetric(m, false)
	return func(ctx context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		name := metrics.TargetName(doc.StringAt("name"), suffix)
		if existing[strings.ToLower(name)] {
			return &apply.Outcome{Skip: fmt.Sprintf("metric %q already exists", name)}, nil
		}
		out, err := remapDef(ctx, doc)
		if err != nil || out.Skip != "" {
			return out, err
		}
		src := doc
		if out.Doc != nil {
			src = out.Doc
		}
		out.Doc = metrics.NewDefinition(src, suffix, collectionID)
		out.Changes = append(out.Changes, fmt.Sprintf("copy %q in collection %d", name, collectionID))
		return out, nil
	}
}

func parsePairs(pairs []string) (map[int64]int64, error) {
	out := make(map[int64]int64, len(pairs))
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q; use source=target", p)
		}
		f, err := strconv.ParseInt(strings.TrimSpace(from), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", p, err)
		}
		t, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", p, err)
		}
		out[f] = t
	}
	return out, nil
}

func replaceMetricsTransform(ids map[int64]int64) apply.Transform {
	return func(_ context.Context, doc *mbql.Mapping) (*apply.Outcome, error) {
		if doc.MappingAt("dataset_query", "query") == nil {
			return &apply.Outcome{Skip: "not a structured query"}, nil
		}
		replaced, missing := metrics.ReplaceAggregations(doc, ids)
		out := &apply.Outcome{}
		for _, id := range missing {
			out.Unresolved = append(out.Unresolved, fmt.Sprintf("metric %d has no target metric", id))
		}
		if len(replaced) == 0 {
			return out, nil
		}
		for _, r := range replaced {
			out.Changes = append(out.Changes, fmt.Sprintf("metric %d -> %d", r.From, r.To))
		}
		out.Doc = doc
		return out, nil
	}
}
