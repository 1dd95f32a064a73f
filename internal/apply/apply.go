// Package apply runs one transformation over a list of Metabase cards or
// metrics: every item is fetched, transformed, written back when it changed
// and recorded in a report. A failing item never stops the run.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mbmigrate/internal/mbql"
	"mbmigrate/internal/report"
)

// Kind is the type of document an Applier works on.
type Kind string

const (
	KindCard   Kind = "card"
	KindMetric Kind = "metric"
)

// Store reads and writes documents. *metabase.Session implements it.
type Store interface {
	Card(ctx context.Context, id int64) (*mbql.Mapping, error)
	UpdateCard(ctx context.Context, id int64, doc *mbql.Mapping) error
	CreateCard(ctx context.Context, doc *mbql.Mapping) (*mbql.Mapping, error)
	Metric(ctx context.Context, id int64) (*mbql.Mapping, error)
	UpdateMetric(ctx context.Context, id int64, doc *mbql.Mapping) error
	CreateMetric(ctx context.Context, doc *mbql.Mapping) (*mbql.Mapping, error)
}

// Outcome is what a Transform did to one document.
type Outcome struct {
	// Doc is the document to write back. Nil means the item is unchanged.
	Doc        *mbql.Mapping
	Changes    []string
	Unresolved []string
	// Skip, when set, is the reason the item was not transformed.
	Skip string
}

// Transform computes the new version of doc. It may modify doc in place and
// return it as Outcome.Doc.
type Transform func(ctx context.Context, doc *mbql.Mapping) (*Outcome, error)

// Options struct contains all settings available for user to choose for a run.
type Options struct {
	DryRun bool
	Kind   Kind
	// Create posts each transformed document as a new item of Kind and
	// leaves the one it was read from untouched.
	Create bool
	Out    io.Writer
	Logger *slog.Logger
}

// Applier is a struct that contains everything needed to run a transform over items.
type Applier struct {
	store     Store
	transform Transform
	options   Options
	out       io.Writer
	logger    *slog.Logger
}

// NewApplier returns a pointer to Applier, with provided options.
func NewApplier(store Store, transform Transform, options Options) *Applier {
	out := options.Out
	if out == nil {
		out = io.Discard
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.Kind == "" {
		options.Kind = KindCard
	}
	return &Applier{
		store:     store,
		transform: transform,
		options:   options,
		out:       out,
		logger:    logger,
	}
}

// We use custom printf to format and print messages to the output writer.
func (a *Applier) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// Run processes ids in order and records every outcome in rep. It returns
// an error only when ctx is done; item failures are reported instead.
func (a *Applier) Run(ctx context.Context, rep *report.Report, ids []int64) error {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted after %d of %d items: %w", i, len(ids), err)
		}
		item := a.process(ctx, id)
		rep.Add(item)
		a.printf("[%d/%d] %s %d %s: %s%s\n", i+1, len(ids), item.Kind, item.ID, item.Name, item.Status, detail(item))
	}
	return nil
}

func detail(it report.Item) string {
	switch {
	case it.Error != "":
		return " (" + it.Error + ")"
	case it.Reason != "":
		return " (" + it.Reason + ")"
	case len(it.Changes) > 0:
		return fmt.Sprintf(" (%d changes)", len(it.Changes))
	}
	return ""
}

func (a *Applier) process(ctx context.Context, id int64) report.Item {
	item := report.Item{Kind: string(a.options.Kind), ID: id}
	logger := a.logger.With("kind", a.options.Kind, "id", id)

	doc, err := a.fetch(ctx, id)
	if err != nil {
		logger.Error("fetch failed", "error", err)
		return failed(item, err)
	}
	item.Name = doc.StringAt("name")

	outcome, err := a.transform(ctx, doc)
	if err != nil {
		logger.Error("transform failed", "error", err)
		return failed(item, err)
	}
	if outcome == nil {
		outcome = &Outcome{}
	}
	item.Changes = outcome.Changes
	item.Unresolved = outcome.Unresolved

	switch {
	case outcome.Skip != "":
		item.Status = report.StatusSkipped
		item.Reason = outcome.Skip
		return item
	case outcome.Doc == nil:
		item.Status = report.StatusUnchanged
		return item
	case a.options.DryRun:
		logger.Info("dry run, not writing", "changes", len(outcome.Changes))
		item.Status = report.StatusPlanned
		return item
	}

	if a.options.Create {
		created, err := a.create(ctx, outcome.Doc)
		if err != nil {
			logger.Error("create failed", "error", err)
			return failed(item, err)
		}
		item.Created = created
		item.Changes = append(item.Changes, fmt.Sprintf("created %s %d", a.options.Kind, created))
		logger.Info("created", "new_id", created, "changes", len(outcome.Changes))
		item.Status = report.StatusUpdated
		return item
	}
	if err := a.update(ctx, id, outcome.Doc); err != nil {
		logger.Error("update failed", "error", err)
		return failed(item, err)
	}
	logger.Info("updated", "changes", len(outcome.Changes))
	item.Status = report.StatusUpdated
	return item
}

func failed(item report.Item, err error) report.Item {
	item.Status = report.StatusFailed
	item.Error = err.Error()
	return item
}

func (a *Applier) fetch(ctx context.Context, id int64) (*mbql.Mapping, error) {
	switch a.options.Kind {
	case KindMetric:
		return a.store.Metric(ctx, id)
	case KindCard:
		return a.store.Card(ctx, id)
	default:
		return nil, fmt.Errorf("unsupported kind %q", a.options.Kind)
	}
}

func (a *Applier) update(ctx context.Context, id int64, doc *mbql.Mapping) error {
	switch a.options.Kind {
	case KindMetric:
		return a.store.UpdateMetric(ctx, id, doc)
	case KindCard:
		return a.store.UpdateCard(ctx, id, doc)
	default:
		return fmt.Errorf("unsupported kind %q", a.options.Kind)
	}
}

// create returns the id of the new document.
func (a *Applier) create(ctx context.Context, doc *mbql.Mapping) (int64, error) {
	var (
		created *mbql.Mapping
		err     error
	)
	switch a.options.Kind {
	case KindMetric:
		created, err = a.store.CreateMetric(ctx, doc)
	case KindCard:
		created, err = a.store.CreateCard(ctx, doc)
	default:
		return 0, fmt.Errorf("unsupported kind %q", a.options.Kind)
	}
	if err != nil {
		return 0, err
	}
	id, ok := created.IntAt("id")
	if !ok {
		return 0, fmt.Errorf("created %s has no id", a.options.Kind)
	}
	return id, nil
}

// ErrNoCards is returned by DashboardCardIDs for a dashboard without cards.
var ErrNoCards = errors.New("dashboard has no cards")

// DashboardCardIDs lists the card ids of a dashboard's dashcards in order.
// Dashcards without a card id, such as text boxes, are skipped and counted.
// A card placed twice is listed once.
func DashboardCardIDs(dashboard *mbql.Mapping) (ids []int64, skipped int, err error) {
	dashcards := dashboard.SequenceAt("dashcards")
	if dashcards == nil {
		dashcards = dashboard.SequenceAt("ordered_cards")
	}
	if dashcards.Len() == 0 {
		return nil, 0, ErrNoCards
	}
	seen := make(map[int64]struct{}, dashcards.Len())
	for _, n := range dashcards.Items {
		dc, ok := n.(*mbql.Mapping)
		if !ok {
			skipped++
			continue
		}
		id, ok := dc.IntAt("card", "id")
		if !ok {
			id, ok = dc.IntAt("card_id")
		}
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, skipped, nil
}
