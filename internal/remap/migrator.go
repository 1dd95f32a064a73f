package remap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mbmigrate/internal/core"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/migration"
)

// Migrator moves cards with structured queries to the target database.
type Migrator struct {
	Mapping      *core.TableMapping
	Identity     *IdentityResolver
	Target       *TargetResolver
	JoinStrategy string
	Logger       *slog.Logger
}

// TableResult is the resolution of one source table.
type TableResult struct {
	Source   core.TableID `json:"source"`
	Name     string       `json:"name,omitempty"`
	Target   string       `json:"target,omitempty"`
	TargetID int64        `json:"targetId,omitempty"`
	Reason   core.Reason  `json:"reason,omitempty"`
}

// Result describes one migrated card.
type Result struct {
	Card      *mbql.Mapping
	Keys      []core.FieldKey
	Fields    *Table
	Tables    []TableResult
	RootTable int64
	Log       *migration.Migration
	Changed   bool
}

// Migrate returns a migrated copy of card. Unresolvable fields are removed
// from the query and reported in the result; only a card without a
// structured query, or a query left empty, is an error.
func (m *Migrator) Migrate(ctx context.Context, card *mbql.Mapping) (*Result, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	query := card.MappingAt("dataset_query", "query")
	if query == nil {
		return nil, ErrNotStructured
	}
	root, _ := core.TableIDFromNode(query.Get(mbql.KeySourceTable))
	res := &Result{Log: &migration.Migration{}}

	res.Keys = Extract(query, root)
	logger.Debug("extracted field references", "count", len(res.Keys), "root", root)

	targets, tableErrs := m.resolveTables(ctx, query, res, logger)
	res.Fields = m.buildTable(ctx, res.Keys, targets, tableErrs, res.Log, logger)

	rw := &Rewriter{
		Root:         root,
		Fields:       res.Fields,
		Tables:       targets,
		JoinStrategy: m.JoinStrategy,
		Log:          res.Log,
		Logger:       logger,
	}
	migrated, ok := rw.Rewrite(query)
	if !ok {
		return nil, fmt.Errorf("remap: every clause of the query was removed")
	}

	out := card.Clone().(*mbql.Mapping)
	dq := out.EnsureMapping("dataset_query")
	dq.Set("query", migrated)
	dq.Set("database", mbql.Int(m.Target.DatabaseID()))
	if res.RootTable != 0 {
		out.Set("database_id", mbql.Int(m.Target.DatabaseID()))
		out.Set("table_id", mbql.Int(res.RootTable))
		res.Log.AddNote(fmt.Sprintf("root table set to %d", res.RootTable))
	} else {
		logger.Warn("no source table could be mapped; table_id left unchanged")
	}
	res.Log.Dedupe()
	res.Card = out
	res.Changed = !mbql.Equal(card, out)
	return res, nil
}

// resolveTables maps every source table of the query, root first. The first
// table that resolves becomes the root table of the migrated card.
func (m *Migrator) resolveTables(ctx context.Context, query *mbql.Mapping, res *Result, logger *slog.Logger) (map[core.TableID]int64, map[core.TableID]error) {
	order := SourceTables(query)
	seen := make(map[core.TableID]struct{}, len(order))
	for _, t := range order {
		seen[t] = struct{}{}
	}
	for _, k := range res.Keys {
		if _, ok := seen[k.Table]; !ok {
			seen[k.Table] = struct{}{}
			order = append(order, k.Table)
		}
	}

	targets := make(map[core.TableID]int64, len(order))
	errs := make(map[core.TableID]error)
	for _, src := range order {
		tr, err := m.resolveTable(ctx, src)
		res.Tables = append(res.Tables, tr)
		res.Log.AddTable(src, tr.Name, tr.Target, tr.TargetID, tr.Reason)
		if err != nil {
			errs[src] = err
			logger.Warn("table not mapped", "table", src, "name", tr.Name, "reason", tr.Reason, "error", err)
			continue
		}
		targets[src] = tr.TargetID
		if res.RootTable == 0 {
			res.RootTable = tr.TargetID
		}
		logger.Info("table mapped", "table", src, "name", tr.Name, "target", tr.Target, "targetId", tr.TargetID)
	}
	return targets, errs
}

func (m *Migrator) resolveTable(ctx context.Context, src core.TableID) (TableResult, error) {
	tr := TableResult{Source: src}
	name, err := m.Identity.TableName(ctx, src)
	if err != nil {
		tr.Reason = ReasonOf(err)
		return tr, err
	}
	tr.Name = name
	id, _ := src.Int()
	target, ok := m.Mapping.Lookup(name, id)
	if !ok {
		err := fmt.Errorf("table %q (candidates %v): %w", name, core.LookupCandidates(name, id), ErrNoTableMapping)
		tr.Reason = ReasonOf(err)
		return tr, err
	}
	tr.Target = target
	targetID, err := m.Target.ResolveTable(ctx, target)
	if err != nil {
		tr.Reason = ReasonOf(err)
		return tr, err
	}
	tr.TargetID = targetID
	return tr, nil
}

// buildTable resolves every distinct field reference context once. Column
// names are looked up even for unmapped tables so that reports can name them.
func (m *Migrator) buildTable(ctx context.Context, keys []core.FieldKey, targets map[core.TableID]int64, tableErrs map[core.TableID]error, log *migration.Migration, logger *slog.Logger) *Table {
	b := NewTableBuilder()
	seen := make(map[core.FieldKey]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		column, err := m.Identity.ColumnName(ctx, key.ID)
		if err == nil {
			targetTable, ok := targets[key.Table]
			switch {
			case ok:
				var fid int64
				fid, err = m.Target.ResolveField(ctx, targetTable, column)
				if err == nil {
					b.Resolve(key, column, fid)
					continue
				}
			case tableErrs[key.Table] != nil:
				err = tableErrs[key.Table]
			default:
				err = errors.New("table was not resolved")
			}
		}
		b.Unresolve(key, column, err)
		log.AddUnresolved(key, column, ReasonOf(err), "")
		logger.Warn("field unresolved",
			"field", key.ID,
			"table", key.Table,
			"alias", key.Alias,
			"column", column,
			"reason", ReasonOf(err),
			"error", err)
	}
	return b.Build()
}
