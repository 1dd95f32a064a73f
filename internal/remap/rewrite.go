package remap

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"mbmigrate/internal/core"
	"mbmigrate/internal/mbql"
	"mbmigrate/internal/migration"
)

// Field reference options.
const (
	// JoinOptionAlias names the join the field belongs to.
	JoinOptionAlias = "join-alias"
	// SourceFieldOption holds the foreign key field of an implicit join.
	SourceFieldOption = "source-field"
)

// Rewriter produces a migrated copy of a structured query.
type Rewriter struct {
	// Root is the source table of the query being rewritten.
	Root core.TableID
	// Fields holds the target of every field reference context.
	Fields *Table
	// Tables maps source tables to target table ids. Unmapped tables keep
	// their source-table value.
	Tables map[core.TableID]int64
	// JoinStrategy, when set, replaces the strategy of every join.
	JoinStrategy string

	Log    *migration.Migration
	Logger *slog.Logger
}

// Rewrite returns the migrated query. The input is not modified. Field
// references without a resolved target are removed along with every clause
// that no longer makes sense without them. The second result is false when
// nothing of the query is left.
func (r *Rewriter) Rewrite(query *mbql.Mapping) (*mbql.Mapping, bool) {
	if r.Log == nil {
		r.Log = &migration.Migration{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}

	w := &walker{
		leaf:      r.fieldRef,
		table:     r.sourceTable,
		join:      r.join,
		onDropRef: r.localRefRemoved,
		dropped:   make(map[string]struct{}),
	}
	out, ok := w.walk(query, joinContext{table: r.Root}, false)

	// References to removed joins are left dangling by the first pass.
	for ok && len(w.dropped) > 0 {
		aliases := w.dropped
		prune := &walker{
			leaf:      r.danglingRef(aliases),
			onDropRef: r.localRefRemoved,
			dropped:   make(map[string]struct{}),
		}
		out, ok = prune.walk(out, joinContext{table: r.Root}, false)
		w.dropped = prune.dropped
	}
	if !ok {
		return nil, false
	}
	m, isMapping := out.(*mbql.Mapping)
	return m, isMapping
}

func (r *Rewriter) fieldRef(s *mbql.Sequence, jc joinContext) (mbql.Node, bool, bool) {
	id, ok := mbql.AsFieldRef(s)
	if !ok {
		return nil, false, false
	}
	key := core.FieldKey{ID: id, Table: jc.table, Alias: jc.alias}
	e, found := r.Fields.Lookup(key)
	if found && e.Resolved {
		out := s.Clone().(*mbql.Sequence)
		out.Items[1] = mbql.Int(e.Target)
		r.Log.AddMapped(key, e.Column, e.Target)
		r.Logger.Debug("field mapped", "field", id, "table", jc.table, "alias", jc.alias, "column", e.Column, "target", e.Target)
		if src, ok := sourceField(out); ok {
			r.Log.AddNote(fmt.Sprintf("field %d (%s) keeps source-field %s of the source database", e.Target, e.Column, src))
			r.Logger.Warn("field reference keeps source-field", "field", id, "target", e.Target, "source-field", src)
		}
		return out, true, true
	}
	reason := e.Reason
	if !found {
		reason = core.ReasonUnmapped
	}
	r.Log.AddRemoved(key, e.Column, reason)
	r.Logger.Warn("removing field reference",
		"field", id,
		"table", jc.table,
		"alias", jc.alias,
		"column", e.Column,
		"reason", reason)
	return nil, false, true
}

func (r *Rewriter) danglingRef(aliases map[string]struct{}) func(*mbql.Sequence, joinContext) (mbql.Node, bool, bool) {
	return func(s *mbql.Sequence, jc joinContext) (mbql.Node, bool, bool) {
		if op, ok := mbql.Operator(s); !ok || op != mbql.FieldRefTag || s.Len() < 3 {
			return nil, false, false
		}
		opts, ok := s.Items[2].(*mbql.Mapping)
		if !ok {
			return nil, false, false
		}
		alias := opts.StringAt(JoinOptionAlias)
		if _, gone := aliases[alias]; !gone {
			return nil, false, false
		}
		id, _ := mbql.AsFieldRef(s)
		r.Log.AddRemoved(core.FieldKey{ID: id, Table: jc.table, Alias: alias}, "", core.ReasonUnmapped)
		r.Logger.Warn("removing reference to dropped join", "alias", alias, "field", id)
		return nil, false, true
	}
}

func (r *Rewriter) sourceTable(v mbql.Node) mbql.Node {
	src, ok := core.TableIDFromNode(v)
	if !ok {
		return v
	}
	if target, ok := r.Tables[src]; ok {
		return mbql.Int(target)
	}
	return v
}

func (r *Rewriter) join(m *mbql.Mapping, jc joinContext) {
	if r.JoinStrategy != "" {
		m.Set(mbql.KeyStrategy, mbql.String(r.JoinStrategy))
	}
	target := r.Tables[jc.table]
	r.Log.AddJoin(jc.alias, jc.table, target, m.StringAt(mbql.KeyStrategy))
}

func (r *Rewriter) localRefRemoved(ref string) {
	r.Log.AddNote("removed reference to " + ref)
	r.Logger.Warn("removing reference to removed clause", "ref", ref)
}

// sourceField returns the source-field option of a field reference.
func sourceField(s *mbql.Sequence) (string, bool) {
	if s.Len() < 3 {
		return "", false
	}
	opts, ok := s.Items[2].(*mbql.Mapping)
	if !ok {
		return "", false
	}
	v, ok := opts.Lookup(SourceFieldOption)
	if !ok {
		return "", false
	}
	sc, ok := v.(mbql.Scalar)
	if !ok || sc.IsNull() {
		return "", false
	}
	if id, ok := sc.Int(); ok {
		return fmt.Sprint(id), true
	}
	raw, err := mbql.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// walker copies a document while letting leaf decide the fate of individual
// sequences. A false keep result is the explicit absent marker: parents drop
// the element or key, and propagate absence upwards where the container no
// longer makes sense.
type walker struct {
	// leaf returns handled=false for sequences it does not care about.
	leaf func(s *mbql.Sequence, jc joinContext) (out mbql.Node, keep, handled bool)
	// table maps source-table values. Nil leaves them alone.
	table func(v mbql.Node) mbql.Node
	// join is called for every join that survived.
	join func(m *mbql.Mapping, jc joinContext)
	// onDropRef is called for every expression or aggregation reference
	// removed because its target was removed.
	onDropRef func(ref string)

	dropped map[string]struct{}
}

func (w *walker) walk(n mbql.Node, jc joinContext, tuple bool) (mbql.Node, bool) {
	switch v := n.(type) {
	case *mbql.Sequence:
		if v == nil {
			return v, true
		}
		return w.walkSequence(v, jc, tuple)
	case *mbql.Mapping:
		if v == nil {
			return v, true
		}
		return w.walkMapping(v, jc)
	default:
		return n, true
	}
}

// isConnective reports whether a clause tolerates losing operands.
func isConnective(op string) bool {
	switch strings.ToLower(op) {
	case "and", "or":
		return true
	}
	return false
}

// walkSequence copies s. A clause other than and/or is absent once an operand
// is gone. A plain sequence is a list that may shrink, unless it sits directly
// inside another plain sequence: then it is a tuple, like the [condition,
// value] pairs of a case clause, and losing a position makes it absent.
func (w *walker) walkSequence(s *mbql.Sequence, jc joinContext, tuple bool) (mbql.Node, bool) {
	if out, keep, handled := w.leaf(s, jc); handled {
		return out, keep
	}

	op, isClause := mbql.Operator(s)
	connective := isClause && isConnective(op)
	items := make([]mbql.Node, 0, len(s.Items))
	removed := false
	for _, item := range s.Items {
		out, ok := w.walk(item, jc, !isClause)
		if !ok {
			if (isClause && !connective) || tuple {
				return nil, false
			}
			removed = true
			continue
		}
		items = append(items, out)
	}

	switch {
	case !removed:
		return &mbql.Sequence{Items: items}, true
	case connective:
		operands := items[1:]
		switch len(operands) {
		case 0:
			return nil, false
		case 1:
			return operands[0], true
		}
		return &mbql.Sequence{Items: items}, true
	case len(items) == 0:
		return nil, false
	default:
		return &mbql.Sequence{Items: items}, true
	}
}

func (w *walker) walkMapping(m *mbql.Mapping, jc joinContext) (mbql.Node, bool) {
	isJoin := mbql.IsJoin(m)
	inner := jc.enter(m)

	out := mbql.NewMapping()
	refs := &stageRefs{onDrop: w.onDropRef}
	removed := false
	conditionRemoved := false
	m.Each(func(k string, v mbql.Node) {
		var nv mbql.Node
		var ok bool
		switch k {
		case mbql.KeySourceTable:
			if w.table != nil {
				v = w.table(v)
			}
			out.Set(k, v)
			return
		case mbql.KeyAggregation:
			nv, ok = w.walkAggregations(v, inner, refs)
		case mbql.KeyExpressions:
			nv, ok = w.walk(v, inner, false)
			refs.dropExpressions(v, nv, ok)
		default:
			nv, ok = w.walk(v, inner, false)
		}
		if !ok {
			removed = true
			conditionRemoved = conditionRemoved || k == mbql.KeyCondition
			return
		}
		out.Set(k, nv)
	})

	if isJoin && conditionRemoved {
		w.dropped[inner.alias] = struct{}{}
		return nil, false
	}
	if refs.changed() && w.pruneStageRefs(out, inner, refs) {
		removed = true
	}
	if removed && out.Len() == 0 {
		return nil, false
	}
	if isJoin && w.join != nil {
		w.join(out, inner)
	}
	return out, true
}

// walkAggregations walks the aggregation list of a query stage and records
// the original position of every aggregation that survived.
func (w *walker) walkAggregations(v mbql.Node, jc joinContext, refs *stageRefs) (mbql.Node, bool) {
	aggs, ok := v.(*mbql.Sequence)
	if !ok || aggs == nil {
		return w.walk(v, jc, false)
	}
	if _, isClause := mbql.Operator(aggs); isClause {
		return w.walk(v, jc, false)
	}
	items := make([]mbql.Node, 0, aggs.Len())
	kept := make([]int, 0, aggs.Len())
	for i, item := range aggs.Items {
		out, ok := w.walk(item, jc, false)
		if !ok {
			continue
		}
		items = append(items, out)
		kept = append(kept, i)
	}
	refs.keepAggregations(kept, aggs.Len())
	if len(items) == 0 && aggs.Len() > 0 {
		return nil, false
	}
	return &mbql.Sequence{Items: items}, true
}

// pruneStageRefs removes references to the expressions and aggregations of
// one query stage that were removed, and renumbers aggregation references
// whose target moved. Expressions and aggregations may themselves use a
// removed expression, so those are pruned until nothing else goes. It
// reports whether a key of out was removed.
func (w *walker) pruneStageRefs(out *mbql.Mapping, jc joinContext, refs *stageRefs) bool {
	removed := false
	rewalk := func(k string, fix *walker, aggregations bool) {
		v, ok := out.Lookup(k)
		if !ok {
			return
		}
		var nv mbql.Node
		if aggregations {
			nv, ok = fix.walkAggregations(v, jc, refs)
		} else {
			nv, ok = fix.walk(v, jc, false)
		}
		if k == mbql.KeyExpressions {
			refs.dropExpressions(v, nv, ok)
		}
		if !ok {
			out.Delete(k)
			removed = true
			return
		}
		out.Set(k, nv)
	}

	for {
		n := len(refs.expressions)
		if n == 0 {
			break
		}
		fix := w.fixer(refs.ref(false))
		rewalk(mbql.KeyExpressions, fix, false)
		rewalk(mbql.KeyAggregation, fix, true)
		if len(refs.expressions) == n {
			break
		}
	}

	fix := w.fixer(refs.ref(true))
	for _, k := range out.Keys() {
		switch k {
		case mbql.KeySourceTable, mbql.KeySourceQuery, mbql.KeyJoins, mbql.KeyAggregation, mbql.KeyExpressions:
			continue
		}
		rewalk(k, fix, false)
	}
	return removed
}

func (w *walker) fixer(leaf func(*mbql.Sequence, joinContext) (mbql.Node, bool, bool)) *walker {
	return &walker{leaf: leaf, onDropRef: w.onDropRef, dropped: w.dropped}
}

// stageRefs tracks what a query stage lost: expressions by name and
// aggregations by position.
type stageRefs struct {
	expressions map[string]struct{}
	// kept holds the original position of every surviving aggregation.
	kept                []int
	aggregationsDropped bool
	onDrop              func(ref string)
}

func (r *stageRefs) changed() bool {
	return len(r.expressions) > 0 || r.aggregationsDropped
}

// dropExpressions records the names of before that are missing from after.
func (r *stageRefs) dropExpressions(before, after mbql.Node, ok bool) {
	prev, isMapping := before.(*mbql.Mapping)
	if !isMapping || prev == nil {
		return
	}
	next, _ := after.(*mbql.Mapping)
	for _, name := range prev.Keys() {
		if ok && next != nil && next.Has(name) {
			continue
		}
		if r.expressions == nil {
			r.expressions = make(map[string]struct{})
		}
		r.expressions[name] = struct{}{}
	}
}

// keepAggregations narrows the surviving aggregations to the positions in
// kept, which index the current list of n aggregations.
func (r *stageRefs) keepAggregations(kept []int, n int) {
	if len(kept) == n {
		if r.kept == nil {
			r.kept = kept
		}
		return
	}
	r.aggregationsDropped = true
	if r.kept == nil {
		r.kept = kept
		return
	}
	next := make([]int, 0, len(kept))
	for _, i := range kept {
		next = append(next, r.kept[i])
	}
	r.kept = next
}

// ref returns a leaf that removes references to removed expressions and,
// when aggregations is set, renumbers or removes aggregation references.
func (r *stageRefs) ref(aggregations bool) func(*mbql.Sequence, joinContext) (mbql.Node, bool, bool) {
	return func(s *mbql.Sequence, _ joinContext) (mbql.Node, bool, bool) {
		op, ok := mbql.Operator(s)
		if !ok || s.Len() < 2 {
			return nil, false, false
		}
		arg, ok := s.Items[1].(mbql.Scalar)
		if !ok {
			return nil, false, false
		}
		switch op {
		case mbql.ExpressionRefTag:
			name, _ := arg.Str()
			if _, gone := r.expressions[name]; gone {
				r.drop(fmt.Sprintf("expression %q", name))
				return nil, false, true
			}
		case mbql.AggregationRefTag:
			idx, isInt := arg.Int()
			if !aggregations || !r.aggregationsDropped || !isInt {
				break
			}
			pos := slices.Index(r.kept, int(idx))
			if pos < 0 {
				r.drop(fmt.Sprintf("aggregation %d", idx))
				return nil, false, true
			}
			out := s.Clone().(*mbql.Sequence)
			out.Items[1] = mbql.Int(int64(pos))
			return out, true, true
		}
		return nil, false, false
	}
}

func (r *stageRefs) drop(ref string) {
	if r.onDrop != nil {
		r.onDrop(ref)
	}
}
