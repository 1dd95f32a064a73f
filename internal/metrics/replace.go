package metrics

import "mbmigrate/internal/mbql"

const metricOperator = "metric"

// Replacement is one rewritten metric reference.
type Replacement struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ReplaceAggregations rewrites ["metric", id] aggregations of a structured
// card, including those of nested source queries, using ids. It returns the
// replacements made and the referenced metric ids that have no mapping.
func ReplaceAggregations(card *mbql.Mapping, ids map[int64]int64) (replaced []Replacement, missing []int64) {
	if card.StringAt("dataset_query", "type") != "query" {
		return nil, nil
	}
	for q := card.MappingAt("dataset_query", "query"); q != nil; q = q.MappingAt(mbql.KeySourceQuery) {
		aggs := q.SequenceAt(mbql.KeyAggregation)
		if aggs == nil {
			continue
		}
		for i, agg := range aggs.Items {
			id, ok := metricRef(agg)
			if !ok {
				continue
			}
			to, mapped := ids[id]
			if !mapped {
				missing = append(missing, id)
				continue
			}
			ref := agg.(*mbql.Sequence)
			items := append([]mbql.Node{ref.Items[0], mbql.Int(to)}, ref.Items[2:]...)
			aggs.Items[i] = mbql.NewSequence(items...)
			replaced = append(replaced, Replacement{From: id, To: to})
		}
	}
	return replaced, missing
}

// MetricRefs returns the metric ids referenced by a structured card.
func MetricRefs(card *mbql.Mapping) []int64 {
	var out []int64
	if card.StringAt("dataset_query", "type") != "query" {
		return nil
	}
	for q := card.MappingAt("dataset_query", "query"); q != nil; q = q.MappingAt(mbql.KeySourceQuery) {
		aggs := q.SequenceAt(mbql.KeyAggregation)
		if aggs == nil {
			continue
		}
		for _, agg := range aggs.Items {
			if id, ok := metricRef(agg); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

func metricRef(n mbql.Node) (int64, bool) {
	s, ok := n.(*mbql.Sequence)
	if !ok || s.Len() < 2 {
		return 0, false
	}
	if op, ok := mbql.Operator(s); !ok || op != metricOperator {
		return 0, false
	}
	id, ok := s.Items[1].(mbql.Scalar)
	if !ok {
		return 0, false
	}
	return id.Int()
}
