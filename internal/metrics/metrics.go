// Package metrics pairs the metrics of a source collection with their
// counterparts in a target collection by name similarity, and rewrites the
// metric references of structured cards accordingly.
package metrics

import (
	"strings"

	"mbmigrate/internal/mbql"
)

// Threshold is the lowest score that is not a match.
const Threshold = 50

// Scores.
const (
	ScoreExact    = 100
	ScoreContains = 80
	ScoreWord     = 60
)

var nameSuffixes = []string{" (oor)", " (ooor)", " sr"}

// Metric is a saved metric as listed by search or a collection.
type Metric struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Collection string `json:"collection,omitempty"`
	Table      string `json:"table,omitempty"`
}

// MetricFromItem reads a search result or collection item.
func MetricFromItem(item *mbql.Mapping) Metric {
	id, _ := item.IntAt("id")
	m := Metric{
		ID:         id,
		Name:       item.StringAt("name"),
		Collection: item.StringAt("collection", "name"),
		Table:      item.StringAt("table", "name"),
	}
	if m.Table == "" {
		m.Table = item.StringAt("table_name")
	}
	return m
}

// Normalize lowercases name and strips the environment suffixes used on
// migrated metric names.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for {
		trimmed := s
		for _, suffix := range nameSuffixes {
			trimmed = strings.TrimSuffix(trimmed, suffix)
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// Score rates the similarity of two metric names: 100 when equal after
// normalization, 80 when one contains the other, 60 when a word of one occurs
// in the other, otherwise 0.
func Score(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	switch {
	case a == "" || b == "":
		return 0
	case a == b:
		return ScoreExact
	case strings.Contains(a, b) || strings.Contains(b, a):
		return ScoreContains
	case anyWordIn(a, b) || anyWordIn(b, a):
		return ScoreWord
	default:
		return 0
	}
}

func anyWordIn(words, s string) bool {
	for _, w := range strings.Fields(words) {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Suggestion pairs a source metric with its best target.
type Suggestion struct {
	Source Metric `json:"source"`
	Target Metric `json:"target"`
	Score  int    `json:"score"`
}

// MatchResult lists the suggestions and the sources without a match.
type MatchResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	Unmapped    []Metric     `json:"unmapped"`
}

// Match picks for every source the first target with the highest score.
// Sources whose best score does not exceed Threshold are unmapped.
func Match(sources, targets []Metric) *MatchResult {
	res := &MatchResult{Suggestions: []Suggestion{}, Unmapped: []Metric{}}
	for _, src := range sources {
		var (
			best      Metric
			bestScore int
		)
		for _, tgt := range targets {
			if s := Score(src.Name, tgt.Name); s > bestScore {
				best, bestScore = tgt, s
			}
		}
		if bestScore > Threshold {
			res.Suggestions = append(res.Suggestions, Suggestion{Source: src, Target: best, Score: bestScore})
		} else {
			res.Unmapped = append(res.Unmapped, src)
		}
	}
	return res
}

// IDs returns the suggested source to target metric ids.
func (r *MatchResult) IDs() map[int64]int64 {
	out := make(map[int64]int64, len(r.Suggestions))
	for _, s := range r.Suggestions {
		out[s.Source.ID] = s.Target.ID
	}
	return out
}

// Partition splits metrics by collection name. A metric belongs to a side
// when its collection name contains that side's name.
func Partition(all []Metric, sourceCollection, targetCollection string) (sources, targets []Metric) {
	for _, m := range all {
		switch {
		case sourceCollection != "" && strings.Contains(m.Collection, sourceCollection):
			sources = append(sources, m)
		case targetCollection != "" && strings.Contains(m.Collection, targetCollection):
			targets = append(targets, m)
		}
	}
	return sources, targets
}
