package restore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/mbql"
	"mbmigrate/internal/sqltag"
)

const queriesYAML = `
template: |
  select {select}
  from MART__TRANSACTIONS
  where CONFIRMED and {{CREATED_AT}}
  {group_by}
cards:
  Turnover:
    select: round(sum(TURNOVER_EUR), 0) as "Turnover"
  Failed reasons:
    select: FAILED_REASON as "Failed Reason", count(*) as "Count"
    group_by: group by FAILED_REASON
`

func mustCard(t *testing.T, s string) *mbql.Mapping {
	t.Helper()
	m, err := mbql.DecodeMapping([]byte(s))
	require.NoError(t, err)
	return m
}

func TestParseQueries(t *testing.T) {
	q, err := ParseQueries(strings.NewReader(queriesYAML))
	require.NoError(t, err)
	assert.Equal(t, DefaultSelect, q.DefaultSelect)
	assert.Len(t, q.Cards, 2)

	_, err = ParseQueries(strings.NewReader("template: select 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must contain {select}")

	_, err = ParseQueries(strings.NewReader("templat: x\n"))
	require.Error(t, err)

	_, err = ParseQueries(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestQueriesBuild(t *testing.T) {
	q, err := ParseQueries(strings.NewReader(queriesYAML))
	require.NoError(t, err)

	assert.Equal(t,
		"select FAILED_REASON as \"Failed Reason\", count(*) as \"Count\"\nfrom MART__TRANSACTIONS\nwhere CONFIRMED and {{CREATED_AT}}\ngroup by FAILED_REASON",
		q.Build("Failed reasons"))
	assert.Equal(t,
		"select count(*) as \"Count\"\nfrom MART__TRANSACTIONS\nwhere CONFIRMED and {{CREATED_AT}}",
		q.Build("Unknown card"))
}

func TestIsComplete(t *testing.T) {
	assert.True(t, IsComplete("SELECT 1 FROM dual"))
	assert.False(t, IsComplete("where CONFIRMED and {{CREATED_AT}}"))
	assert.False(t, IsComplete("select 1"))
	assert.False(t, IsComplete("selected from_date"))
}

func TestQueriesRestore(t *testing.T) {
	q, err := ParseQueries(strings.NewReader(queriesYAML))
	require.NoError(t, err)

	t.Run("incomplete query is rebuilt", func(t *testing.T) {
		n := &sqltag.Native{Query: "where CONFIRMED and {{CREATED_AT}}", Tags: mbql.NewMapping()}
		changes := q.Restore(n, "Turnover", false)
		assert.Equal(t, []string{"query rebuilt from template with the card's select list"}, changes)
		assert.True(t, strings.HasPrefix(n.Query, `select round(sum(TURNOVER_EUR), 0) as "Turnover"`))
	})

	t.Run("complete query is kept", func(t *testing.T) {
		n := &sqltag.Native{Query: "select 1 from t", Tags: mbql.NewMapping()}
		assert.Empty(t, q.Restore(n, "Turnover", false))
		assert.Equal(t, "select 1 from t", n.Query)
	})

	t.Run("force rebuilds a complete query", func(t *testing.T) {
		n := &sqltag.Native{Query: "select 1 from t", Tags: mbql.NewMapping()}
		changes := q.Restore(n, "Other", true)
		assert.Equal(t, []string{"query rebuilt from template with the default select list"}, changes)
	})

	t.Run("rebuilt query equal to current is unchanged", func(t *testing.T) {
		n := &sqltag.Native{Query: q.Build("Turnover"), Tags: mbql.NewMapping()}
		assert.Empty(t, q.Restore(n, "Turnover", true))
	})
}

func TestLoadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(queriesYAML), 0o600))

	q, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Contains(t, q.Template, "{group_by}")

	_, err = LoadQueries(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore: open")
}

func TestVisualizationsRestore(t *testing.T) {
	v, err := ParseVisualizations(strings.NewReader(`
displays:
  scalar:
    scalar.decimals: 2
cards:
  Failed reasons:
    display: pie
  GMV detailing:
    settings:
      table.pivot: true
`))
	require.NoError(t, err)

	t.Run("display defaults from file", func(t *testing.T) {
		card := mustCard(t, `{"name":"Turnover","display":"scalar","visualization_settings":{"graph.metrics":["x"]}}`)
		changes, skip := v.Restore(card)
		assert.Empty(t, skip)
		assert.Equal(t, []string{"visualization_settings restored from scalar defaults"}, changes)
		raw, err := mbql.Marshal(card.Get("visualization_settings"))
		require.NoError(t, err)
		assert.Equal(t, `{"scalar.decimals":2}`, string(raw))
	})

	t.Run("card entry changes display", func(t *testing.T) {
		card := mustCard(t, `{"name":"Failed reasons","display":"table","visualization_settings":{}}`)
		changes, _ := v.Restore(card)
		assert.Equal(t, []string{`display "table" -> "pie"`, "visualization_settings restored from pie defaults"}, changes)
		assert.Equal(t, "pie", card.StringAt("display"))
		raw, err := mbql.Marshal(card.Get("visualization_settings"))
		require.NoError(t, err)
		assert.Equal(t, `{"pie.show_legend":true,"pie.show_values":false}`, string(raw))
	})

	t.Run("card settings win over display", func(t *testing.T) {
		card := mustCard(t, `{"name":"GMV detailing","display":"table"}`)
		changes, _ := v.Restore(card)
		assert.Equal(t, []string{"visualization_settings restored from card entry"}, changes)
	})

	t.Run("already restored", func(t *testing.T) {
		card := mustCard(t, `{"name":"Turnover","display":"scalar","visualization_settings":{"scalar.decimals":2}}`)
		changes, skip := v.Restore(card)
		assert.Empty(t, changes)
		assert.Empty(t, skip)
	})

	t.Run("unknown display", func(t *testing.T) {
		card := mustCard(t, `{"name":"Map","display":"map"}`)
		changes, skip := v.Restore(card)
		assert.Empty(t, changes)
		assert.Equal(t, `no visualization settings for display "map"`, skip)
	})
}

func TestDefaultVisualizationsWithoutDisplay(t *testing.T) {
	card := mustCard(t, `{"name":"Antifraud"}`)
	changes, skip := DefaultVisualizations().Restore(card)
	assert.Empty(t, skip)
	assert.Equal(t, []string{"visualization_settings restored from scalar defaults"}, changes)
	assert.True(t, card.MappingAt("visualization_settings").Has("scalar.prefix"))
	assert.False(t, card.Has("display"))
}
