package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/metabase/metabasetest"
)

const ordersCard = `{
	"id": 5292,
	"name": "Orders by vendor",
	"database_id": 3,
	"table_id": 4,
	"dataset_query": {
		"database": 3,
		"type": "query",
		"query": {
			"source-table": 4,
			"joins": [{
				"alias": "t1",
				"source-table": 5,
				"strategy": "left-join",
				"condition": ["and",
					["=", ["field", 102, {"join-alias": "t1"}], 1],
					[">", ["field", 100, {"join-alias": "t1"}], 0]]
			}],
			"filter": ["=", ["field", 41, null], "EUR"],
			"aggregation": [["count"]]
		}
	}
}`

func newOrdersServer(t *testing.T) *metabasetest.Server {
	srv := metabasetest.New(t)
	srv.Set("/api/card/5292", ordersCard)
	srv.Set("/api/table/4", `{"id":4,"name":"VENDORS","schema":"EXA"}`)
	srv.Set("/api/table/5", `{"id":5,"name":"ORDERS","schema":"EXA"}`)
	srv.Set("/api/table/5/query_metadata", `{"id":5,"name":"ORDERS","schema":"EXA","fields":[
		{"id":100,"name":"AMOUNT","database_type":"DECIMAL(18,2)"},
		{"id":102,"name":"VENDOR_ID","database_type":"DECIMAL(18,0)"}]}`)
	srv.Set("/api/field/41", `{"id":41,"name":"CURRENCY","table_id":4}`)
	srv.Set("/api/field/100", `{"id":100,"name":"AMOUNT","table_id":5}`)
	srv.Set("/api/field/102", `{"id":102,"name":"VENDOR_ID","table_id":5}`)
	srv.Set("/api/database/16/metadata", `{"id":16,"engine":"starrocks","tables":[{"id":90,"name":"SR_VENDORS"},{"id":91,"name":"SR_ORDERS"}]}`)
	srv.Set("/api/table/90/query_metadata", `{"id":90,"name":"SR_VENDORS","fields":[{"id":901,"name":"CURRENCY","database_type":"VARCHAR"}]}`)
	srv.Set("/api/table/91/query_metadata", `{"id":91,"name":"SR_ORDERS","fields":[
		{"id":911,"name":"VENDOR_ID","database_type":"BIGINT"},
		{"id":912,"name":"LOAD_TS","database_type":"DATETIME"}]}`)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// writeConfig writes a config pointing at baseURL with a table mapping and
// returns its path and the report directory.
func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	mapping := writeFile(t, dir, "table_mapping.json",
		`{"table_mapping": {"EXA.ORDERS": "SR_ORDERS", "EXA.VENDORS": "sr_vendors"}}`)
	reports := filepath.Join(dir, "reports")
	cfg := fmt.Sprintf(`
[metabase]
base_url = %q
username = "admin"
password = "secret"

[migration]
target_database_id = 16
mapping_file = %q

[report]
dir = %q
`, baseURL, mapping, reports)
	return writeFile(t, dir, "mbmigrate.toml", cfg), reports
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func TestRemapCardDryRun(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, reports := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "remap", "card", "5292", "--dry-run", "-c", cfg)
	require.NoError(t, err)

	assert.Contains(t, stdout, "remap card_5292 (dry run)")
	assert.Contains(t, stdout, "Processed: 1, updated: 0, planned: 1, unchanged: 0, skipped: 0, failed: 0")
	assert.Contains(t, stdout, "Unresolved fields: 1")
	assert.Contains(t, stdout, "column AMOUNT")
	assert.Empty(t, srv.Puts("/api/card/5292"))
	assert.FileExists(t, filepath.Join(reports, "remap_card_5292_report.json"))
}

func TestRemapCardWrites(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	_, _, err := execute(t, "remap", "card", "5292", "-c", cfg, "--join-strategy", "inner-join")
	require.NoError(t, err)

	puts := srv.Puts("/api/card/5292")
	require.Len(t, puts, 1)
	assert.Contains(t, puts[0], `"source-table":90`)
	assert.Contains(t, puts[0], `"strategy":"inner-join"`)
	assert.Contains(t, puts[0], `["field",911,{"join-alias":"t1"}]`)
}

func TestRemapWithSessionToken(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)
	t.Setenv("MBMIGRATE_USERNAME", "nobody")
	t.Setenv("MBMIGRATE_SESSION_TOKEN", metabasetest.Token)

	stdout, _, err := execute(t, "remap", "card", "5292", "-d", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "planned: 1")
}

func TestRemapFailedItemExitsNonZero(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "remap", "card", "404", "-c", cfg)
	require.ErrorIs(t, err, errItemsFailed)
	assert.Contains(t, stdout, "failed: 1")
}

func TestRemapJSONFormat(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, stderr, err := execute(t, "remap", "card", "5292", "-d", "-f", "json", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"command": "remap"`)
	assert.Contains(t, stderr, "Report saved to")
	assert.NotContains(t, stdout, "Report saved to")
}

func TestBracketsWritesCard(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/card/7", `{"id":7,"name":"Native","dataset_query":{"type":"native","database":16,
		"native":{"query":"select * from t where {CREATED_AT}","template-tags":{}}}}`)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "brackets", "card", "7", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "updated: 1")

	puts := srv.Puts("/api/card/7")
	require.Len(t, puts, 1)
	assert.Contains(t, puts[0], "where {{CREATED_AT}}")
}

func TestBracketsSkipsStructuredCard(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "brackets", "card", "5292", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "skipped: 1")
	assert.Empty(t, srv.Puts("/api/card/5292"))
}

func TestTranslateFile(t *testing.T) {
	dir := t.TempDir()
	sqlFile := writeFile(t, dir, "query.sql", "select ADD_DAYS(created_at, 7) from t")
	cfg := writeFile(t, dir, "empty.toml", "")

	stdout, stderr, err := execute(t, "translate", "--file", sqlFile, "-c", cfg)
	require.NoError(t, err)
	assert.Equal(t, "select DATE_ADD(created_at, 7) from t", stdout)
	assert.Contains(t, stderr, "ADD_DAYS -> DATE_ADD (1)")
}

func TestVerifyMappingDDL(t *testing.T) {
	cfg, reports := writeConfig(t, "http://127.0.0.1:1")
	ddl := writeFile(t, t.TempDir(), "schema.sql",
		"CREATE TABLE sr_orders (vendor_id BIGINT NOT NULL, load_ts DATETIME);")

	stdout, _, err := execute(t, "verify-mapping", "--ddl", ddl, "-c", cfg)
	require.ErrorIs(t, err, errItemsFailed)
	assert.Contains(t, stdout, "Checked 2 mapped tables: 1 present, 1 missing")
	assert.Contains(t, stdout, "  - EXA.VENDORS -> sr_vendors\n")
	assert.FileExists(t, filepath.Join(reports, "verify_mapping_ddl_report.json"))
}

func TestVerifyMappingMetabase(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "verify-mapping", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Checked 2 mapped tables: 2 present, 0 missing")
}

func TestCompareTablesFromMapping(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "compare-tables", "5", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Comparing EXA.ORDERS -> SR_ORDERS")
	assert.Contains(t, stdout, "Only in source (fields would be removed):\n  - AMOUNT\n")
	assert.Contains(t, stdout, "Only in target:\n  - LOAD_TS\n")
	assert.NotContains(t, stdout, "nullable")
}

func TestCompareTablesByID(t *testing.T) {
	srv := newOrdersServer(t)
	cfg, _ := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "compare-tables", "5", "91", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 common, 1 only in source, 1 only in target")
}

func TestMetricsCreate(t *testing.T) {
	srv := newOrdersServer(t)
	srv.Set("/api/metric/12", `{"id":12,"name":"Vendors","table_id":5,
		"definition":{"source-table":5,"aggregation":[["distinct",["field",102,null]]]}}`)
	srv.Set("/api/metric/13", `{"id":13,"name":"Existing","table_id":5,"definition":{"source-table":5}}`)
	srv.Set("/api/collection/767/items", `{"data":[{"id":800,"name":"Existing SR","model":"metric"}]}`)
	cfg, reports := writeConfig(t, srv.URL)

	stdout, _, err := execute(t, "metrics", "create", "12", "13", "--target-collection-id", "767", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Processed: 2, updated: 1, planned: 0, unchanged: 0, skipped: 1, failed: 0")
	assert.Contains(t, stdout, `metric "Existing SR" already exists`)

	posts := srv.Posts("/api/metric")
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], `"name":"Vendors SR"`)
	assert.Contains(t, posts[0], `"table_id":91`)
	assert.Contains(t, posts[0], `"source-table":91`)
	assert.Contains(t, posts[0], `["field",911,null]`)
	assert.Contains(t, posts[0], `"collection_id":767`)
	assert.Empty(t, srv.Puts("/api/metric/12"))

	assert.Contains(t, stdout, "Created:\n   - metric 12 Vendors -> 1000\n")

	raw, err := os.ReadFile(filepath.Join(reports, "metrics_create_collection_767_report.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), fmt.Sprintf(`"created": %d`, metabasetest.FirstCreatedID))
}

func TestMetricsCreateNeedsCollection(t *testing.T) {
	cfg, _ := writeConfig(t, "http://127.0.0.1:1")
	_, _, err := execute(t, "metrics", "create", "12", "-c", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--target-collection-id is required")
}

func TestRestoreQueries(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/dashboard/485", `{"id":485,"name":"Widget","dashcards":[{"card_id":7},{"card_id":8}]}`)
	srv.Set("/api/card/7", `{"id":7,"name":"Turnover","dataset_query":{"type":"native","database":16,
		"native":{"query":"where CONFIRMED and {{CREATED_AT}}","template-tags":{}}}}`)
	srv.Set("/api/card/8", `{"id":8,"name":"Healthy","dataset_query":{"type":"native","database":16,
		"native":{"query":"select 1 from t","template-tags":{}}}}`)
	cfg, _ := writeConfig(t, srv.URL)
	tmpl := writeFile(t, t.TempDir(), "restore.yaml", `
template: |
  select {select}
  from MART__TRANSACTIONS
  where CONFIRMED and {{CREATED_AT}}
  {group_by}
cards:
  Turnover:
    select: sum(TURNOVER_EUR) as "Turnover"
`)

	stdout, _, err := execute(t, "restore", "queries", "dashboard", "485", "--template", tmpl, "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Processed: 2, updated: 1, planned: 0, unchanged: 1")

	puts := srv.Puts("/api/card/7")
	require.Len(t, puts, 1)
	assert.Contains(t, puts[0], `select sum(TURNOVER_EUR) as \"Turnover\"\nfrom MART__TRANSACTIONS`)
	assert.Contains(t, puts[0], `"template-tags":{"CREATED_AT":{"type":"dimension"`)
	assert.Empty(t, srv.Puts("/api/card/8"))
}

func TestRestoreVisualizations(t *testing.T) {
	srv := metabasetest.New(t)
	srv.Set("/api/card/7", `{"id":7,"name":"Failed reasons","display":"table","visualization_settings":{"table.pivot":true}}`)
	cfg, _ := writeConfig(t, srv.URL)
	settings := writeFile(t, t.TempDir(), "vis.yaml", "cards:\n  Failed reasons:\n    display: pie\n")

	stdout, _, err := execute(t, "restore", "visualizations", "card", "7", "--settings", settings, "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "updated: 1")

	puts := srv.Puts("/api/card/7")
	require.Len(t, puts, 1)
	assert.Contains(t, puts[0], `"display":"pie"`)
	assert.Contains(t, puts[0], `"visualization_settings":{"pie.show_legend":true,"pie.show_values":false}`)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		args    []string
		want    target
		wantErr string
	}{
		{args: []string{"dashboard", "42"}, want: target{kind: "dashboard", ids: []int64{42}}},
		{args: []string{"Card", "1", "2"}, want: target{kind: "card", ids: []int64{1, 2}}},
		{args: []string{"card"}, wantErr: "expected <dashboard|card>"},
		{args: []string{"metric", "1"}, wantErr: "unsupported target"},
		{args: []string{"card", "x"}, wantErr: `invalid id "x"`},
		{args: []string{"card", "0"}, wantErr: `invalid id "0"`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.args), func(t *testing.T) {
			got, err := parseTarget(tt.args, targetDashboard, targetCard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetName(t *testing.T) {
	assert.Equal(t, "dashboard_42_43", target{kind: targetDashboard, ids: []int64{42, 43}}.name())
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"1=10", " 2 = 20 "})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 10, 2: 20}, got)

	_, err = parsePairs([]string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use source=target")

	_, err = parsePairs([]string{"a=1"})
	require.Error(t, err)
}
