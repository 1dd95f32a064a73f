package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbmigrate/internal/core"
	"mbmigrate/internal/remap"
)

const sampleConfig = `
log_level = "debug"

[metabase]
base_url = "https://metabase.example.com"
username = "migrator@example.com"
password = "secret"
timeout = "45s"
requests_per_second = 5

[migration]
target_database_id = 21
join_strategy = "left-join"
mapping_file = "mapping.yaml"

[[migration.column_overrides]]
column = "CARD_GEO"
table_id = 50
field_id = 1077

[[template_tags]]
name = "Card_Geo"
display_name = "Card Geo"
field_id = 1047
column = "CARD_GEO"
required_in_where = true

[dialect.functions]
NVL = "COALESCE"
SUBSTR = ""

[metrics]
source_collection = "Old"
target_collection = "New"

[starrocks]
dsn = "root@tcp(starrocks:9030)/analytics"
dialect = "TiDB"

[report]
dir = "reports"
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.RequireMetabase())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://metabase.example.com", cfg.Metabase.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Metabase.Timeout.Duration)
	assert.Equal(t, 5.0, cfg.Metabase.RequestsPerSecond)
	assert.Equal(t, int64(21), cfg.Migration.TargetDatabaseID)
	assert.Equal(t, "left-join", cfg.Migration.JoinStrategy)
	assert.Equal(t, []remap.Override{{Column: "CARD_GEO", TableID: 50, FieldID: 1077}}, cfg.Migration.ColumnOverrides)
	assert.Equal(t, map[string]string{"NVL": "COALESCE", "SUBSTR": ""}, cfg.Dialect.Functions)
	assert.Equal(t, "Old", cfg.Metrics.SourceCollection)
	assert.Equal(t, "root@tcp(starrocks:9030)/analytics", cfg.StarRocks.DSN)
	assert.Equal(t, core.DialectTiDB, cfg.StarRocks.TargetDialect())
	assert.Equal(t, "reports", cfg.Report.Dir)

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	require.Len(t, cat.Tags(), 1)
	tag, ok := cat.Get("Card_Geo")
	require.True(t, ok)
	assert.True(t, tag.RequiredInWhere)
	assert.NotEmpty(t, tag.ID)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(DefaultTargetDatabaseID), cfg.Migration.TargetDatabaseID)
	assert.Equal(t, 30*time.Second, cfg.Metabase.Timeout.Duration)
	assert.Equal(t, ".", cfg.Report.Dir)
	assert.Equal(t, core.DialectStarRocks, cfg.StarRocks.TargetDialect())

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Len(t, cat.Tags(), 9)

	err = cfg.RequireMetabase()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), EnvBaseURL)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("[metabase]\nbase_ur = \"x\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys: metabase.base_ur")
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse(strings.NewReader("[metabase]\ntimeout = \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Migration.TargetDatabaseID = 0
	cfg.Migration.JoinStrategy = "cross-join"
	cfg.Migration.ColumnOverrides = []remap.Override{{Column: "X"}}
	cfg.StarRocks.Dialect = "oracle"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	msg := err.Error()
	assert.Contains(t, msg, `unknown log level "loud"`)
	assert.Contains(t, msg, "target_database_id must be positive")
	assert.Contains(t, msg, `join_strategy "cross-join"`)
	assert.Contains(t, msg, "column_overrides[0]")
	assert.Contains(t, msg, `starrocks.dialect "oracle" is not one of`)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBaseURL:          "http://env:3000",
		EnvUsername:         "env-user",
		EnvPassword:         "",
		EnvTargetDatabaseID: "42",
	}
	cfg := Default()
	cfg.Metabase.Password = "from-file"
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "http://env:3000", cfg.Metabase.BaseURL)
	assert.Equal(t, "env-user", cfg.Metabase.Username)
	assert.Equal(t, "from-file", cfg.Metabase.Password)
	assert.Equal(t, int64(42), cfg.Migration.TargetDatabaseID)
}

func TestRequireMetabaseAcceptsSessionToken(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := map[string]string{
			EnvBaseURL:      "http://env:3000",
			EnvSessionToken: "b6a5c0c2",
		}[k]
		return v, ok
	})
	assert.Equal(t, "b6a5c0c2", cfg.Metabase.SessionToken)
	require.NoError(t, cfg.RequireMetabase())

	cfg.Metabase.SessionToken = ""
	err := cfg.RequireMetabase()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metabase.username")
	assert.Contains(t, err.Error(), "metabase.password")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mbmigrate.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	t.Setenv(EnvUsername, "override@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override@example.com", cfg.Metabase.Username)
	assert.Equal(t, "secret", cfg.Metabase.Password)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNewLogger(t *testing.T) {
	var sb strings.Builder
	logger, err := NewLogger(&sb, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("table not mapped", "table", "DWH.ORDERS")
	assert.NotContains(t, sb.String(), "hidden")
	assert.Contains(t, sb.String(), "level=WARN")
	assert.Contains(t, sb.String(), "table=DWH.ORDERS")

	_, err = NewLogger(&sb, "chatty")
	require.Error(t, err)
}
