// Package config loads mbmigrate.toml. Values come from the file, then from
// MBMIGRATE_* environment variables, then from command line flags applied by
// the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"mbmigrate/internal/core"
	"mbmigrate/internal/remap"
	"mbmigrate/internal/sqltag"
)

// DefaultFile is read when no config path is given and the file exists.
const DefaultFile = "mbmigrate.toml"

// DefaultTargetDatabaseID is the Metabase id of the StarRocks database.
const DefaultTargetDatabaseID = 16

// Environment variables overriding the file.
const (
	EnvBaseURL          = "MBMIGRATE_BASE_URL"
	EnvUsername         = "MBMIGRATE_USERNAME"
	EnvPassword         = "MBMIGRATE_PASSWORD"
	EnvSessionToken     = "MBMIGRATE_SESSION_TOKEN"
	EnvStarRocksDSN     = "MBMIGRATE_STARROCKS_DSN"
	EnvMappingFile      = "MBMIGRATE_MAPPING_FILE"
	EnvTargetDatabaseID = "MBMIGRATE_TARGET_DATABASE_ID"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole configuration file.
type Config struct {
	LogLevel     string          `toml:"log_level"`
	Metabase     MetabaseConfig  `toml:"metabase"`
	Migration    MigrationConfig `toml:"migration"`
	TemplateTags []sqltag.Tag    `toml:"template_tags"`
	Dialect      DialectConfig   `toml:"dialect"`
	Metrics      MetricsConfig   `toml:"metrics"`
	StarRocks    StarRocksConfig `toml:"starrocks"`
	Report       ReportConfig    `toml:"report"`
}

// MetabaseConfig holds the connection to the Metabase instance.
type MetabaseConfig struct {
	BaseURL           string   `toml:"base_url"`
	Username          string   `toml:"username"`
	Password          string   `toml:"password"`
	SessionToken      string   `toml:"session_token"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// MigrationConfig drives the structured query remapper.
type MigrationConfig struct {
	TargetDatabaseID int64            `toml:"target_database_id"`
	JoinStrategy     string           `toml:"join_strategy"`
	MappingFile      string           `toml:"mapping_file"`
	ColumnOverrides  []remap.Override `toml:"column_overrides"`
}

// DialectConfig adjusts the SQL function rewrites. An empty value disables
// the built-in rewrite of that function.
type DialectConfig struct {
	Functions map[string]string `toml:"functions"`
}

// MetricsConfig names the collections holding source and target metrics.
type MetricsConfig struct {
	SourceCollection string `toml:"source_collection"`
	TargetCollection string `toml:"target_collection"`
}

// StarRocksConfig is the direct database connection used to verify mappings.
// Dialect selects the introspecter; MySQL-protocol engines other than
// StarRocks are accepted for staging copies.
type StarRocksConfig struct {
	DSN     string `toml:"dsn"`
	Dialect string `toml:"dialect"`
}

// TargetDialect returns Dialect in its canonical form.
func (s StarRocksConfig) TargetDialect() core.Dialect {
	return core.Dialect(strings.ToLower(strings.TrimSpace(s.Dialect)))
}

// ReportConfig controls where run reports are written.
type ReportConfig struct {
	Dir string `toml:"dir"`
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Metabase: MetabaseConfig{Timeout: Duration{30 * time.Second}},
		Migration: MigrationConfig{
			TargetDatabaseID: DefaultTargetDatabaseID,
			MappingFile:      "table_mapping.json",
		},
		Metrics: MetricsConfig{
			SourceCollection: "Migrated Metrics",
			TargetCollection: "Starrocks Metabase Metrics",
		},
		StarRocks: StarRocksConfig{Dialect: string(core.DialectStarRocks)},
		Report:    ReportConfig{Dir: "."},
	}
}

// Load reads path, or DefaultFile when path is empty and that file exists,
// and applies environment overrides. A missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse reads TOML from r on top of the defaults. Environment variables are not applied.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides values with the environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvBaseURL, &c.Metabase.BaseURL)
	set(EnvUsername, &c.Metabase.Username)
	set(EnvPassword, &c.Metabase.Password)
	set(EnvSessionToken, &c.Metabase.SessionToken)
	set(EnvStarRocksDSN, &c.StarRocks.DSN)
	set(EnvMappingFile, &c.Migration.MappingFile)

	var id string
	set(EnvTargetDatabaseID, &id)
	if id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Migration.TargetDatabaseID = n
		}
	}
}

var joinStrategies = map[string]bool{
	"":           true,
	"left-join":  true,
	"right-join": true,
	"inner-join": true,
	"full-join":  true,
}

// Validate checks the settings every command needs. Credentials are checked
// separately by RequireMetabase because offline commands do not need them.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Migration.TargetDatabaseID <= 0 {
		errs = append(errs, fmt.Errorf("migration.target_database_id must be positive, got %d", c.Migration.TargetDatabaseID))
	}
	if !joinStrategies[c.Migration.JoinStrategy] {
		errs = append(errs, fmt.Errorf("migration.join_strategy %q is not one of left-join, right-join, inner-join, full-join", c.Migration.JoinStrategy))
	}
	for i, o := range c.Migration.ColumnOverrides {
		if strings.TrimSpace(o.Column) == "" || o.TableID <= 0 || o.FieldID <= 0 {
			errs = append(errs, fmt.Errorf("migration.column_overrides[%d] needs column, table_id and field_id", i))
		}
	}
	if !core.IsValidDialect(strings.TrimSpace(c.StarRocks.Dialect)) {
		errs = append(errs, fmt.Errorf("starrocks.dialect %q is not one of %v", c.StarRocks.Dialect, core.SupportedDialects()))
	}
	if c.Metabase.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("metabase.timeout must not be negative"))
	}
	if c.Metabase.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("metabase.requests_per_second must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// RequireMetabase checks that the Metabase connection settings are present.
// A session token replaces the username and password.
func (c *Config) RequireMetabase() error {
	var missing []string
	if c.Metabase.BaseURL == "" {
		missing = append(missing, "metabase.base_url ("+EnvBaseURL+")")
	}
	if c.Metabase.SessionToken == "" {
		if c.Metabase.Username == "" {
			missing = append(missing, "metabase.username ("+EnvUsername+")")
		}
		if c.Metabase.Password == "" {
			missing = append(missing, "metabase.password ("+EnvPassword+")")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Catalog returns the template tag catalog: the configured tags, or the
// standard tags when none are configured.
func (c *Config) Catalog() (*sqltag.Catalog, error) {
	if len(c.TemplateTags) == 0 {
		return sqltag.DefaultCatalog(), nil
	}
	return sqltag.NewCatalog(c.TemplateTags)
}
