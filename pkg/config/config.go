package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Update policies for contracts whose dedup key already exists in the store.
const (
	UpdatePolicySkip   = "skip"
	UpdatePolicyUpdate = "update"
)

// Config holds all configuration for the contract-registry engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis backs the query cache. Empty host falls back to the in-process cache.
	Redis RedisConfig `yaml:"redis"`

	// Monthly dump ingestion
	Sync SyncConfig `yaml:"sync"`

	// XML party-shape probing policy
	Extractor ExtractorConfig `yaml:"extractor"`

	// Query cache behaviour
	Cache CacheConfig `yaml:"cache"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string       `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int          `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string       `yaml:"user" env:"PGUSER" env-default:"danovyhlidac"`
	Password       string       `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string       `yaml:"database" env:"PGDATABASE" env-default:"danovyhlidac"`
	MaxConnections int32        `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string       `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string       `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	Tables         TablesConfig `yaml:"tables"`
}

// TablesConfig names the four logical tables. The names are resolved once at
// startup; the store never probes for table names at query time.
type TablesConfig struct {
	Contracts  string `yaml:"contracts" env:"TABLE_CONTRACTS" env-default:"contracts"`
	Suppliers  string `yaml:"suppliers" env:"TABLE_SUPPLIERS" env-default:"suppliers"`
	Amendments string `yaml:"amendments" env:"TABLE_AMENDMENTS" env-default:"amendments"`
	Inquiries  string `yaml:"inquiries" env:"TABLE_INQUIRIES" env-default:"inquiries"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SyncConfig controls where dumps come from and where they are staged.
type SyncConfig struct {
	// SourceBaseURL is the directory URL that serves dump_YYYY_MM.xml files.
	SourceBaseURL string        `yaml:"source_base_url" env:"SYNC_SOURCE_BASE_URL" env-default:"https://data.smlouvy.gov.cz"`
	StagingDir    string        `yaml:"staging_dir" env:"SYNC_STAGING_DIR" env-default:""` // os.TempDir()/danovyhlidac if empty
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"SYNC_FETCH_TIMEOUT" env-default:"10m"`
	// UpdatePolicy decides what happens to a contract whose dedup key already exists:
	// "skip" (default) leaves the stored row untouched, "update" refreshes its mutable columns.
	UpdatePolicy string `yaml:"update_policy" env:"SYNC_UPDATE_POLICY" env-default:"skip"`
}

// ExtractorConfig holds the party-shape probing order.
type ExtractorConfig struct {
	// ShapeOrderStr is a comma-separated list of shape names tried in order.
	ShapeOrderStr string `yaml:"shape_order" env:"EXTRACTOR_SHAPE_ORDER" env-default:"tagged-subjects,direct-supplier,contracting-parties,legacy-flat"`

	// ShapeOrder is the parsed list from ShapeOrderStr (not from config file).
	ShapeOrder []string `yaml:"-"`
}

// CacheConfig holds query cache settings.
type CacheConfig struct {
	Prefix    string        `yaml:"prefix" env:"CACHE_PREFIX" env-default:"dh"`
	ListTTL   time.Duration `yaml:"list_ttl" env:"CACHE_LIST_TTL" env-default:"15m"`
	DetailTTL time.Duration `yaml:"detail_ttl" env:"CACHE_DETAIL_TTL" env-default:"1h"`
	StatTTL   time.Duration `yaml:"stat_ttl" env:"CACHE_STAT_TTL" env-default:"30m"`
	// OpTimeout bounds every backend call before the cache fails open.
	OpTimeout time.Duration `yaml:"op_timeout" env:"CACHE_OP_TIMEOUT" env-default:"250ms"`
	// BulkTimeout bounds scope invalidation and other prefix sweeps.
	BulkTimeout time.Duration `yaml:"bulk_timeout" env:"CACHE_BULK_TIMEOUT" env-default:"5s"`
	// LoadTimeout bounds a read-through store query shared by concurrent misses.
	LoadTimeout time.Duration `yaml:"load_timeout" env:"CACHE_LOAD_TIMEOUT" env-default:"30s"`

	// WarmQueries are the canonical list queries pre-computed by the warm endpoint.
	WarmQueries []WarmQuery `yaml:"warm_queries"`
}

// WarmQuery is one canonical list-query shape.
type WarmQuery struct {
	Query    string `yaml:"query"`
	Category string `yaml:"kategorie"`
	Limit    int    `yaml:"limit"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML file with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Extractor.ShapeOrder = parseList(c.Extractor.ShapeOrderStr)
	c.Sync.UpdatePolicy = strings.ToLower(strings.TrimSpace(c.Sync.UpdatePolicy))
	return nil
}

func (c *Config) validate() error {
	switch c.Sync.UpdatePolicy {
	case UpdatePolicySkip, UpdatePolicyUpdate:
	default:
		return fmt.Errorf("sync.update_policy must be %q or %q, got %q", UpdatePolicySkip, UpdatePolicyUpdate, c.Sync.UpdatePolicy)
	}

	if len(c.Extractor.ShapeOrder) == 0 {
		return fmt.Errorf("extractor.shape_order must list at least one shape")
	}

	if _, err := url.Parse(c.Sync.SourceBaseURL); err != nil {
		return fmt.Errorf("sync.source_base_url is not a valid URL: %w", err)
	}

	t := c.Database.Tables
	if t.Contracts == "" || t.Suppliers == "" || t.Amendments == "" || t.Inquiries == "" {
		return fmt.Errorf("database.tables must name contracts, suppliers, amendments and inquiries")
	}

	if c.Cache.OpTimeout <= 0 {
		return fmt.Errorf("cache.op_timeout must be positive")
	}
	if c.Cache.BulkTimeout < c.Cache.OpTimeout {
		return fmt.Errorf("cache.bulk_timeout must not be shorter than cache.op_timeout")
	}

	return nil
}

// parseList splits a comma-separated value, dropping blanks.
func parseList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
