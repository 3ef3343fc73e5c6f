package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the analytics engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Analytics warehouse (PostgreSQL). The engine metadata tables live in
	// the same database under the engine schema.
	Database DatabaseConfig `yaml:"database"`

	// Redis cache store.
	Redis RedisConfig `yaml:"redis"`

	// Cache TTLs and query limits.
	Cache CacheConfig `yaml:"cache"`
	Query QueryConfig `yaml:"query"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"analytics"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"analytics"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// CacheConfig holds TTLs for the two cached resources. Results go stale
// quickly because the underlying tables refresh periodically; column
// mappings change only on schema migrations.
type CacheConfig struct {
	ResultTTLMinutes   int `yaml:"result_ttl_minutes" env:"CACHE_RESULT_TTL_MINUTES" env-default:"5"`
	MappingTTLMinutes  int `yaml:"mapping_ttl_minutes" env:"CACHE_MAPPING_TTL_MINUTES" env-default:"90"`
	ConfigTTLMinutes   int `yaml:"config_ttl_minutes" env:"CACHE_CONFIG_TTL_MINUTES" env-default:"90"`
	WriteTimeoutMillis int `yaml:"write_timeout_millis" env:"CACHE_WRITE_TIMEOUT_MILLIS" env-default:"2000"`
}

// ResultTTL returns the result-cache TTL as a duration.
func (c *CacheConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLMinutes) * time.Minute
}

// MappingTTL returns the column-mapping cache TTL as a duration.
func (c *CacheConfig) MappingTTL() time.Duration {
	return time.Duration(c.MappingTTLMinutes) * time.Minute
}

// ConfigTTL returns the data-source config cache TTL as a duration.
func (c *CacheConfig) ConfigTTL() time.Duration {
	return time.Duration(c.ConfigTTLMinutes) * time.Minute
}

// WriteTimeout bounds the fire-and-forget result-cache write.
func (c *CacheConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMillis) * time.Millisecond
}

// QueryConfig holds execution limits.
type QueryConfig struct {
	// MaxRows clamps any caller-supplied row limit.
	MaxRows int `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"10000"`
	// DefaultRows applies when the caller supplies no limit.
	DefaultRows int `yaml:"default_rows" env:"QUERY_DEFAULT_ROWS" env-default:"1000"`
	// MaxRetries bounds transient-error retries per statement.
	MaxRetries int `yaml:"max_retries" env:"QUERY_MAX_RETRIES" env-default:"3"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. config.yaml is optional; with no file present the
// configuration comes entirely from the environment and defaults.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Cache.ResultTTLMinutes <= 0 {
		return fmt.Errorf("cache result TTL must be positive, got %d", c.Cache.ResultTTLMinutes)
	}
	if c.Cache.MappingTTLMinutes <= 0 {
		return fmt.Errorf("cache mapping TTL must be positive, got %d", c.Cache.MappingTTLMinutes)
	}
	if c.Query.MaxRows <= 0 {
		return fmt.Errorf("query max rows must be positive, got %d", c.Query.MaxRows)
	}
	if c.Query.DefaultRows > c.Query.MaxRows {
		return fmt.Errorf("query default rows (%d) exceeds max rows (%d)", c.Query.DefaultRows, c.Query.MaxRows)
	}
	return nil
}
