package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func clearEngineEnv(t *testing.T) {
	t.Helper()
	// t.Setenv registers cleanup restoring the original values.
	for _, key := range []string{
		"PGHOST", "PGPORT", "PGUSER", "PGDATABASE", "REDIS_HOST",
		"CACHE_RESULT_TTL_MINUTES", "QUERY_MAX_ROWS", "QUERY_DEFAULT_ROWS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	clearEngineEnv(t)

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Version != "test-version" {
		t.Errorf("Version = %q", cfg.Version)
	}
	if cfg.Port != "8090" {
		t.Errorf("Port = %q, want default 8090", cfg.Port)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Redis.Host != "" {
		t.Errorf("Redis host should default empty (cacheless), got %q", cfg.Redis.Host)
	}
	if cfg.Cache.ResultTTL() != 5*time.Minute {
		t.Errorf("ResultTTL = %v", cfg.Cache.ResultTTL())
	}
	if cfg.Cache.MappingTTL() != 90*time.Minute {
		t.Errorf("MappingTTL = %v", cfg.Cache.MappingTTL())
	}
	if cfg.Cache.WriteTimeout() != 2*time.Second {
		t.Errorf("WriteTimeout = %v", cfg.Cache.WriteTimeout())
	}
	if cfg.Query.MaxRows != 10000 || cfg.Query.DefaultRows != 1000 || cfg.Query.MaxRetries != 3 {
		t.Errorf("query defaults = %+v", cfg.Query)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)
	clearEngineEnv(t)

	yamlContent := `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  database: "warehouse"
cache:
  result_ttl_minutes: 10
query:
  max_rows: 5000
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("PORT", "4443")
	t.Setenv("CACHE_RESULT_TTL_MINUTES", "2")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Cache.ResultTTLMinutes != 2 {
		t.Errorf("expected ResultTTLMinutes=2 (from env), got %d", cfg.Cache.ResultTTLMinutes)
	}
	// YAML values without env overrides stand.
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Database.Host = %q", cfg.Database.Host)
	}
	if cfg.Query.MaxRows != 5000 {
		t.Errorf("Query.MaxRows = %d", cfg.Query.MaxRows)
	}
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	tmpDir := chdirTemp(t)
	clearEngineEnv(t)

	// A password in YAML must be ignored; the yaml:"-" tag keeps secrets
	// out of checked-in files.
	yamlContent := `
database:
  password: "from-yaml"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("PGPASSWORD", "from-env")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("Password = %q, want env value", cfg.Database.Password)
	}
}

func TestLoad_ValidatesLimits(t *testing.T) {
	chdirTemp(t)
	clearEngineEnv(t)

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero result ttl", key: "CACHE_RESULT_TTL_MINUTES", value: "0"},
		{name: "zero max rows", key: "QUERY_MAX_ROWS", value: "0"},
		{name: "default above max", key: "QUERY_DEFAULT_ROWS", value: "999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load("test-version"); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "analytics",
		Password: "secret",
		Database: "warehouse",
		SSLMode:  "require",
	}

	want := "host=db.internal port=5433 user=analytics password=secret dbname=warehouse sslmode=require"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
