package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if !cfg.Enrichment.Enabled {
		t.Error("enrichment should default to enabled")
	}
	if cfg.Gateway.MaxRows != 500 {
		t.Errorf("gateway max rows = %d, want 500", cfg.Gateway.MaxRows)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka should default to disabled")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9000
enrichment:
  enabled: false
  timeout: 30s
gateway:
  maxRows: 100
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Enrichment.Enabled {
		t.Error("enrichment should be disabled by the file")
	}
	if cfg.Enrichment.Timeout != 30*time.Second {
		t.Errorf("enrichment timeout = %v, want 30s", cfg.Enrichment.Timeout)
	}
	if cfg.Gateway.MaxRows != 100 {
		t.Errorf("gateway max rows = %d, want 100", cfg.Gateway.MaxRows)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DV_SERVER_PORT", "7777")
	t.Setenv("DV_POSTGRES_HOST", "db.internal")
	t.Setenv("DV_ENRICHMENT_ENABLED", "false")
	t.Setenv("DV_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("server port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("postgres host = %q", cfg.Postgres.Host)
	}
	if cfg.Enrichment.Enabled {
		t.Error("enrichment should be disabled via env")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("kafka brokers = %v, want 2", cfg.Kafka.Brokers)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "localhost", Port: 5432, Database: "docvault",
		User: "app", Password: "secret", SSLMode: "disable",
	}
	dsn := cfg.DSN()
	want := "host=localhost port=5432 user=app password=secret dbname=docvault sslmode=disable"
	if dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}
