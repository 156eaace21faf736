package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Fatalf("unexpected default backend: %s", cfg.Store.Backend)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  host: 127.0.0.1
  port: 9090
store:
  backend: memory
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NITEMAP_PORT", "9191")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("yaml host not applied: %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9191 {
		t.Fatalf("env override not applied: %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("yaml log level not applied: %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatalf("postgres backend without DSN should fail validation")
	}

	cfg = Default()
	cfg.Store.Backend = BackendSupabase
	if err := cfg.Validate(); err == nil {
		t.Fatalf("supabase backend without keys should fail validation")
	}

	cfg = Default()
	cfg.Store.Backend = "bolt"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown backend should fail validation")
	}
}
