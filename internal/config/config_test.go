package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("default storage type = %q, want sqlite", cfg.Storage.Type)
	}
	if cfg.Flush.Interval != "1h" {
		t.Errorf("default flush interval = %q, want 1h", cfg.Flush.Interval)
	}
	if cfg.Server.APIPort != 8080 {
		t.Errorf("default API port = %d, want 8080", cfg.Server.APIPort)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontime.yaml")
	content := `
server:
  api_port: 9000
storage:
  type: snapshot
  path: ` + filepath.Join(dir, "stats") + `
logging:
  level: debug
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIPort != 9000 {
		t.Errorf("api_port = %d, want 9000", cfg.Server.APIPort)
	}
	if cfg.Storage.Type != "snapshot" {
		t.Errorf("storage type = %q, want snapshot", cfg.Storage.Type)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsUnknownStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontime.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  type: bolt\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

func TestRedisAddr(t *testing.T) {
	c := RedisConfig{Host: "127.0.0.1", Port: 6379}
	if got := c.Addr(); got != "127.0.0.1:6379" {
		t.Errorf("Addr() = %q", got)
	}
	c = RedisConfig{Host: "redis.internal:6380"}
	if got := c.Addr(); got != "redis.internal:6380" {
		t.Errorf("Addr() = %q", got)
	}
}
