package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.WSPingInterval != time.Second {
		t.Fatalf("ping interval = %v", cfg.WSPingInterval)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("no development fallback secret")
	}
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("production load succeeded without JWT_SECRET")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("WS_READ_LIMIT", "8192")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("redis db = %d", cfg.RedisDB)
	}
	if cfg.WSReadLimit != 8192 {
		t.Fatalf("read limit = %d", cfg.WSReadLimit)
	}
}

func TestEnvFileDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "HTTP_ADDR=:7777\n# comment\nREDIS_PASSWORD=\"filepass\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HTTP_ADDR", ":9999")
	os.Unsetenv("REDIS_PASSWORD")
	t.Cleanup(func() { os.Unsetenv("REDIS_PASSWORD") })

	loadEnvFile(path)

	if got := os.Getenv("HTTP_ADDR"); got != ":9999" {
		t.Fatalf("env file overrode process env: %q", got)
	}
	if got := os.Getenv("REDIS_PASSWORD"); got != "filepass" {
		t.Fatalf("quoted value = %q", got)
	}
}
