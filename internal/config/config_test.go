package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("default addr wrong: %s", cfg.Addr())
	}
	if cfg.Mongo.Database != "verse" {
		t.Fatalf("default database wrong: %s", cfg.Mongo.Database)
	}
	if cfg.HTTP.RateLimit != 50 || cfg.HTTP.RateBurst != 100 {
		t.Fatalf("default rate limits wrong: %d/%d", cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	}
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  port: 9000
auth:
  secret: from-yaml
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("yaml port not applied: %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("yaml log level not applied: %s", cfg.Log.Level)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("env ttl not applied: %v", cfg.Auth.TokenTTL)
	}
	// Environment wins over the file.
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("env should override yaml secret: %s", cfg.Auth.Secret)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins list not parsed: %v", cfg.HTTP.AllowedOrigins)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatalf("missing explicit config file should error")
	}
}
