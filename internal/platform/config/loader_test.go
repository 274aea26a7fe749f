package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoaderDefaultsWhenFileMissing(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).WithDotEnv(false)
	res, err := loader.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if res.Config.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", res.Config.Server.Port)
	}
	if res.Config.Cache.TTL != Duration(time.Hour) {
		t.Errorf("expected default ttl 1h, got %v", res.Config.Cache.TTL)
	}
}

func TestLoaderFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  ip: 127.0.0.1
  port: 9000
cache:
  driver: redis
  ttl: 30m
  redis:
    addr: localhost:6379
MT:
  pairs: ["en-fr"]
`)
	res, err := NewLoader(path).WithDotEnv(false).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	cfg := res.Config
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.TTL != Duration(30*time.Minute) {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if len(cfg.Translate.Pairs) != 1 || cfg.Translate.Pairs[0] != "en-fr" {
		t.Errorf("unexpected pairs: %v", cfg.Translate.Pairs)
	}
	// Untouched sections keep defaults.
	if cfg.Similarity.Excellent != 0.85 {
		t.Errorf("expected default excellent threshold, got %f", cfg.Similarity.Excellent)
	}
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("SPEECHBRIDGE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).WithDotEnv(false)
	res, err := loader.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if res.Config.Cache.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr env override not applied: %q", res.Config.Cache.Redis.Addr)
	}
	if res.Config.ASR.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key env override not applied")
	}
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: -1\n"},
		{"bad peak level", "audio:\n  peak_level: 1.5\n"},
		{"unordered thresholds", "similarity:\n  fair: 0.9\n  good: 0.5\n  excellent: 0.7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			if _, err := NewLoader(path).WithDotEnv(false).Load(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
