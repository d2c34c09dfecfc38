package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Capture.Extension != "webm" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  address: ":9090"
capture:
  segment_interval: 2s
  extension: mkv
storage:
  bucket: captures
redis:
  enabled: true
  address: "redis:6379"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Capture.SegmentInterval != 2*time.Second || cfg.Capture.Extension != "mkv" {
		t.Fatalf("capture not overridden: %+v", cfg.Capture)
	}
	if cfg.Storage.Bucket != "captures" {
		t.Fatalf("storage.bucket = %q", cfg.Storage.Bucket)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "redis:6379" {
		t.Fatalf("redis not overridden: %+v", cfg.Redis)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Signal.PingInterval != 30*time.Second {
		t.Fatalf("signal.ping_interval = %v", cfg.Signal.PingInterval)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("PAIRCALL_SERVER_ADDRESS", ":7070")
	t.Setenv("PAIRCALL_JWT_SECRET", "from-env")
	t.Setenv("PAIRCALL_STORAGE_TOKEN", "service-token")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":9090\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("env override lost: %q", cfg.Server.Address)
	}
	if cfg.Auth.JWTSecret != "from-env" || cfg.Storage.Token != "service-token" {
		t.Fatalf("secrets not overridden: %+v", cfg.Auth)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no signal endpoint", func(c *Config) { c.Signal.Address = ""; c.Signal.URL = "" }},
		{"zero segment interval", func(c *Config) { c.Capture.SegmentInterval = 0 }},
		{"negative settle delay", func(c *Config) { c.Capture.SettleDelay = -time.Second }},
		{"empty extension", func(c *Config) { c.Capture.Extension = "" }},
		{"zero signed url ttl", func(c *Config) { c.Storage.SignedURLTTL = 0 }},
		{"rate limiting without rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
		{"rate limiting without ws burst", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.Burst = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateIgnoresRateLimitsWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limiting must not be validated, got: %v", err)
	}
}
