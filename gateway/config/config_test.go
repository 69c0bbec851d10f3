package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsRequireSecret(t *testing.T) {
	t.Setenv(EnvHMACSecret, "")
	if _, err := Load(""); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadSecretFromEnvironment(t *testing.T) {
	t.Setenv(EnvHMACSecret, testSecret)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatalf("expected auth.enabled to default to true")
	}
	if cfg.Auth.HMACSecret != testSecret {
		t.Fatalf("expected secret from environment")
	}
	if _, ok := cfg.RateLimit("write"); !ok {
		t.Fatalf("expected default write rate limit")
	}
}

func TestLoadParsesFile(t *testing.T) {
	t.Setenv(EnvHMACSecret, "")
	path := writeConfig(t, `listen: ":9443"
auth:
  enabled: true
  hmacSecret: "`+testSecret+`"
  issuer: wagerd
rateLimits:
  - id: write
    requestsPerMinute: 30
    burst: 5
storage:
  idempotencyPath: /var/lib/wager/idem.db
  auditPath: /var/lib/wager/audit.db
stream:
  bufferSize: 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9443" || cfg.Auth.Issuer != "wagerd" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	limit, ok := cfg.RateLimit("write")
	if !ok || limit.Burst != 5 {
		t.Fatalf("unexpected write limit: %+v", limit)
	}
	if cfg.Storage.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected default idempotency ttl, got %s", cfg.Storage.IdempotencyTTL)
	}
	if cfg.Stream.BufferSize != 8 {
		t.Fatalf("expected stream buffer 8, got %d", cfg.Stream.BufferSize)
	}
}

func TestLoadAuthDisabledNeedsNoSecret(t *testing.T) {
	t.Setenv(EnvHMACSecret, "")
	path := writeConfig(t, "auth:\n  enabled: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth disabled")
	}
}

func TestValidateRejectsBrokenSettings(t *testing.T) {
	cases := map[string]string{
		"short secret":   "auth:\n  hmacSecret: short\n",
		"duplicate rate": "auth:\n  hmacSecret: " + testSecret + "\nrateLimits:\n  - id: a\n    requestsPerMinute: 1\n  - id: a\n    requestsPerMinute: 1\n",
		"zero rate":      "auth:\n  hmacSecret: " + testSecret + "\nrateLimits:\n  - id: a\n",
		"half tls":       "auth:\n  hmacSecret: " + testSecret + "\nsecurity:\n  tlsCertFile: /cert.pem\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvHMACSecret, "")
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}
