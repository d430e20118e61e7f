package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9100
  max_body_bytes: 2MB
storage:
  db_path: /var/lib/parakarry
gateway:
  bridge_url: http://127.0.0.1:9130
  guild_id: g1
  category_id: cat1
mail:
  reply_max_len: 1500
  leave_close_delay: 8h
security:
  rate_limit:
    rps: 20
    burst: 40
  api_keys:
    backend: [bk1, bk2]
    admin: [ak1]
retention:
  enabled: true
  period: 12w
  batch_sleep: 250ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9100" {
		t.Fatalf("Addr = %s", cfg.Addr())
	}
	if cfg.Server.MaxBodyBytes.Int64() != 2*1000*1000 {
		t.Fatalf("MaxBodyBytes = %d", cfg.Server.MaxBodyBytes.Int64())
	}
	if cfg.Storage.DBPath != "/var/lib/parakarry" {
		t.Fatalf("DBPath = %s", cfg.Storage.DBPath)
	}
	if cfg.Mail.ReplyMaxLen != 1500 || cfg.Mail.LeaveCloseDelay != "8h" {
		t.Fatalf("mail = %+v", cfg.Mail)
	}
	if len(cfg.Security.APIKeys.Backend) != 2 || cfg.Security.APIKeys.Admin[0] != "ak1" {
		t.Fatalf("api keys = %+v", cfg.Security.APIKeys)
	}
	if cfg.Retention.BatchSleep.Duration() != 250*time.Millisecond {
		t.Fatalf("BatchSleep = %v", cfg.Retention.BatchSleep.Duration())
	}
	if !cfg.Retention.Enabled || cfg.Retention.Period != "12w" {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARAKARRY_ADDR", "0.0.0.0:7000")
	t.Setenv("PARAKARRY_DB_PATH", "/tmp/pk")
	t.Setenv("PARAKARRY_GUILD_ID", "g-env")
	t.Setenv("PARAKARRY_API_BACKEND_KEYS", "k1, k2 ,k3")
	t.Setenv("PARAKARRY_RATE_RPS", "7.5")

	cfg := &Config{}
	if !LoadEnvOverrides(cfg) {
		t.Fatalf("envUsed = false")
	}
	if cfg.Addr() != "0.0.0.0:7000" {
		t.Fatalf("Addr = %s", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/tmp/pk" || cfg.Gateway.GuildID != "g-env" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Security.APIKeys.Backend) != 3 || cfg.Security.APIKeys.Backend[1] != "k2" {
		t.Fatalf("backend keys = %v", cfg.Security.APIKeys.Backend)
	}
	if cfg.Security.RateLimit.RPS != 7.5 {
		t.Fatalf("rps = %v", cfg.Security.RateLimit.RPS)
	}
}

func TestLoadEffectiveMissingFileFallsBack(t *testing.T) {
	t.Setenv("PARAKARRY_PORT", "9999")
	cfg, envUsed, err := LoadEffective(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if !envUsed || cfg.Server.Port != 9999 {
		t.Fatalf("cfg = %+v envUsed=%v", cfg.Server, envUsed)
	}
}
