package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalJSON = `{
  "telegram": {"token": "123:abc", "owner_user_ids": [42]},
  "logging": {"level": "debug", "console": true},
  "registry": {"path": "./subscribers.json"},
  "scheduler": {"timezone": "America/Costa_Rica", "offset_minutes": 5, "misfire_grace": "5m"}
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Scheduler.Timezone != "America/Costa_Rica" {
		t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	yml := `
telegram:
  token: "123:abc"
logging:
  console: true
registry:
  path: ./subscribers.json
scheduler:
  fallback_hour: 21
`
	m := NewManager(writeConfig(t, "config.yaml", yml))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.FallbackHour == nil || *cfg.Scheduler.FallbackHour != 21 {
		t.Fatalf("fallback_hour = %v", cfg.Scheduler.FallbackHour)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"token": "t", "typo_field": true},
  "registry": {"path": "p"},
  "logging": {"console": true},
  "scheduler": {}
}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{
  "telegram": {"token": " "},
  "registry": {"path": "p"},
  "logging": {"console": true},
  "scheduler": {}
}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("expected validation error for missing token")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("scheduler.misfire_grace", "5m")
	if err != nil || d != 5*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "five minutes"); err == nil {
		t.Fatal("expected error for malformed duration")
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	d, err = ParseDurationOrDefault("x", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("default not applied: %v, %v", d, err)
	}
}
