package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{
  "telegram": {
    "token": "123:abc",
    "target_chat_id": -100200300,
    "owner_user_ids": [1, 2]
  },
  "logging": {"level": "debug", "console": true},
  "scheduler": {"poll_interval": "5s", "timezone": "Europe/Moscow"},
  "storage": {"driver": "file", "path": "./broadcasts.json"},
  "broadcast": {"rate_per_sec": 2}
}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.TargetChatID != -100200300 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Telegram)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Scheduler.PollInterval != "5s" || cfg.Scheduler.Timezone != "Europe/Moscow" {
		t.Fatalf("scheduler section mismatch: %+v", cfg.Scheduler)
	}
	if cfg.Storage.Driver != "file" || cfg.Broadcast.RatePerSec != 2 {
		t.Fatalf("storage/broadcast mismatch: %+v %+v", cfg.Storage, cfg.Broadcast)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
telegram:
  token: "123:abc"
  target_chat_id: -100200300
logging:
  level: info
  console: true
scheduler:
  poll_interval: 10s
storage:
  driver: sqlite
  path: ./broadcasts.db
  busy_timeout: 3s
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.TargetChatID != -100200300 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "3s" {
		t.Fatalf("storage section mismatch: %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x", "chat": 1}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json", `{"telegram": {"token": "x"}}{"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data must be rejected")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"empty means zero", "", 0, false},
		{"seconds", "5s", 5 * time.Second, false},
		{"spaces trimmed", "  250ms ", 250 * time.Millisecond, false},
		{"negative rejected", "-1s", 0, true},
		{"garbage rejected", "soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("x.y", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseDurationField(%q) = (%v, %v), want %v", tt.raw, got, err, tt.want)
			}
		})
	}

	if d, err := ParseDurationOrDefault("x.y", "", 10*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = (%v, %v), want default 10s", d, err)
	}
	if d, err := ParseDurationOrDefault("x.y", "3s", 10*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault 3s = (%v, %v)", d, err)
	}
}

func TestSubscribeDropOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	first := &Config{}
	second := &Config{Telegram: TelegramConfig{Token: "new"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-sub:
		if got != second {
			t.Fatal("slow subscriber must receive the newest config")
		}
	default:
		t.Fatal("expected a queued config")
	}
}
