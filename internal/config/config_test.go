package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.RiskBudget(); got != 20000 {
		t.Errorf("RiskBudget = %v, want 20000", got)
	}
	if got := cfg.Quantity(); got != 65 {
		t.Errorf("Quantity = %d, want 65", got)
	}
	if !cfg.IsPaperMode() {
		t.Error("default mode should be paper")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*Config)
	}{
		{"mode", func(c *Config) { c.Trading.Mode = "demo" }},
		{"capital", func(c *Config) { c.Trading.Capital = 0 }},
		{"session time", func(c *Config) { c.Trading.SessionStart = "9.20" }},
		{"weekday", func(c *Config) { c.Trading.ExpiryWeekday = "someday" }},
		{"hedge above short", func(c *Config) { c.Strategy.HedgeDeltaTarget = 0.3 }},
		{"delta out of range", func(c *Config) { c.Strategy.RollDeltaTarget = 1.2 }},
		{"l3 below l1", func(c *Config) { c.Gamma.L3SpotMove = 0.001 }},
		{"notification level", func(c *Config) { c.Notifications.Level = "loud" }},
		{"capacity", func(c *Config) { c.Trading.MaxOpenStructures = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.tweak(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadWritesTemplatesAndRoundTrips(t *testing.T) {
	clearEnv(t, "KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "STRANGLER_MODE", "STRANGLER_DB_PATH")
	dir := t.TempDir()

	first, err := Load(dir)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	second, err := Load(dir)
	if err != nil {
		t.Fatalf("load from template: %v", err)
	}
	if second.Gamma != first.Gamma {
		t.Errorf("gamma = %+v, want %+v", second.Gamma, first.Gamma)
	}
	if second.Gamma.L3TimeWindow != 45*time.Minute {
		t.Errorf("l3_time_window = %v", second.Gamma.L3TimeWindow)
	}
	if second.Scheduler != first.Scheduler {
		t.Errorf("scheduler = %+v, want %+v", second.Scheduler, first.Scheduler)
	}
	if second.Trading != first.Trading {
		t.Errorf("trading = %+v, want %+v", second.Trading, first.Trading)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t, "KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN", "TELEGRAM_BOT_TOKEN", "STRANGLER_DB_PATH")
	dir := t.TempDir()

	toml := "[trading]\nmode = \"paper\"\ncapital = 500000\n\n[gamma]\nl1_spot_move = 0.005\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	creds := "[kite]\napi_key = \"filekey\"\naccess_token = \"filetoken\"\n"
	if err := os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(creds), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TELEGRAM_CHAT_ID=4242\n"), 0600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("TELEGRAM_CHAT_ID")
	t.Cleanup(func() { os.Unsetenv("TELEGRAM_CHAT_ID") })

	t.Setenv("KITE_API_KEY", "envkey")
	t.Setenv("STRANGLER_MODE", "live")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trading.Capital != 500000 || cfg.Gamma.L1SpotMove != 0.005 {
		t.Errorf("file values not applied: capital %v l1 %v", cfg.Trading.Capital, cfg.Gamma.L1SpotMove)
	}
	if cfg.Gamma.L3SpotMove != 0.012 {
		t.Errorf("unset keys should keep defaults, l3 = %v", cfg.Gamma.L3SpotMove)
	}
	if cfg.Credentials.Kite.APIKey != "envkey" {
		t.Errorf("api key = %q, want env override", cfg.Credentials.Kite.APIKey)
	}
	if cfg.Credentials.Kite.AccessToken != "filetoken" {
		t.Errorf("access token = %q", cfg.Credentials.Kite.AccessToken)
	}
	if cfg.Notifications.Telegram.ChatID != "4242" {
		t.Errorf("chat id = %q, want value from .env", cfg.Notifications.Telegram.ChatID)
	}
	if cfg.IsPaperMode() {
		t.Error("STRANGLER_MODE should switch to live")
	}
}
