package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "localhost:8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.DBPath != "studydeck.db" {
		t.Errorf("db = %q", cfg.DBPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log-level = %q", cfg.LogLevel)
	}
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Setenv("STUDYDECK_LISTEN", "localhost:1111")
	t.Setenv("STUDYDECK_LOG_LEVEL", "warn")

	cfg, err := Load([]string{"--listen", "localhost:2222"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "localhost:2222" {
		t.Errorf("flag should win over env, got %q", cfg.Listen)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("env should win over default, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	if _, err := Load([]string{"--log-level", "loud"}); err == nil {
		t.Error("expected a validation error")
	}
}
