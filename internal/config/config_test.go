package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("ATTEND_START", "")
	t.Setenv("ATTEND_END", "")
	t.Setenv("MATCH_THRESHOLD", "")
	t.Setenv("LEDGER_TIMEOUT", "")
	t.Setenv(OverlayEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Attendance.Timezone != "Asia/Kolkata" {
		t.Errorf("expected default timezone Asia/Kolkata, got %q", cfg.Attendance.Timezone)
	}
	if cfg.Attendance.Start != "00:00" || cfg.Attendance.End != "21:00" {
		t.Errorf("unexpected default window %s-%s", cfg.Attendance.Start, cfg.Attendance.End)
	}
	if cfg.Attendance.MatchThreshold != 0.35 {
		t.Errorf("expected default threshold 0.35, got %v", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.LedgerTimeout != 5*time.Second {
		t.Errorf("expected ledger timeout 5s, got %v", cfg.Attendance.LedgerTimeout)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected embedding dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(OverlayEnv, "")
	t.Setenv("TIMEZONE", "Europe/Prague")
	t.Setenv("ATTEND_START", "08:00")
	t.Setenv("ATTEND_END", "09:30")
	t.Setenv("MATCH_THRESHOLD", "0.4")
	t.Setenv("LEDGER_TIMEOUT", "2s")
	t.Setenv("ADMIN_PIN", "4321")
	t.Setenv("EMBEDDING_DIM", "128")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Attendance.Timezone != "Europe/Prague" {
		t.Errorf("timezone = %q", cfg.Attendance.Timezone)
	}
	if cfg.Attendance.Start != "08:00" || cfg.Attendance.End != "09:30" {
		t.Errorf("window = %s-%s", cfg.Attendance.Start, cfg.Attendance.End)
	}
	if cfg.Attendance.MatchThreshold != 0.4 {
		t.Errorf("threshold = %v", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.LedgerTimeout != 2*time.Second {
		t.Errorf("ledger timeout = %v", cfg.Attendance.LedgerTimeout)
	}
	if cfg.Web.AdminPIN != "4321" {
		t.Errorf("admin pin = %q", cfg.Web.AdminPIN)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("embedding dim = %d", cfg.Embedding.Dim)
	}
}

func TestLoad_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	overlay := "attendance:\n  start: \"07:15\"\n  ambiguity_margin: 0.02\nweb:\n  port: 9000\n"
	if err := os.WriteFile(path, []byte(overlay), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(OverlayEnv, path)
	t.Setenv("ATTEND_START", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("MATCH_AMBIGUITY_MARGIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Attendance.Start != "07:15" {
		t.Errorf("start = %q, want 07:15", cfg.Attendance.Start)
	}
	if cfg.Attendance.End != "21:00" {
		t.Errorf("end = %q, overlay must keep defaults for unset keys", cfg.Attendance.End)
	}
	if cfg.Attendance.AmbiguityMargin != 0.02 {
		t.Errorf("ambiguity margin = %v", cfg.Attendance.AmbiguityMargin)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("port = %d", cfg.Web.Port)
	}
}

func TestLoad_OverlayMissing(t *testing.T) {
	t.Setenv(OverlayEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing overlay file")
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv(OverlayEnv, "")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		defaultVal int
		expected   int
	}{
		{"unset", "", 25, 25},
		{"valid", "10", 25, 10},
		{"zero", "0", 25, 25},
		{"negative", "-5", 25, 25},
		{"non-numeric", "abc", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_INT", tt.value)
			if got := envInt("TEST_ENV_INT", tt.defaultVal); got != tt.expected {
				t.Errorf("envInt() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"unset", "", time.Minute},
		{"valid", "3s", 3 * time.Second},
		{"invalid", "soon", time.Minute},
		{"negative", "-1s", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_DURATION", tt.value)
			if got := envDuration("TEST_ENV_DURATION", time.Minute); got != tt.expected {
				t.Errorf("envDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_ENV_LIST", " https://a.example , ,https://b.example")
	got := envList("TEST_ENV_LIST", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("envList() = %v", got)
	}

	t.Setenv("TEST_ENV_LIST", "")
	if got := envList("TEST_ENV_LIST", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("envList() default = %v", got)
	}
}
