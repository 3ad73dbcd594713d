package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":5000" || cfg.DBDriver != "sqlite" || cfg.TokenTTL != time.Hour {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.AllowAdminRegistration {
		t.Fatalf("admin registration should default to off")
	}
}

func TestPortOverridesAddr(t *testing.T) {
	t.Setenv("RAINFALL_ADDR", ":9999")
	t.Setenv("PORT", "8081")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" {
		t.Fatalf("addr: got %s", cfg.Addr)
	}
}

func TestServerValidate(t *testing.T) {
	cfg := Server{DBDriver: "sqlite", DBPath: "x.db", TokenTTL: time.Hour, JWTSecret: "short"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "JWT") {
		t.Fatalf("expected secret error, got %v", err)
	}
	cfg.JWTSecret = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg.DBDriver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("postgres without url should fail")
	}
	cfg.DBDriver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestLoadDashboard(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAINFALL_SESSION_FILE", filepath.Join(dir, "s.yaml"))
	t.Setenv("RAINFALL_POLL_INTERVAL", "250ms")
	cfg, err := LoadDashboard()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("interval: got %s", cfg.PollInterval)
	}
	if cfg.ServerURL != "http://localhost:5000" {
		t.Fatalf("server url: got %s", cfg.ServerURL)
	}
}

func TestLoadDashboardRejectsZeroInterval(t *testing.T) {
	t.Setenv("RAINFALL_SESSION_FILE", filepath.Join(t.TempDir(), "s.yaml"))
	t.Setenv("RAINFALL_POLL_INTERVAL", "0s")
	if _, err := LoadDashboard(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("nope") != slog.LevelInfo {
		t.Fatalf("level parsing")
	}
}
