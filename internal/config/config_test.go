package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"colorflow/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config")
	}
	if cfg.Server.Bind != "127.0.0.1:5858" {
		t.Fatalf("unexpected default bind: %s", cfg.Server.Bind)
	}
	if cfg.Sites.OnlineWindowSeconds != 300 {
		t.Fatalf("unexpected online window: %d", cfg.Sites.OnlineWindowSeconds)
	}
	if cfg.Agent.HeartbeatIntervalSeconds != 30 {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Agent.HeartbeatIntervalSeconds)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
bind = " 0.0.0.0:9000 "

[agent]
site = " Tustin "
extensions = ["MOV", ".mxf"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatal("expected config file to be found")
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Fatalf("bind not trimmed: %q", cfg.Server.Bind)
	}
	if cfg.Agent.Site != "tustin" {
		t.Fatalf("site not normalized: %q", cfg.Agent.Site)
	}
	if cfg.Agent.Extensions[0] != ".mov" || cfg.Agent.Extensions[1] != ".mxf" {
		t.Fatalf("extensions not normalized: %v", cfg.Agent.Extensions)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
}

func TestValidateRejectsBadLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestValidateRejectsStuckThresholdBelowInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[tasks]\nstuck_threshold_seconds = 10\nmonitor_interval_seconds = 60\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error when threshold is below monitor interval")
	}
}
