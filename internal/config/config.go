package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the orchestrator.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StorageDir string `toml:"storage_dir"`
}

// Server contains HTTP API configuration.
type Server struct {
	Bind         string `toml:"bind"`
	DaemonAPIKey string `toml:"daemon_api_key"`
}

// Sites contains site liveness configuration.
type Sites struct {
	// OnlineWindowSeconds is how recently a site must have heartbeated to be
	// reported online.
	OnlineWindowSeconds int `toml:"online_window_seconds"`
}

// Tasks contains deferred-task monitor configuration.
type Tasks struct {
	// StuckThresholdSeconds is how long a task may stay pending before the
	// monitor surfaces it as stuck.
	StuckThresholdSeconds int `toml:"stuck_threshold_seconds"`
	// MonitorIntervalSeconds is how often the monitor scans for stuck tasks.
	MonitorIntervalSeconds int `toml:"monitor_interval_seconds"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	StuckTasks     bool   `toml:"stuck_tasks"`
	Rejections     bool   `toml:"rejections"`
}

// Agent contains site daemon configuration.
type Agent struct {
	Site                     string   `toml:"site"`
	WatchDir                 string   `toml:"watch_dir"`
	OrchestratorURL          string   `toml:"orchestrator_url"`
	APIKey                   string   `toml:"api_key"`
	HeartbeatIntervalSeconds int      `toml:"heartbeat_interval_seconds"`
	ScanIntervalSeconds      int      `toml:"scan_interval_seconds"`
	StabilityChecks          int      `toml:"stability_checks"`
	StabilityIntervalSeconds int      `toml:"stability_interval_seconds"`
	Extensions               []string `toml:"extensions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the orchestrator and agent.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and staging storage directories
//   - Server: API bind address and daemon API key
//   - Sites: derived online/offline liveness window
//   - Tasks: stuck-task monitor cadence and threshold
//   - Notifications: ntfy push notification settings
//   - Agent: site daemon watch/heartbeat settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Sites         Sites         `toml:"sites"`
	Tasks         Tasks         `toml:"tasks"`
	Notifications Notifications `toml:"notifications"`
	Agent         Agent         `toml:"agent"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/colorflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the orchestrator needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StorageDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
