package testsupport

import (
	"path/filepath"
	"testing"

	"colorflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Server.Bind = "127.0.0.1:0"
	cfg.Server.DaemonAPIKey = "test-key"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithDaemonAPIKey overrides the daemon API key on the test config.
func WithDaemonAPIKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.DaemonAPIKey = key
	}
}

// WithOnlineWindow overrides the site online window, in seconds.
func WithOnlineWindow(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sites.OnlineWindowSeconds = seconds
	}
}

// WithStuckThresholds overrides the stuck-task threshold and monitor interval.
func WithStuckThresholds(thresholdSeconds, intervalSeconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Tasks.StuckThresholdSeconds = thresholdSeconds
		cfg.Tasks.MonitorIntervalSeconds = intervalSeconds
	}
}
