package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeSites()
	c.normalizeTasks()
	c.normalizeNotifications()
	if err := c.normalizeAgent(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.DaemonAPIKey == "" {
		if value, ok := os.LookupEnv("DAEMON_API_KEY"); ok {
			c.Server.DaemonAPIKey = value
		}
	}
}

func (c *Config) normalizeSites() {
	if c.Sites.OnlineWindowSeconds <= 0 {
		c.Sites.OnlineWindowSeconds = defaultOnlineWindowSeconds
	}
}

func (c *Config) normalizeTasks() {
	if c.Tasks.StuckThresholdSeconds <= 0 {
		c.Tasks.StuckThresholdSeconds = defaultStuckThresholdSeconds
	}
	if c.Tasks.MonitorIntervalSeconds <= 0 {
		c.Tasks.MonitorIntervalSeconds = defaultMonitorIntervalSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeAgent() error {
	var err error
	c.Agent.Site = strings.ToLower(strings.TrimSpace(c.Agent.Site))
	if c.Agent.WatchDir, err = expandPath(c.Agent.WatchDir); err != nil {
		return fmt.Errorf("agent.watch_dir: %w", err)
	}
	c.Agent.OrchestratorURL = strings.TrimRight(strings.TrimSpace(c.Agent.OrchestratorURL), "/")
	if c.Agent.APIKey == "" {
		if value, ok := os.LookupEnv("DAEMON_API_KEY"); ok {
			c.Agent.APIKey = value
		}
	}
	if c.Agent.HeartbeatIntervalSeconds <= 0 {
		c.Agent.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Agent.ScanIntervalSeconds <= 0 {
		c.Agent.ScanIntervalSeconds = defaultScanInterval
	}
	if c.Agent.StabilityChecks <= 0 {
		c.Agent.StabilityChecks = defaultStabilityChecks
	}
	if c.Agent.StabilityIntervalSeconds <= 0 {
		c.Agent.StabilityIntervalSeconds = defaultStabilityInterval
	}
	if len(c.Agent.Extensions) == 0 {
		c.Agent.Extensions = append([]string(nil), defaultExtensions...)
	}
	for i, ext := range c.Agent.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Agent.Extensions[i] = ext
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
