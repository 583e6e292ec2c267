package config

const (
	defaultDataDir                = "~/.local/share/colorflow"
	defaultLogDir                 = "~/.local/share/colorflow/logs"
	defaultStorageDir             = "~/.local/share/colorflow/incoming"
	defaultBind                   = "127.0.0.1:5858"
	defaultOnlineWindowSeconds    = 300
	defaultStuckThresholdSeconds  = 3600
	defaultMonitorIntervalSeconds = 300
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultHeartbeatInterval      = 30
	defaultScanInterval           = 10
	defaultStabilityChecks        = 3
	defaultStabilityInterval      = 2
)

var defaultExtensions = []string{".mxf", ".mov", ".mp4", ".ari", ".r3d", ".braw", ".dpx", ".exr"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StorageDir: defaultStorageDir,
		},
		Server: Server{
			Bind: defaultBind,
		},
		Sites: Sites{
			OnlineWindowSeconds: defaultOnlineWindowSeconds,
		},
		Tasks: Tasks{
			StuckThresholdSeconds:  defaultStuckThresholdSeconds,
			MonitorIntervalSeconds: defaultMonitorIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			StuckTasks:     true,
			Rejections:     false,
		},
		Agent: Agent{
			OrchestratorURL:          "http://localhost:5858",
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			ScanIntervalSeconds:      defaultScanInterval,
			StabilityChecks:          defaultStabilityChecks,
			StabilityIntervalSeconds: defaultStabilityInterval,
			Extensions:               append([]string(nil), defaultExtensions...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
