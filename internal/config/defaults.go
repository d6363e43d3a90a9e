package config

const (
	defaultConfigPath   = "~/.config/daqbridge/config.toml"
	projectConfigName   = "daqbridge.toml"
	defaultStateDir     = "~/.local/share/daqbridge"
	defaultLogDir       = "~/.local/share/daqbridge/logs"
	defaultCaptureDir   = "~/data"
	defaultAPIBind      = "127.0.0.1:8642"
	defaultDeviceHost   = "localhost"
	defaultControlPort  = 8888
	defaultDataPort     = 8889
	defaultConnect      = 5
	defaultCommand      = 10
	defaultFlushPeriod  = 1.0
	defaultPrefix       = "DAQ"
	defaultHistoryDays  = 90
	defaultCatalogPath  = "~/.config/daqbridge/tables.yaml"
	defaultPollInterval = 1
	defaultNtfyTimeout  = 10
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultRetention    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			CaptureDir: defaultCaptureDir,
			APIBind:    defaultAPIBind,
		},
		Device: Device{
			Host:           defaultDeviceHost,
			ControlPort:    defaultControlPort,
			DataPort:       defaultDataPort,
			ConnectTimeout: defaultConnect,
			CommandTimeout: defaultCommand,
		},
		Capture: Capture{
			FlushPeriod: defaultFlushPeriod,
			Prefix:      defaultPrefix,
			HistoryDays: defaultHistoryDays,
		},
		Tables: Tables{
			CatalogPath:  defaultCatalogPath,
			PollInterval: defaultPollInterval,
		},
		Metrics:       Metrics{Enabled: true},
		Notifications: Notifications{RequestTimeout: defaultNtfyTimeout},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetention,
		},
	}
}
