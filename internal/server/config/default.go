// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr  = "127.0.0.1:5080"
	DefaultRateLimit = 20
	DefaultRateBurst = 40

	DefaultBackupDir   = "/var/lib/gridbackup-server/Backup"
	DefaultInterval    = 30 * time.Minute
	DefaultWorkers     = 4
	DefaultJobTimeout  = 2 * time.Minute
	DefaultKeepPerGrid = 0

	DefaultHistoryDir  = "/var/lib/gridbackup-server/history"
	DefaultHistoryKeep = 500

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:      DefaultHTTPAddr,
				RateLimit: DefaultRateLimit,
				RateBurst: DefaultRateBurst,
				Audit:     true,
			},
		},
		Backup: BackupSection{
			Dir:         DefaultBackupDir,
			Interval:    DefaultInterval,
			Workers:     DefaultWorkers,
			JobTimeout:  DefaultJobTimeout,
			KeepPerGrid: DefaultKeepPerGrid,
		},
		History: HistorySection{
			Dir:  DefaultHistoryDir,
			Keep: DefaultHistoryKeep,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
