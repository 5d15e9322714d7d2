// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for gridbackup-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Backup   BackupSection   `koanf:"backup"`
	World    WorldSection    `koanf:"world"`
	History  HistorySection  `koanf:"history"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the sustained request rate per client IP. Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	// RateBurst is the token bucket size per client IP.
	RateBurst int `koanf:"rate_burst"`

	// AllowList restricts /admin/v1 to these IPs or CIDRs. Empty allows all.
	AllowList []string `koanf:"allow_list"`

	// Audit logs every request.
	Audit bool `koanf:"audit"`
}

// BackupSection configures the backup engine.
type BackupSection struct {
	// Dir is the snapshot root. Snapshots land under <dir>/<identity>/<grid>_<id>/.
	Dir string `koanf:"dir"`

	// Connections folds connector-linked grids into one backup.
	Connections bool `koanf:"connections"`

	// Interval between scheduled sweeps. Zero disables scheduling.
	Interval time.Duration `koanf:"interval"`

	// Workers bounds concurrent exports.
	Workers int `koanf:"workers"`

	// JobTimeout bounds one export and write.
	JobTimeout time.Duration `koanf:"job_timeout"`

	// KeepPerGrid prunes each grid folder to this many snapshots after a
	// sweep. Zero keeps everything.
	KeepPerGrid int `koanf:"keep_per_grid"`
}

// WorldSection configures the in-memory world.
type WorldSection struct {
	// SeedFile is a YAML document describing identities and grids.
	SeedFile string `koanf:"seed_file"`
}

// HistorySection configures the run history database.
type HistorySection struct {
	Dir  string `koanf:"dir"`
	Keep int    `koanf:"keep"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionPassphrase enables snapshot encryption at rest when set.
	EncryptionPassphrase string `koanf:"encryption_passphrase"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
