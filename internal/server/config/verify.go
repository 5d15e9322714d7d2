// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/gridbackup-go/internal/telemetry/logger"
)

// minPassphraseLen matches the snapshot cipher's minimum.
const minPassphraseLen = 8

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyBackup(&cfg.Backup); err != nil {
		return err
	}
	if err := verifyWorld(&cfg.World); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		return errors.New("server.http.rate_burst must be at least 1 when rate limiting")
	}
	for _, entry := range cfg.HTTP.AllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.http.allow_list: %w", err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.http.allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifyBackup(cfg *BackupSection) error {
	if cfg.Dir == "" {
		return errors.New("backup.dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return errors.New("cannot create backup directory: " + err.Error())
	}
	if cfg.Interval < 0 {
		return errors.New("backup.interval must not be negative")
	}
	if cfg.Workers < 1 {
		return errors.New("backup.workers must be at least 1")
	}
	if cfg.JobTimeout <= 0 {
		return errors.New("backup.job_timeout must be positive")
	}
	if cfg.KeepPerGrid < 0 {
		return errors.New("backup.keep_per_grid must not be negative")
	}
	return nil
}

func verifyWorld(cfg *WorldSection) error {
	if cfg.SeedFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.SeedFile); err != nil {
		return fmt.Errorf("world.seed_file: %w", err)
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if p := cfg.EncryptionPassphrase; p != "" && len(p) < minPassphraseLen {
		return fmt.Errorf("security.encryption_passphrase must be at least %d characters", minPassphraseLen)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q is not json or text", cfg.Format)
	}
	return nil
}
