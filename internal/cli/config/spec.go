package config

import (
	"path/filepath"
	"time"
)

// CLIConfig is the configuration for gridbackup-cli.
type CLIConfig struct {
	Server  string        `yaml:"server"`
	Output  string        `yaml:"output"` // table, json, yaml
	Timeout time.Duration `yaml:"timeout"`

	// HistoryFile is where the interactive shell keeps its history.
	HistoryFile string `yaml:"history_file"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:      "http://127.0.0.1:5080",
		Output:      "table",
		Timeout:     30 * time.Second,
		HistoryFile: filepath.Join(baseDir(), "history"),
	}
}
