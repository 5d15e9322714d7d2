package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Addr      string  `koanf:"addr"`
			RateLimit float64 `koanf:"rate_limit"`
		} `koanf:"http"`
	} `koanf:"server"`
	Backup struct {
		Dir         string        `koanf:"dir"`
		Interval    time.Duration `koanf:"interval"`
		KeepPerGrid int           `koanf:"keep_per_grid"`
		Connections bool          `koanf:"connections"`
	} `koanf:"backup"`
	Ignored string `koanf:"-"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader_WithOptions(t *testing.T) {
	if l := NewLoader(); l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}

	l := NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/path/to/config.yaml"))
	if l.envPrefix != "TEST_" || l.filePath != "/path/to/config.yaml" {
		t.Errorf("options not applied: %+v", l)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: "0.0.0.0:5080"
backup:
  keep_per_grid: 5
  connections: true
`)
	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := l.GetString("server.http.addr"); got != "0.0.0.0:5080" {
		t.Errorf("server.http.addr = %q", got)
	}
	if l.GetInt("backup.keep_per_grid") != 5 || !l.GetBool("backup.connections") {
		t.Errorf("backup keys = %v", l.All())
	}

	if err := NewLoader().LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
	if err := NewLoader().LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v", err)
	}
}

func TestKnownKeys(t *testing.T) {
	keys := KnownKeys(&testConfig{})

	want := map[string]string{
		"server_http_addr":       "server.http.addr",
		"server_http_rate_limit": "server.http.rate_limit",
		"backup_dir":             "backup.dir",
		"backup_interval":        "backup.interval",
		"backup_keep_per_grid":   "backup.keep_per_grid",
		"backup_connections":     "backup.connections",
	}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for env, key := range want {
		if keys[env] != key {
			t.Errorf("keys[%q] = %q, want %q", env, keys[env], key)
		}
	}
	if len(KnownKeys(nil)) != 0 {
		t.Error("KnownKeys(nil) should be empty")
	}
}

func TestLoader_Load_EnvUnderscoreKeys(t *testing.T) {
	t.Setenv("GRIDBACKUP_BACKUP_KEEP_PER_GRID", "7")
	t.Setenv("GRIDBACKUP_SERVER_HTTP_RATE_LIMIT", "2.5")
	t.Setenv("GRIDBACKUP_BACKUP_INTERVAL", "45m")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backup.KeepPerGrid != 7 {
		t.Errorf("KeepPerGrid = %d, want 7", cfg.Backup.KeepPerGrid)
	}
	if cfg.Server.HTTP.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v, want 2.5", cfg.Server.HTTP.RateLimit)
	}
	if cfg.Backup.Interval != 45*time.Minute {
		t.Errorf("Interval = %v, want 45m", cfg.Backup.Interval)
	}
}

func TestLoader_LoadEnv_Plain(t *testing.T) {
	t.Setenv("TEST_SERVER_HTTP_ADDR", "127.0.0.1:1")

	l := NewLoader(WithEnvPrefix("TEST_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := l.GetString("server.http.addr"); got != "127.0.0.1:1" {
		t.Errorf("server.http.addr = %q", got)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    addr: "file:1"
backup:
  dir: /from/file
  keep_per_grid: 3
`)
	t.Setenv("GRIDBACKUP_SERVER_HTTP_ADDR", "env:2")
	t.Setenv("GRIDBACKUP_BACKUP_DIR", "/from/env")

	var cfg testConfig
	cfg.Backup.Interval = 30 * time.Minute // default

	l := NewLoader(
		WithConfigFile(path),
		WithFlags(map[string]any{"backup.dir": "/from/flag"}),
	)
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Addr != "env:2" {
		t.Errorf("Addr = %q, env should beat file", cfg.Server.HTTP.Addr)
	}
	if cfg.Backup.Dir != "/from/flag" {
		t.Errorf("Dir = %q, flag should beat env", cfg.Backup.Dir)
	}
	if cfg.Backup.KeepPerGrid != 3 {
		t.Errorf("KeepPerGrid = %d, file value lost", cfg.Backup.KeepPerGrid)
	}
	if cfg.Backup.Interval != 30*time.Minute {
		t.Errorf("Interval = %v, default lost", cfg.Backup.Interval)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() = false after Load")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"server.http.addr": ":9", "backup.connections": true}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if l.GetString("server.http.addr") != ":9" || !l.GetBool("backup.connections") {
		t.Errorf("All() = %v", l.All())
	}
	if len(l.Keys()) != 2 || l.Get("server.http.addr") != ":9" {
		t.Errorf("Keys() = %v", l.Keys())
	}
}

func TestLoader_LoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}
