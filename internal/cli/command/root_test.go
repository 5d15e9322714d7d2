package command

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "gridbackup-cli" || app.Usage == "" || app.Version == "" {
		t.Fatalf("app = %q %q %q", app.Name, app.Usage, app.Version)
	}

	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	if !slices.Equal(names, []string{"backup", "system"}) {
		t.Errorf("commands = %v", names)
	}

	var flags []string
	for _, f := range app.Flags {
		flags = append(flags, f.Names()[0])
	}
	for _, want := range []string{"server", "output", "timeout", "config", "wide", "verbose"} {
		if !slices.Contains(flags, want) {
			t.Errorf("missing global flag %s", want)
		}
	}
}

func TestGlobalFlags_EnvVars(t *testing.T) {
	env := map[string][]string{}
	for _, f := range globalFlags() {
		if sf, ok := f.(*cli.StringFlag); ok {
			env[sf.Name] = sf.EnvVars
		}
	}
	for flag, want := range map[string]string{
		"server": "GRIDBACKUP_SERVER",
		"output": "GRIDBACKUP_OUTPUT",
		"config": "GRIDBACKUP_CLI_CONFIG",
	} {
		if !slices.Contains(env[flag], want) {
			t.Errorf("--%s env vars = %v, want %s", flag, env[flag], want)
		}
	}
}

func parseWith(t *testing.T, cfgBody string, args ...string) *GlobalFlags {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "cli.yaml")
	if cfgBody != "" {
		if err := os.WriteFile(cfgPath, []byte(cfgBody), 0600); err != nil {
			t.Fatal(err)
		}
	}

	var got *GlobalFlags
	app := App()
	app.Commands = nil
	app.Action = func(c *cli.Context) error {
		got = ParseGlobalFlags(c)
		return nil
	}
	if err := app.Run(append([]string{"test", "--config", cfgPath}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
	return got
}

func TestParseGlobalFlags_Defaults(t *testing.T) {
	for _, key := range []string{"GRIDBACKUP_SERVER", "GRIDBACKUP_OUTPUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	flags := parseWith(t, "")
	if flags.Server != "http://127.0.0.1:5080" {
		t.Errorf("Server = %q", flags.Server)
	}
	if flags.Output != "table" || flags.Timeout != 30*time.Second || flags.Wide || flags.Verbose {
		t.Errorf("flags = %+v", flags)
	}
}

func TestParseGlobalFlags_Precedence(t *testing.T) {
	cfg := "server: cfg-host:5080\noutput: yaml\ntimeout: 5s\n"

	flags := parseWith(t, cfg)
	if flags.Server != "cfg-host:5080" || flags.Output != "yaml" || flags.Timeout != 5*time.Second {
		t.Errorf("config values not applied: %+v", flags)
	}

	flags = parseWith(t, cfg, "--server", "flag-host:1", "-o", "json", "--timeout", "1s", "-w", "-V")
	if flags.Server != "flag-host:1" || flags.Output != "json" || flags.Timeout != time.Second {
		t.Errorf("flags did not override config: %+v", flags)
	}
	if !flags.Wide || !flags.Verbose {
		t.Errorf("bool flags = %+v", flags)
	}

	t.Setenv("GRIDBACKUP_SERVER", "env-host:2")
	if flags := parseWith(t, cfg); flags.Server != "env-host:2" {
		t.Errorf("env did not override config: %q", flags.Server)
	}
}

func TestApp_InvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	os.WriteFile(path, []byte("server: [oops"), 0600)

	app := App()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"test", "--config", path, "system", "health"}); err == nil {
		t.Fatal("expected config parse error")
	}
}

func TestApp_UnknownOutputFormat(t *testing.T) {
	server := newMockServer(t)
	server.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	res := runApp(t, server, "", "--output", "xml", "system", "health")
	if res.err == nil || !strings.Contains(res.err.Error(), "unknown output format") {
		t.Fatalf("err = %v", res.err)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	app := &cli.App{ErrWriter: &buf}
	PrintError(cli.NewContext(app, nil, nil), "test error: %s", "details")

	if buf.String() != "error: test error: details\n" {
		t.Errorf("PrintError output = %q", buf.String())
	}
}
