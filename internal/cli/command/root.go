package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridbackup-go/internal/cli/config"
	"github.com/yndnr/gridbackup-go/internal/cli/connection"
	"github.com/yndnr/gridbackup-go/internal/cli/output"
	"github.com/yndnr/gridbackup-go/internal/infra/buildinfo"
)

const (
	metaConfig  = "cliConfig"
	metaInShell = "inShell"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "gridbackup-cli",
		Usage:    "gridbackup command-line management tool",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: map[string]any{},
		Commands: []*cli.Command{
			BackupCommand(),
			SystemCommand(),
		},
		Before: loadConfig,
		Action: shellAction,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "gridbackup server address (e.g., 127.0.0.1:5080)",
			EnvVars: []string{"GRIDBACKUP_SERVER"},
			Value:   "127.0.0.1:5080",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			EnvVars: []string{"GRIDBACKUP_OUTPUT"},
			Value:   "table",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: connection.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file",
			EnvVars: []string{"GRIDBACKUP_CLI_CONFIG"},
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server  string
	Output  string // table, json, yaml
	Timeout time.Duration
	Wide    bool
	Verbose bool
}

// loadConfig reads the CLI config file into app metadata.
func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaConfig] = cfg
	return nil
}

// ParseGlobalFlags extracts global flags from context. Values from the CLI
// config file replace flag defaults but never an explicit flag or env var.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	flags := &GlobalFlags{
		Server:  c.String("server"),
		Output:  c.String("output"),
		Timeout: c.Duration("timeout"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}

	cfg, _ := c.App.Metadata[metaConfig].(*config.CLIConfig)
	if cfg == nil {
		return flags
	}
	if !c.IsSet("server") && cfg.Server != "" {
		flags.Server = cfg.Server
	}
	if !c.IsSet("output") && cfg.Output != "" {
		flags.Output = cfg.Output
	}
	if !c.IsSet("timeout") && cfg.Timeout > 0 {
		flags.Timeout = cfg.Timeout
	}
	return flags
}

// Client returns an HTTP client for the configured server.
func Client(c *cli.Context) *connection.HTTPClient {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server, flags.Timeout)
}

// requestContext bounds a command by the request timeout.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, ParseGlobalFlags(c).Timeout)
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(stdout(c), data)
}

// isTable reports whether the selected format is the human one.
func isTable(c *cli.Context) bool {
	format, err := output.ParseFormat(ParseGlobalFlags(c).Output)
	return err == nil && format == output.FormatTable
}

func stdout(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App != nil && c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(c *cli.Context, format string, args ...any) {
	fmt.Fprintf(stderr(c), "error: "+format+"\n", args...)
}
