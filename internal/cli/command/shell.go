package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridbackup-go/internal/cli/config"
	"github.com/yndnr/gridbackup-go/internal/cli/repl"
)

// shellAction starts the interactive console when no command is given.
func shellAction(c *cli.Context) error {
	if c.NArg() > 0 {
		return fmt.Errorf("unknown command %q", c.Args().First())
	}
	if in, _ := c.App.Metadata[metaInShell].(bool); in {
		return cli.ShowAppHelp(c)
	}

	historyFile := ""
	if cfg, _ := c.App.Metadata[metaConfig].(*config.CLIConfig); cfg != nil {
		historyFile = cfg.HistoryFile
	}

	flags := ParseGlobalFlags(c)
	fmt.Fprintf(stdout(c), "Connected to %s. Type a command, '?' to list commands, 'exit' to leave.\n", flags.Server)

	app := c.App
	app.Metadata[metaInShell] = true
	defer delete(app.Metadata, metaInShell)

	prefix := shellPrefix(c, flags)
	input := app.Reader
	if input == nil {
		input = os.Stdin
	}

	r := repl.New(repl.Config{
		Input:    input,
		Output:   stdout(c),
		Commands: commandPaths(app.Commands, ""),
		History:  repl.NewHistory(historyFile),
		Exec: func(args []string) error {
			return app.RunContext(c.Context, append(append([]string(nil), prefix...), args...))
		},
	})
	return r.Run()
}

// shellPrefix rebuilds the global flags so every console line runs against
// the same server and format as the shell itself.
func shellPrefix(c *cli.Context, flags *GlobalFlags) []string {
	prefix := []string{c.App.Name,
		"--server", flags.Server,
		"--output", flags.Output,
		"--timeout", flags.Timeout.String(),
	}
	if cfgPath := c.String("config"); cfgPath != "" {
		prefix = append(prefix, "--config", cfgPath)
	}
	if flags.Wide {
		prefix = append(prefix, "--wide")
	}
	if flags.Verbose {
		prefix = append(prefix, "--verbose")
	}
	return prefix
}

// commandPaths lists "group sub" paths for completion.
func commandPaths(cmds []*cli.Command, parent string) []string {
	var paths []string
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		path := cmd.Name
		if parent != "" {
			path = parent + " " + cmd.Name
		}
		paths = append(paths, path)
		paths = append(paths, commandPaths(cmd.Subcommands, path)...)
	}
	return paths
}
