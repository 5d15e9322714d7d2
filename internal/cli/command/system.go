package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridbackup-go/internal/cli/connection"
	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "System management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show scheduler, queue and last run summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness",
				Action: systemReady,
			},
		},
	}
}

// statusView mirrors /admin/v1/status/summary.
type statusView struct {
	Version    string             `json:"version"`
	Time       time.Time          `json:"time"`
	Running    bool               `json:"running"`
	InFlight   int                `json:"in_flight"`
	Root       string             `json:"root"`
	Identities int                `json:"identities"`
	BackedUp   int                `json:"backed_up_identities"`
	LastRun    *domain.RunSummary `json:"last_run,omitempty"`
}

func (s *statusView) Text() string {
	var b strings.Builder
	b.WriteString("System Status\n")
	b.WriteString("=============\n\n")
	fmt.Fprintf(&b, "Version:     %s\n", s.Version)
	fmt.Fprintf(&b, "Backup root: %s\n", s.Root)
	fmt.Fprintf(&b, "Identities:  %d (%d with backups)\n", s.Identities, s.BackedUp)
	state := "idle"
	if s.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "Scheduler:   %s\n", state)
	fmt.Fprintf(&b, "In flight:   %d\n", s.InFlight)
	if r := s.LastRun; r != nil {
		fmt.Fprintf(&b, "Last run:    %s (%s) at %s, %d ok, %d failed, took %s\n",
			r.RunID, r.Trigger, r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.Succeeded, r.Failed, r.Duration().Round(time.Millisecond))
	} else {
		b.WriteString("Last run:    none\n")
	}
	return b.String()
}

func fetchStatus(c *cli.Context, client *connection.HTTPClient) (*statusView, error) {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var st statusView
	if err := connection.ParseResponse(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func systemStatus(c *cli.Context) error {
	st, err := fetchStatus(c, Client(c))
	if err != nil {
		return err
	}
	return render(c, st)
}

type checkView struct {
	Status string `json:"status"`
	Time   string `json:"time,omitempty"`
	Target string `json:"target"`
}

func systemHealth(c *cli.Context) error {
	return checkEndpoint(c, "/health", "healthy")
}

func systemReady(c *cli.Context) error {
	return checkEndpoint(c, "/ready", "ready")
}

func checkEndpoint(c *cli.Context, path, want string) error {
	client := Client(c)
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := client.Get(ctx, path)
	if err != nil {
		PrintError(c, "%s check failed: %v", strings.TrimPrefix(path, "/"), err)
		return fmt.Errorf("server unreachable")
	}
	result := checkView{Target: client.BaseURL()}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result)
	}
	if result.Status == want {
		fmt.Fprintf(stdout(c), "✓ Server is %s\n", want)
		fmt.Fprintf(stdout(c), "  Target: %s\n", result.Target)
		return nil
	}
	fmt.Fprintf(stdout(c), "✗ Server is not %s: %s\n", want, result.Status)
	return fmt.Errorf("server not %s", want)
}
