package command

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridbackup-go/internal/cli/connection"
	"github.com/yndnr/gridbackup-go/internal/cli/output"
	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Aliases: []string{"bk"},
		Usage:   "List, create and restore grid backups",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List an identity's backed up grids, or the versions of one grid",
				ArgsUsage: "IDENTITY [GRID]",
				Action:    backupList,
			},
			{
				Name:      "save",
				Usage:     "Back up one grid now",
				ArgsUsage: "[GRID]",
				Flags: []cli.Flag{
					viewerFlag(),
				},
				Action: backupSave,
			},
			{
				Name:  "run",
				Usage: "Start a backup sweep over every identity",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait for the sweep to finish and print its summary",
					},
					&cli.DurationFlag{
						Name:  "poll",
						Usage: "Status polling interval with --wait",
						Value: time.Second,
					},
				},
				Action: backupRun,
			},
			{
				Name:      "restore",
				Usage:     "Restore a backed up grid",
				ArgsUsage: "IDENTITY GRID",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "version",
						Aliases: []string{"n"},
						Usage:   "1-based version, newest first",
						Value:   1,
					},
					&cli.BoolFlag{
						Name:    "keep-position",
						Aliases: []string{"k"},
						Usage:   "Restore at the original position instead of near the viewer",
					},
					viewerFlag(),
				},
				Action: backupRestore,
			},
			{
				Name:      "history",
				Usage:     "Show recent backup sweeps, or one sweep in detail",
				ArgsUsage: "[RUN_ID]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
				},
				Action: backupHistory,
			},
		},
	}
}

func viewerFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:  "viewer",
		Usage: "Identity id whose position and target stand in for the grid argument",
	}
}

func viewerFrom(c *cli.Context) *int64 {
	if !c.IsSet("viewer") {
		return nil
	}
	v := c.Int64("viewer")
	return &v
}

// listingView mirrors the listing the server returns.
type listingView struct {
	Identity domain.Identity         `json:"identity"`
	Folders  []domain.SnapshotFolder `json:"folders,omitempty"`
	Folder   *domain.SnapshotFolder  `json:"folder,omitempty"`
	Files    []domain.SnapshotFile   `json:"files,omitempty"`
	Rendered string                  `json:"text"`
}

func (l *listingView) Text() string { return l.Rendered }

func backupList(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return fmt.Errorf("usage: %s %s", c.Command.HelpName, c.Command.ArgsUsage)
	}

	path := "/admin/v1/backups/identities/" + url.PathEscape(c.Args().Get(0))
	if grid := c.Args().Get(1); grid != "" {
		path += "/grids/" + url.PathEscape(grid)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := Client(c).Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var listing listingView
	if err := connection.ParseResponse(resp, &listing); err != nil {
		return err
	}
	return render(c, &listing)
}

type saveView struct {
	IdentityID int64               `json:"identity_id"`
	GraphName  string              `json:"graph_name"`
	EntityID   int64               `json:"entity_id"`
	File       domain.SnapshotFile `json:"file"`
}

func (s *saveView) Text() string {
	return fmt.Sprintf("Backed up grid %s (%d) for identity %d\n  %s (%s)\n",
		s.GraphName, s.EntityID, s.IdentityID, s.File.Path, humanize.IBytes(uint64(s.File.Size)))
}

func backupSave(c *cli.Context) error {
	if c.NArg() > 1 {
		return fmt.Errorf("usage: %s %s (quote grid names containing spaces)", c.Command.HelpName, c.Command.ArgsUsage)
	}

	body := map[string]any{}
	if grid := c.Args().First(); grid != "" {
		body["grid"] = grid
	}
	if viewer := viewerFrom(c); viewer != nil {
		body["viewer"] = *viewer
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := Client(c).Post(ctx, "/admin/v1/backups/save", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result saveView
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, &result)
}

func backupRun(c *cli.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	client := Client(c)
	resp, err := client.Post(ctx, "/admin/v1/backups/run", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var started struct {
		Started bool `json:"started"`
	}
	if err := connection.ParseResponse(resp, &started); err != nil {
		return err
	}

	if !c.Bool("wait") {
		if isTable(c) {
			fmt.Fprintln(stdout(c), "Backup run started")
			return nil
		}
		return render(c, started)
	}

	last, err := waitForRun(c, client, c.Duration("poll"))
	if err != nil {
		return err
	}
	if last == nil {
		return fmt.Errorf("run finished without a summary")
	}
	return render(c, runRows([]*domain.RunSummary{last}))
}

// waitForRun polls the status endpoint until no sweep is running and returns
// the latest summary. The overall wait is not bounded by --timeout; each
// poll is.
func waitForRun(c *cli.Context, client *connection.HTTPClient, poll time.Duration) (*domain.RunSummary, error) {
	if poll <= 0 {
		poll = time.Second
	}
	spin := output.NewSpinner(stderr(c), "Backup run in progress")
	spin.Start()

	for {
		st, err := fetchStatus(c, client)
		if err != nil {
			spin.Fail("status check failed")
			return nil, err
		}
		if !st.Running {
			if st.LastRun != nil && st.LastRun.Failed > 0 {
				spin.Fail(fmt.Sprintf("Backup run finished with %d failures", st.LastRun.Failed))
			} else {
				spin.Success("Backup run finished")
			}
			return st.LastRun, nil
		}
		spin.SetMessage(fmt.Sprintf("Backup run in progress (%d jobs in flight)", st.InFlight))

		select {
		case <-c.Context.Done():
			spin.Stop()
			return nil, c.Context.Err()
		case <-time.After(poll):
		}
	}
}

type restoreView struct {
	Identity  domain.Identity       `json:"identity"`
	Folder    domain.SnapshotFolder `json:"folder"`
	File      domain.SnapshotFile   `json:"file"`
	Version   int                   `json:"version"`
	EntityID  int64                 `json:"entity_id"`
	GraphName string                `json:"graph_name"`
	Members   int                   `json:"members"`
}

func (r *restoreView) Text() string {
	return fmt.Sprintf("Restored %s version %d for %s as entity %d (%d grids)\n",
		r.Folder.Name, r.Version, r.Identity, r.EntityID, r.Members)
}

func backupRestore(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s %s (quote grid names containing spaces)", c.Command.HelpName, c.Command.ArgsUsage)
	}

	body := map[string]any{
		"identity":      c.Args().Get(0),
		"grid":          c.Args().Get(1),
		"version":       c.Int("version"),
		"keep_position": c.Bool("keep-position"),
	}
	if viewer := viewerFrom(c); viewer != nil {
		body["viewer"] = *viewer
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := Client(c).Post(ctx, "/admin/v1/backups/restore", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result restoreView
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, &result)
}

// runRow is one line of backup history.
type runRow struct {
	RunID      string         `json:"run_id" table:"wide"`
	Trigger    domain.Trigger `json:"trigger"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Identities int            `json:"identities"`
	Groups     int            `json:"groups"`
	Succeeded  int            `json:"succeeded"`
	Skipped    int            `json:"skipped" table:"wide"`
	Failed     int            `json:"failed"`
	Pruned     int            `json:"pruned" table:"wide"`
	Bytes      int64          `json:"bytes" table:"bytes"`
	Note       string         `json:"note,omitempty"`
}

func runRows(runs []*domain.RunSummary) []runRow {
	rows := make([]runRow, 0, len(runs))
	for _, r := range runs {
		if r == nil {
			continue
		}
		note := r.Aborted
		if note == "" && len(r.Failures) > 0 {
			f := r.Failures[0]
			note = failureSubject(f) + ": " + f.Code
			if len(r.Failures) > 1 {
				note += " +" + strconv.Itoa(len(r.Failures)-1) + " more"
			}
		}
		rows = append(rows, runRow{
			RunID:      r.RunID,
			Trigger:    r.Trigger,
			StartedAt:  r.StartedAt,
			Duration:   r.Duration(),
			Identities: r.Identities,
			Groups:     r.Groups,
			Succeeded:  r.Succeeded,
			Skipped:    r.Skipped,
			Failed:     r.Failed,
			Pruned:     r.Pruned,
			Bytes:      r.Bytes,
			Note:       strings.TrimSpace(note),
		})
	}
	return rows
}

// failureSubject names what a failure is about: the grid for backup
// failures, the identity when its grids could not be listed.
func failureSubject(f domain.JobFailure) string {
	if f.Stage == domain.FailureStageResolve || f.EntityID == 0 {
		name := f.IdentityName
		if name == "" {
			name = "identity"
		}
		return fmt.Sprintf("%s (%d)", name, f.IdentityID)
	}
	return fmt.Sprintf("%s (%d)", f.GraphName, f.EntityID)
}

// runDetailView renders one run with all of its failures.
type runDetailView struct {
	*domain.RunSummary
}

func (v runDetailView) Text() string {
	r := v.RunSummary
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", r.RunID, r.Trigger)
	fmt.Fprintf(&b, "  Started:    %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Duration:   %s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  Identities: %d, groups: %d\n", r.Identities, r.Groups)
	fmt.Fprintf(&b, "  Result:     %d ok, %d skipped, %d failed, %d pruned, %s written\n",
		r.Succeeded, r.Skipped, r.Failed, r.Pruned, humanize.IBytes(uint64(max(r.Bytes, 0))))
	if r.Aborted != "" {
		fmt.Fprintf(&b, "  Aborted:    %s\n", r.Aborted)
	}
	if len(r.Failures) > 0 {
		b.WriteString("  Failures:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "    [%s] %s: %s %s\n", f.Stage, failureSubject(f), f.Code, f.Message)
		}
	}
	return b.String()
}

func backupRunDetail(c *cli.Context, runID string) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := Client(c).Get(ctx, "/admin/v1/backups/runs/"+url.PathEscape(runID))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var run domain.RunSummary
	if err := connection.ParseResponse(resp, &run); err != nil {
		return err
	}
	if !isTable(c) {
		return render(c, &run)
	}
	return render(c, runDetailView{&run})
}

func backupHistory(c *cli.Context) error {
	if c.NArg() > 1 {
		return fmt.Errorf("usage: %s %s", c.Command.HelpName, c.Command.ArgsUsage)
	}
	if runID := c.Args().First(); runID != "" {
		return backupRunDetail(c, runID)
	}

	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := Client(c).Get(ctx, "/admin/v1/backups/runs?limit="+strconv.Itoa(limit))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var result struct {
		Runs []*domain.RunSummary `json:"runs"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if !isTable(c) {
		return render(c, result.Runs)
	}
	if len(result.Runs) == 0 {
		fmt.Fprintln(stdout(c), "No backup runs recorded")
		return nil
	}
	return render(c, runRows(result.Runs))
}
