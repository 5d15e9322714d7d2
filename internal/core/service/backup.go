package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/infra/simthread"
	"github.com/yndnr/gridbackup-go/internal/storage/layout"
)

// BackupService is what operator commands call.
type BackupService struct {
	resolver   *GridResolver
	queue      *BackupQueue
	scheduler  *BackupScheduler
	store      SnapshotStore
	serializer GridSerializer
	sim        *simthread.Dispatcher
	history    RunHistory
	logger     *slog.Logger

	includeConnections bool
}

// BackupServiceConfig wires a BackupService.
type BackupServiceConfig struct {
	Resolver   *GridResolver
	Queue      *BackupQueue
	Scheduler  *BackupScheduler
	Store      SnapshotStore
	Serializer GridSerializer
	Sim        *simthread.Dispatcher
	History    RunHistory
	Logger     *slog.Logger

	IncludeConnections bool
}

// NewBackupService creates a BackupService.
func NewBackupService(cfg BackupServiceConfig) *BackupService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupService{
		resolver:           cfg.Resolver,
		queue:              cfg.Queue,
		scheduler:          cfg.Scheduler,
		store:              cfg.Store,
		serializer:         cfg.Serializer,
		sim:                cfg.Sim,
		history:            cfg.History,
		logger:             logger,
		includeConnections: cfg.IncludeConnections,
	}
}

// ============================================================================
// List
// ============================================================================

// Listing is the result of ListBackups. Folders is set when no grid token
// was given; otherwise Folder and its Files are set.
type Listing struct {
	Identity domain.Identity         `json:"identity"`
	Folders  []domain.SnapshotFolder `json:"folders,omitempty"`
	Folder   *domain.SnapshotFolder  `json:"folder,omitempty"`
	Files    []domain.SnapshotFile   `json:"files,omitempty"`
}

// Text renders the listing the way the in-game console shows it.
func (l *Listing) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Backed up Grids for Player %s\n", l.Identity.Name)
	if l.Folder == nil {
		for _, f := range l.Folders {
			sb.WriteString(f.Name)
			sb.WriteByte('\n')
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "Grid %s\n", l.Folder.Name)
	for i, f := range l.Files {
		sb.WriteString(FormatSnapshotLine(i+1, f))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatSnapshotLine renders one listing line: "<n>      <file> <size> kb".
func FormatSnapshotLine(n int, f domain.SnapshotFile) string {
	return strconv.Itoa(n) + "      " + f.Name + " " + FormatKB(f.Size) + " kb"
}

// FormatKB renders a byte count as kilobytes with grouping and two decimals.
func FormatKB(size int64) string {
	return humanize.FormatFloat("#,###.##", float64(size)/1024.0)
}

// ListBackups lists the graph folders of an identity, or with a grid token
// the snapshots of the matching folder, newest first.
func (s *BackupService) ListBackups(ctx context.Context, identityToken, graphToken string) (*Listing, error) {
	identity, err := s.resolver.ResolveIdentity(ctx, identityToken)
	if err != nil {
		return nil, err
	}
	playerPath, err := layout.PlayerPath(s.store.Root(), identity.ID)
	if err != nil {
		return nil, err
	}
	folders, err := s.store.ListGraphFolders(playerPath)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Identity: identity}
	graphToken = strings.TrimSpace(graphToken)
	if graphToken == "" {
		listing.Folders = folders
		return listing, nil
	}

	folder, ok := s.store.FindFolder(folders, graphToken)
	if !ok {
		return nil, domain.ErrGridNotFound.WithDetailsf("no backups of %q for %s", graphToken, identity)
	}
	files, err := s.store.ListSnapshots(folder.Path)
	if err != nil {
		return nil, err
	}
	listing.Folder = &folder
	listing.Files = files
	return listing, nil
}

// ============================================================================
// Save
// ============================================================================

// SaveRequest asks for an immediate backup of one grid.
type SaveRequest struct {
	// GraphToken is a grid name or entity id. When empty, Viewpoint picks
	// the grid its identity is looking at.
	GraphToken string
	Viewpoint  *domain.Viewpoint
}

// SaveResult describes a committed manual backup.
type SaveResult struct {
	IdentityID int64               `json:"identity_id"`
	GraphName  string              `json:"graph_name"`
	EntityID   int64               `json:"entity_id"`
	File       domain.SnapshotFile `json:"file"`
}

// Save backs up a single grid now. A save for a grid that is already being
// exported is rejected with ErrAlreadyInProgress rather than queued.
func (s *BackupService) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	group, err := s.resolver.ResolveOne(ctx, req.GraphToken, req.Viewpoint, s.includeConnections)
	if err != nil {
		return nil, err
	}

	job := domain.NewBackupJob(group, s.store.Root())
	file, err := s.queue.Enqueue(ctx, job, PolicyReject)
	if err != nil {
		return nil, err
	}
	return &SaveResult{
		IdentityID: job.OwnerID,
		GraphName:  group.DisplayName(),
		EntityID:   group.EntityID(),
		File:       file,
	}, nil
}

// ============================================================================
// Run
// ============================================================================

// TriggerManualRun starts a sweep in the background. It returns false when
// one is already running.
func (s *BackupService) TriggerManualRun(ctx context.Context) bool {
	return s.scheduler.TriggerRunAsync(ctx, domain.TriggerManual)
}

// ============================================================================
// Restore
// ============================================================================

// RestoreRequest selects a snapshot and how to place it.
type RestoreRequest struct {
	IdentityToken string
	GraphToken    string
	// Version is the 1-based position in the newest-first listing.
	// Zero means the newest.
	Version              int
	KeepOriginalPosition bool
	// Viewpoint is required when KeepOriginalPosition is false; the grid
	// is placed near its identity.
	Viewpoint *domain.Viewpoint
}

// RestoreResult describes a restored grid.
type RestoreResult struct {
	Identity  domain.Identity       `json:"identity"`
	Folder    domain.SnapshotFolder `json:"folder"`
	File      domain.SnapshotFile   `json:"file"`
	Version   int                   `json:"version"`
	EntityID  int64                 `json:"entity_id"`
	GraphName string                `json:"graph_name"`
	Members   int                   `json:"members"`
}

// Restore imports a stored snapshot back into the world.
func (s *BackupService) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	version := req.Version
	if version == 0 {
		version = 1
	}
	if version < 1 {
		return nil, domain.ErrInvalidArgument.WithDetailsf("version must be >= 1, got %d", req.Version)
	}
	if strings.TrimSpace(req.GraphToken) == "" {
		return nil, domain.ErrMissingArgument.WithDetails("grid is required")
	}
	if !req.KeepOriginalPosition && req.Viewpoint == nil {
		return nil, domain.ErrNoViewpoint.WithDetails("restoring without the original position needs a viewer to place the grid near")
	}

	listing, err := s.ListBackups(ctx, req.IdentityToken, req.GraphToken)
	if err != nil {
		return nil, err
	}
	if version > len(listing.Files) {
		return nil, domain.ErrSnapshotNotFound.WithDetailsf("%s has %d backups, version %d requested",
			listing.Folder.Name, len(listing.Files), version)
	}
	file := listing.Files[version-1]

	snap, err := s.store.ReadSnapshot(file.Path)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, contextErr(err)
	}

	// Import spawns entities; once submitted it is not canceled.
	hint := domain.PlacementHint{KeepOriginalPosition: req.KeepOriginalPosition, Near: req.Viewpoint}
	group, err := simthread.Call(context.WithoutCancel(ctx), s.sim, func() (domain.GraphGroup, error) {
		return s.serializer.Import(snap.Data, hint)
	})
	if err != nil {
		if ctxErr := contextErr(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.AsDomainError(err, domain.ErrSerialization)
	}

	s.logger.Info("grid restored",
		"identity_id", listing.Identity.ID,
		"folder", listing.Folder.Name,
		"file", file.Name,
		"version", version,
		"keep_position", req.KeepOriginalPosition,
		"entity_id", group.EntityID())

	return &RestoreResult{
		Identity:  listing.Identity,
		Folder:    *listing.Folder,
		File:      file,
		Version:   version,
		EntityID:  group.EntityID(),
		GraphName: group.DisplayName(),
		Members:   len(group.Members),
	}, nil
}

// ============================================================================
// History and status
// ============================================================================

// RunHistory returns the most recent sweeps, newest first.
func (s *BackupService) RunHistory(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if s.history == nil {
		if last := s.scheduler.LastRun(); last != nil {
			return []*domain.RunSummary{last}, nil
		}
		return nil, nil
	}
	runs, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, domain.AsDomainError(err, domain.ErrIO)
	}
	return runs, nil
}

// RunDetail returns one sweep by run id.
func (s *BackupService) RunDetail(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, domain.ErrMissingArgument.WithDetails("run id is required")
	}
	if s.history == nil {
		if last := s.scheduler.LastRun(); last != nil && last.RunID == runID {
			return last, nil
		}
		return nil, domain.ErrRunNotFound.WithDetails(runID)
	}
	run, err := s.history.Get(ctx, runID)
	if err != nil {
		return nil, domain.AsDomainError(err, domain.ErrIO)
	}
	return run, nil
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running    bool   `json:"running"`
	InFlight   int    `json:"in_flight"`
	Root       string `json:"root"`
	Identities int    `json:"identities"`
	// BackedUpIdentities counts identity folders under Root.
	BackedUpIdentities int                `json:"backed_up_identities"`
	LastRun            *domain.RunSummary `json:"last_run,omitempty"`
}

// Status reports scheduler and queue state.
func (s *BackupService) Status(ctx context.Context) (*Status, error) {
	ids, err := s.resolver.Identities(ctx)
	if err != nil {
		return nil, err
	}
	backedUp, err := s.store.ListIdentities()
	if err != nil {
		return nil, err
	}
	return &Status{
		Running:            s.scheduler.Running(),
		InFlight:           s.queue.InFlight(),
		Root:               s.store.Root(),
		Identities:         len(ids),
		BackedUpIdentities: len(backedUp),
		LastRun:            s.scheduler.LastRun(),
	}, nil
}
