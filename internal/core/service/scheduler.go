package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	tlog "github.com/yndnr/gridbackup-go/internal/telemetry/logger"
)

// Run states.
const (
	stateIdle int32 = iota
	stateRunning
)

// SchedulerConfig configures a BackupScheduler.
type SchedulerConfig struct {
	// IncludeConnections folds connector-linked grids into one group.
	IncludeConnections bool
	// Interval between scheduled sweeps. Zero disables the Run loop.
	Interval time.Duration
	// Concurrency bounds how many jobs a sweep submits at once.
	Concurrency int
	// KeepPerGrid prunes each written folder to this many snapshots
	// after a sweep. Zero keeps everything.
	KeepPerGrid int
}

// BackupScheduler owns the Idle -> Running -> Idle sweep state machine.
// Only one sweep runs at a time; triggers that find one running return
// false without side effects.
type BackupScheduler struct {
	resolver *GridResolver
	queue    *BackupQueue
	store    SnapshotStore
	history  RunHistory
	cfg      SchedulerConfig
	logger   *slog.Logger
	metrics  Metrics

	state   atomic.Int32
	lastRun atomic.Pointer[domain.RunSummary]
	wg      sync.WaitGroup
}

// NewBackupScheduler creates a scheduler. history, logger and metrics may be nil.
func NewBackupScheduler(resolver *GridResolver, queue *BackupQueue, store SnapshotStore, history RunHistory, cfg SchedulerConfig, logger *slog.Logger, metrics Metrics) *BackupScheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = queue.cfg.Workers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BackupScheduler{
		resolver: resolver,
		queue:    queue,
		store:    store,
		history:  history,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Running reports whether a sweep is active.
func (s *BackupScheduler) Running() bool {
	return s.state.Load() == stateRunning
}

// InFlight reports the queue's active jobs.
func (s *BackupScheduler) InFlight() int {
	return s.queue.InFlight()
}

// LastRun returns the most recent finished sweep, or nil.
func (s *BackupScheduler) LastRun() *domain.RunSummary {
	return s.lastRun.Load()
}

// TriggerRun runs a sweep and waits for it. It returns false, and a nil
// summary, when a sweep is already running.
func (s *BackupScheduler) TriggerRun(ctx context.Context, trigger domain.Trigger) (*domain.RunSummary, bool) {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		s.metrics.RunRejected()
		return nil, false
	}
	return s.sweep(ctx, trigger), true
}

// TriggerRunAsync starts a sweep in the background and returns whether it
// started. The state transition happens before it returns, so a second
// call made right after a successful one reports false. ctx bounds the
// sweep: once it is done, pending jobs fail with GB-SYS-5030.
func (s *BackupScheduler) TriggerRunAsync(ctx context.Context, trigger domain.Trigger) bool {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		s.metrics.RunRejected()
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweep(ctx, trigger)
	}()
	return true
}

// Wait blocks until background sweeps have finished.
func (s *BackupScheduler) Wait() {
	s.wg.Wait()
}

// Run triggers a sweep every Interval until ctx is done.
func (s *BackupScheduler) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info("backup scheduler disabled", "interval", s.cfg.Interval)
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("backup scheduler started", "interval", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, started := s.TriggerRun(ctx, domain.TriggerScheduled); !started {
				s.logger.Info("scheduled backup skipped, previous run still active")
			}
		}
	}
}

// sweep runs with the state already set to Running and always resets it.
func (s *BackupScheduler) sweep(ctx context.Context, trigger domain.Trigger) (summary *domain.RunSummary) {
	summary = &domain.RunSummary{
		RunID:     ulid.Make().String(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	ctx = tlog.WithRunID(ctx, summary.RunID)
	log := s.logger.With("run_id", summary.RunID, "trigger", string(trigger))

	var (
		mu      sync.Mutex
		folders = map[string]struct{}{}
		g       errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	defer func() {
		if p := recover(); p != nil {
			_ = g.Wait()
			summary.Aborted = fmt.Sprintf("panic: %v", p)
			log.Error("backup run panicked", "panic", p)
		}
		summary.FinishedAt = time.Now()
		s.finish(ctx, log, summary)
		s.state.Store(stateIdle)
	}()

	log.Info("backup run started")

	identities, err := s.resolver.Identities(ctx)
	if err != nil {
		summary.Aborted = err.Error()
		log.Error("backup run aborted, cannot enumerate identities", "error", err)
		return summary
	}
	summary.Identities = len(identities)

	for _, identity := range identities {
		groups, err := s.resolver.ResolveOwned(ctx, identity.ID, s.cfg.IncludeConnections)
		if err != nil {
			mu.Lock()
			summary.Failed++
			summary.Failures = append(summary.Failures, failure(domain.FailureStageResolve, identity, domain.GraphGroup{}, err))
			mu.Unlock()
			log.Warn("cannot list grids for identity", "identity_id", identity.ID, "identity_name", identity.Name, "error", err)
			continue
		}

		for _, group := range groups {
			job := domain.NewBackupJob(group, s.store.Root())
			mu.Lock()
			summary.Groups++
			mu.Unlock()

			g.Go(func() error {
				file, err := s.enqueue(ctx, job)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					summary.Succeeded++
					summary.Bytes += file.Size
					folders[filepath.Dir(file.Path)] = struct{}{}
				case errors.Is(err, domain.ErrNoOwner) || errors.Is(err, domain.ErrInvalidGroup):
					summary.Skipped++
				default:
					summary.Failed++
					summary.Failures = append(summary.Failures, failure(domain.FailureStageBackup, identity, group, err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if s.cfg.KeepPerGrid > 0 {
		for folder := range folders {
			n, err := s.store.Prune(folder, s.cfg.KeepPerGrid)
			summary.Pruned += n
			if err != nil {
				log.Warn("prune failed", "folder", folder, "error", err)
			}
		}
	}
	return summary
}

// enqueue submits one sweep job, turning a panic into a failed result so
// sibling jobs keep running.
func (s *BackupScheduler) enqueue(ctx context.Context, job domain.BackupJob) (file domain.SnapshotFile, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.ErrInternalServer.WithDetailsf("panic: %v", p)
		}
	}()
	return s.queue.Enqueue(ctx, job, PolicyBlock)
}

func (s *BackupScheduler) finish(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary) {
	s.lastRun.Store(summary)
	s.metrics.ObserveRun(string(summary.Trigger), summary.Duration())

	logger.Info("backup run finished",
		"identities", summary.Identities,
		"groups", summary.Groups,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"pruned", summary.Pruned,
		"duration", summary.Duration())

	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), summary); err != nil {
		logger.Warn("cannot record run history", "error", err)
	}
}

func failure(stage string, identity domain.Identity, group domain.GraphGroup, err error) domain.JobFailure {
	return domain.JobFailure{
		Stage:        stage,
		IdentityID:   identity.ID,
		IdentityName: identity.Name,
		GraphName:    group.DisplayName(),
		EntityID:     group.EntityID(),
		Code:         domain.GetErrorCode(err),
		Message:      err.Error(),
	}
}
