package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/infra/simthread"
	"github.com/yndnr/gridbackup-go/internal/storage/layout"
	tlog "github.com/yndnr/gridbackup-go/internal/telemetry/logger"
	"github.com/yndnr/gridbackup-go/pkg/cmap"
)

// Policy decides what Enqueue does when the group is already being exported.
type Policy int

const (
	// PolicyBlock waits for the running export to finish, then runs.
	PolicyBlock Policy = iota
	// PolicyReject fails fast with ErrAlreadyInProgress.
	PolicyReject
)

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "block"
}

// Job result labels.
const (
	ResultOK       = "ok"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
	ResultTimeout  = "timeout"
)

const (
	DefaultWorkers    = 4
	DefaultJobTimeout = 2 * time.Minute
)

// QueueConfig configures a BackupQueue.
type QueueConfig struct {
	// Workers bounds concurrently running exports.
	Workers int
	// JobTimeout bounds one export and write. Zero uses DefaultJobTimeout.
	JobTimeout time.Duration
}

// BackupQueue runs export jobs. At most one job per primary-member entity
// id runs at a time; jobs for different groups run concurrently up to
// Workers.
type BackupQueue struct {
	serializer GridSerializer
	store      SnapshotStore
	sim        *simthread.Dispatcher
	cfg        QueueConfig
	logger     *slog.Logger
	metrics    Metrics

	sem      *semaphore.Weighted
	inflight *cmap.Map[int64, chan struct{}]
}

// NewBackupQueue creates a queue. logger and metrics may be nil.
func NewBackupQueue(serializer GridSerializer, store SnapshotStore, sim *simthread.Dispatcher, cfg QueueConfig, logger *slog.Logger, metrics Metrics) *BackupQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &BackupQueue{
		serializer: serializer,
		store:      store,
		sim:        sim,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		inflight:   cmap.New[int64, chan struct{}](),
	}
}

// InFlight returns the number of groups currently held by a job.
func (q *BackupQueue) InFlight() int {
	return q.inflight.Count()
}

// Enqueue validates job, exports its group and commits the snapshot.
// Invalid groups fail with ErrInvalidGroup or ErrNoOwner before any disk
// access. Every failure leaves no file behind.
func (q *BackupQueue) Enqueue(ctx context.Context, job domain.BackupJob, policy Policy) (domain.SnapshotFile, error) {
	start := time.Now()
	group := job.Group

	if err := group.Validate(); err != nil {
		q.metrics.ObserveJob(ResultSkipped, time.Since(start), 0)
		q.logFailure(ctx, job, err)
		return domain.SnapshotFile{}, err
	}

	key := group.EntityID()
	release, err := q.acquire(ctx, key, policy)
	if err != nil {
		result := ResultFailed
		if errors.Is(err, domain.ErrAlreadyInProgress) {
			result = ResultRejected
		}
		q.metrics.ObserveJob(result, time.Since(start), 0)
		return domain.SnapshotFile{}, err
	}
	defer release()

	file, err := q.run(ctx, job)
	switch {
	case err == nil:
		q.metrics.ObserveJob(ResultOK, time.Since(start), file.Size)
		q.logger.Info("grid backed up",
			"identity_id", job.OwnerID,
			"graph_name", group.DisplayName(),
			"entity_id", key,
			"file", file.Name,
			"bytes", file.Size,
			"duration", time.Since(start))
	case errors.Is(err, domain.ErrTimeout):
		q.metrics.ObserveJob(ResultTimeout, time.Since(start), 0)
		q.logFailure(ctx, job, err)
	default:
		q.metrics.ObserveJob(ResultFailed, time.Since(start), 0)
		q.logFailure(ctx, job, err)
	}
	return file, err
}

// acquire takes the single-flight key for id and a worker slot.
func (q *BackupQueue) acquire(ctx context.Context, id int64, policy Policy) (func(), error) {
	mine := make(chan struct{})
	for {
		holder, loaded := q.inflight.GetOrSet(id, mine)
		if !loaded {
			break
		}
		if policy == PolicyReject {
			return nil, domain.ErrAlreadyInProgress.WithDetailsf("entity %d", id)
		}
		select {
		case <-holder:
		case <-ctx.Done():
			return nil, contextErr(ctx.Err())
		}
	}

	releaseKey := func() {
		q.inflight.Delete(id)
		close(mine)
	}

	if err := q.sem.Acquire(ctx, 1); err != nil {
		releaseKey()
		return nil, contextErr(err)
	}
	return func() {
		q.sem.Release(1)
		releaseKey()
	}, nil
}

func (q *BackupQueue) run(ctx context.Context, job domain.BackupJob) (domain.SnapshotFile, error) {
	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	group := job.Group
	data, err := simthread.Call(jobCtx, q.sim, func() ([]byte, error) {
		return q.serializer.Export(group)
	})
	if err != nil {
		if ctxErr := contextErr(err); ctxErr != nil {
			return domain.SnapshotFile{}, ctxErr
		}
		var de *domain.DomainError
		if errors.As(err, &de) {
			return domain.SnapshotFile{}, de
		}
		return domain.SnapshotFile{}, domain.ErrSerialization.WithCause(err).WithDetails(err.Error())
	}
	if err := jobCtx.Err(); err != nil {
		return domain.SnapshotFile{}, contextErr(err)
	}

	playerPath, err := layout.PlayerPath(job.Root, job.OwnerID)
	if err != nil {
		return domain.SnapshotFile{}, err
	}
	folder, err := layout.GraphFolderPath(playerPath, group.DisplayName(), group.EntityID())
	if err != nil {
		return domain.SnapshotFile{}, err
	}

	return q.store.WriteSnapshot(folder, domain.SnapshotMeta{
		IdentityID: job.OwnerID,
		EntityID:   group.EntityID(),
		GraphName:  group.DisplayName(),
	}, data)
}

func (q *BackupQueue) logFailure(ctx context.Context, job domain.BackupJob, err error) {
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrNoOwner) || errors.Is(err, domain.ErrInvalidGroup) {
		level = slog.LevelInfo
	}
	l := q.logger
	if runID := tlog.RunIDFromContext(ctx); runID != "" {
		l = l.With("run_id", runID)
	}
	l.Log(ctx, level, "grid backup failed",
		"identity_id", job.OwnerID,
		"graph_name", job.Group.DisplayName(),
		"entity_id", job.Group.EntityID(),
		"error_code", domain.GetErrorCode(err),
		"error", err)
}

// contextErr maps context errors to domain errors and returns nil for
// anything else.
func contextErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTimeout.WithCause(err)
	case errors.Is(err, context.Canceled):
		return domain.ErrServiceUnavailable.WithCause(err).WithDetails("canceled")
	}
	return nil
}
