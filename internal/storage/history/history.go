// Package history persists backup run summaries in Badger.
//
// Each finished sweep is stored under "run/<ulid>". ULIDs sort by
// creation time, so a reverse prefix scan yields the newest runs first.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

var (
	ErrClosed   = errors.New("history: store closed")
	ErrNoRunID  = errors.New("history: run summary has no id")
	runPrefix   = []byte("run/")
	prefixUpper = []byte("run/\xff")
)

const (
	DefaultKeep       = 500
	DefaultGCInterval = 10 * time.Minute
	gcDiscardRatio    = 0.5
)

// Config configures a Store.
type Config struct {
	// Dir holds the Badger files. Required unless InMemory is set.
	Dir string
	// Keep bounds the number of stored runs; older runs are dropped on
	// Record. Zero uses DefaultKeep, negative keeps everything.
	Keep int
	// GCInterval between value-log GC passes. Zero uses DefaultGCInterval.
	GCInterval time.Duration
	// InMemory runs Badger without touching disk.
	InMemory bool
}

// Store is a Badger-backed run history.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	closed     atomic.Bool
	lastGCTime atomic.Int64

	metricsRuns     prometheus.Gauge
	metricsDiskSize prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens or creates the history database.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("history: dir is required")
	}
	if cfg.Keep == 0 {
		cfg.Keep = DefaultKeep
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	// Run summaries are small; keep the footprint modest.
	opts.ValueLogFileSize = 16 << 20
	opts.BlockCacheSize = 8 << 20
	opts.NumMemtables = 2
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.gcLoop()

	logger.Info("run history opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "keep", cfg.Keep)
	return s, nil
}

func runKey(id string) []byte {
	return append(bytes.Clone(runPrefix), id...)
}

// Record stores summary and trims the history to Keep runs.
func (s *Store) Record(ctx context.Context, summary *domain.RunSummary) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if summary == nil || summary.RunID == "" {
		return ErrNoRunID
	}
	value, err := sonic.ConfigStd.Marshal(summary)
	if err != nil {
		return fmt.Errorf("history: encode run: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(summary.RunID), value)
	}); err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	if s.cfg.Keep > 0 {
		if _, err := s.Prune(ctx, s.cfg.Keep); err != nil {
			s.logger.Warn("run history prune failed", "error", err)
		}
	}
	return nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, runID string) (*domain.RunSummary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var summary domain.RunSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.ConfigStd.Unmarshal(val, &summary)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRunNotFound.WithDetails(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get run: %w", err)
	}
	return &summary, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var out []*domain.RunSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixUpper); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var summary domain.RunSummary
			err := it.Item().Value(func(val []byte) error {
				return sonic.ConfigStd.Unmarshal(val, &summary)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &summary)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if keep < 0 {
		return 0, nil
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek(prefixUpper); it.Valid(); it.Next() {
			seen++
			if seen > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("history: prune: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}

	s.logger.Debug("pruned run history", "deleted_count", len(stale), "keep", keep)
	return len(stale), nil
}

// Count returns the number of stored runs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// GC runs value-log garbage collection until nothing is left to rewrite.
func (s *Store) GC() error {
	if s.cfg.InMemory {
		return nil
	}
	start := time.Now()
	passes := 0
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return fmt.Errorf("history: gc: %w", err)
		}
		passes++
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	s.logger.Debug("run history gc completed", "passes", passes, "elapsed", time.Since(start))
	return nil
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("history: close db: %w", err)
	}
	s.logger.Info("run history closed")
	return nil
}

// RegisterMetrics exposes history gauges on registry.
func (s *Store) RegisterMetrics(registry prometheus.Registerer) *Store {
	s.metricsRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridbackup",
		Subsystem: "history",
		Name:      "runs_stored",
		Help:      "Number of run summaries kept in history",
	})
	s.metricsDiskSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridbackup",
		Subsystem: "history",
		Name:      "size_bytes",
		Help:      "History database size in bytes (LSM + value log)",
	})
	registry.MustRegister(s.metricsRuns, s.metricsDiskSize)
	s.updateMetrics()
	return s
}

func (s *Store) updateMetrics() {
	if s.metricsRuns == nil || s.closed.Load() {
		return
	}
	if n, err := s.Count(); err == nil {
		s.metricsRuns.Set(float64(n))
	}
	lsm, vlog := s.db.Size()
	s.metricsDiskSize.Set(float64(lsm + vlog))
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.GC(); err != nil {
				s.logger.Error("run history gc failed", "error", err)
			}
			s.updateMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger is chatty at info level; fold it into debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
