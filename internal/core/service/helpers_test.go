package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
	"github.com/yndnr/gridbackup-go/internal/infra/simthread"
	"github.com/yndnr/gridbackup-go/internal/storage/gridcodec"
	"github.com/yndnr/gridbackup-go/internal/storage/memory"
	"github.com/yndnr/gridbackup-go/internal/storage/snapshot"
)

const worldSeed = `
identities:
  - id: 7
    name: Alice
    position: {x: 100}
    target: 43
  - id: 9
    name: Bob
grids:
  - {entity_id: 42, name: Outpost, blocks: 1200, owners: [7], position: {x: 10}}
  - {entity_id: 43, name: Rotor Arm, blocks: 80, owners: [7], position: {x: 12}}
  - {entity_id: 50, name: Shuttle, blocks: 300, owners: [7]}
  - {entity_id: 60, name: Outpost, blocks: 10, owners: [9]}
  - {entity_id: 70, name: Derelict, blocks: 40}
links:
  - {a: 43, b: 42}
`

// gatedSerializer wraps a serializer so tests can hold an export open.
type gatedSerializer struct {
	inner GridSerializer

	mu      sync.Mutex
	gate    chan struct{}
	entered chan int64
	failOn  map[int64]error
	exports atomic.Int32

	// importDelay stalls Import on the simulation thread.
	importDelay time.Duration
}

func newGatedSerializer(inner GridSerializer) *gatedSerializer {
	return &gatedSerializer{inner: inner, entered: make(chan int64, 64), failOn: map[int64]error{}}
}

// hold makes every following export wait until the returned func is called.
func (g *gatedSerializer) hold() func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate := make(chan struct{})
	g.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.gate = nil
			g.mu.Unlock()
			close(gate)
		})
	}
}

func (g *gatedSerializer) fail(entityID int64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOn[entityID] = err
}

func (g *gatedSerializer) Export(group domain.GraphGroup) ([]byte, error) {
	g.exports.Add(1)
	g.mu.Lock()
	gate := g.gate
	err := g.failOn[group.EntityID()]
	g.mu.Unlock()

	g.entered <- group.EntityID()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return g.inner.Export(group)
}

func (g *gatedSerializer) Import(data []byte, hint domain.PlacementHint) (domain.GraphGroup, error) {
	g.mu.Lock()
	delay := g.importDelay
	g.mu.Unlock()
	time.Sleep(delay)
	return g.inner.Import(data, hint)
}

func (g *gatedSerializer) slowImports(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.importDelay = d
}

// memHistory is an in-memory RunHistory.
type memHistory struct {
	mu   sync.Mutex
	runs []*domain.RunSummary
}

func (h *memHistory) Record(_ context.Context, s *domain.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, s)
	return nil
}

func (h *memHistory) List(_ context.Context, limit int) ([]*domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*domain.RunSummary
	for i := len(h.runs) - 1; i >= 0; i-- {
		out = append(out, h.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (h *memHistory) Get(_ context.Context, runID string) (*domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, domain.ErrRunNotFound.WithDetails(runID)
}

// countingMetrics records job results.
type countingMetrics struct {
	mu       sync.Mutex
	results  map[string]int
	runs     int
	rejected int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{results: map[string]int{}}
}

func (m *countingMetrics) ObserveJob(result string, _ time.Duration, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result]++
}

func (m *countingMetrics) ObserveRun(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
}

func (m *countingMetrics) RunRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *countingMetrics) count(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[result]
}

type harness struct {
	world      *memory.World
	store      *snapshot.Store
	sim        *simthread.Dispatcher
	serializer *gatedSerializer
	metrics    *countingMetrics
	history    *memHistory
	resolver   *GridResolver
	queue      *BackupQueue
	scheduler  *BackupScheduler
	svc        *BackupService
}

type harnessOption func(*QueueConfig, *SchedulerConfig)

func withJobTimeout(d time.Duration) harnessOption {
	return func(q *QueueConfig, _ *SchedulerConfig) { q.JobTimeout = d }
}

func withKeepPerGrid(n int) harnessOption {
	return func(_ *QueueConfig, s *SchedulerConfig) { s.KeepPerGrid = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	seed, err := memory.ParseSeed([]byte(worldSeed))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	world := memory.NewWorld()
	if err := seed.Apply(world); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	store, err := snapshot.NewStore(snapshot.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sim := simthread.New(16)
	t.Cleanup(sim.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	qcfg := QueueConfig{Workers: 4, JobTimeout: 5 * time.Second}
	scfg := SchedulerConfig{Concurrency: 4}
	for _, opt := range opts {
		opt(&qcfg, &scfg)
	}

	h := &harness{
		world:      world,
		store:      store,
		sim:        sim,
		serializer: newGatedSerializer(gridcodec.New(world)),
		metrics:    newCountingMetrics(),
		history:    &memHistory{},
	}
	h.resolver = NewGridResolver(world, sim)
	h.queue = NewBackupQueue(h.serializer, store, sim, qcfg, logger, h.metrics)
	h.scheduler = NewBackupScheduler(h.resolver, h.queue, store, h.history, scfg, logger, h.metrics)
	h.svc = NewBackupService(BackupServiceConfig{
		Resolver:   h.resolver,
		Queue:      h.queue,
		Scheduler:  h.scheduler,
		Store:      store,
		Serializer: h.serializer,
		Sim:        sim,
		History:    h.history,
		Logger:     logger,
	})
	return h
}

// group resolves token in the harness world.
func (h *harness) group(t *testing.T, token string) domain.GraphGroup {
	t.Helper()
	g, err := h.resolver.ResolveOne(context.Background(), token, nil, false)
	if err != nil {
		t.Fatalf("ResolveOne(%q): %v", token, err)
	}
	return g
}

// waitEntered blocks until an export for some group has started.
func (h *harness) waitEntered(t *testing.T) int64 {
	t.Helper()
	select {
	case id := <-h.serializer.entered:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("export never started")
	}
	return 0
}
