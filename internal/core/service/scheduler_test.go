package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

func withInterval(d time.Duration) harnessOption {
	return func(_ *QueueConfig, s *SchedulerConfig) { s.Interval = d }
}

func TestBackupScheduler_SweepsEveryOwner(t *testing.T) {
	h := newHarness(t)

	summary, started := h.scheduler.TriggerRun(context.Background(), domain.TriggerManual)
	if !started {
		t.Fatal("TriggerRun did not start")
	}
	if summary.Identities != 2 || summary.Groups != 3 || summary.Succeeded != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.RunID == "" || summary.Trigger != domain.TriggerManual || summary.Bytes <= 0 {
		t.Fatalf("summary header = %+v", summary)
	}

	for _, rel := range []string{"7/Outpost_42", "7/Shuttle_50", "9/Outpost_60"} {
		files, err := h.store.ListSnapshots(filepath.Join(h.store.Root(), filepath.FromSlash(rel)))
		if err != nil || len(files) != 1 {
			t.Errorf("%s: files = %d, err = %v", rel, len(files), err)
		}
	}
	if _, err := os.Stat(filepath.Join(h.store.Root(), "7", "Rotor Arm_43")); !os.IsNotExist(err) {
		t.Error("non-primary member got its own folder")
	}

	if h.scheduler.LastRun() != summary {
		t.Error("LastRun not updated")
	}
	runs, _ := h.history.List(context.Background(), 0)
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Errorf("history = %v", runs)
	}
	if h.scheduler.Running() {
		t.Error("still running after TriggerRun returned")
	}
}

func TestBackupScheduler_OverlappingTriggersRejected(t *testing.T) {
	h := newHarness(t)
	release := h.serializer.hold()
	t.Cleanup(release)
	ctx := context.Background()

	if !h.scheduler.TriggerRunAsync(ctx, domain.TriggerManual) {
		t.Fatal("first trigger rejected")
	}
	h.waitEntered(t)

	if !h.scheduler.Running() {
		t.Fatal("Running = false during sweep")
	}
	if h.scheduler.TriggerRunAsync(ctx, domain.TriggerManual) {
		t.Fatal("second trigger accepted while running")
	}
	if summary, started := h.scheduler.TriggerRun(ctx, domain.TriggerScheduled); started || summary != nil {
		t.Fatal("blocking trigger accepted while running")
	}

	release()
	h.scheduler.Wait()
	if h.scheduler.Running() {
		t.Fatal("Running = true after sweep finished")
	}

	if !h.scheduler.TriggerRunAsync(ctx, domain.TriggerManual) {
		t.Fatal("trigger after finish rejected")
	}
	h.scheduler.Wait()

	if h.metrics.rejected != 2 {
		t.Errorf("rejected = %d, want 2", h.metrics.rejected)
	}
	runs, _ := h.history.List(ctx, 0)
	if len(runs) != 2 {
		t.Errorf("recorded runs = %d, want 2", len(runs))
	}
}

func TestBackupScheduler_FailureDoesNotAbortRun(t *testing.T) {
	h := newHarness(t)
	h.serializer.fail(50, errors.New("disk on fire"))

	summary, _ := h.scheduler.TriggerRun(context.Background(), domain.TriggerScheduled)
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	f := summary.Failures[0]
	if f.IdentityID != 7 || f.EntityID != 50 || f.GraphName != "Shuttle" || f.Code != domain.ErrSerialization.Code {
		t.Errorf("failure = %+v", f)
	}
	if f.Stage != domain.FailureStageBackup || f.IdentityName != "Alice" {
		t.Errorf("failure stage = %q, identity name = %q", f.Stage, f.IdentityName)
	}
}

func TestBackupScheduler_ResolveFailureNamesIdentity(t *testing.T) {
	h := newHarness(t)
	resolver := newStubResolver(t, &stubWorld{
		identities: []domain.Identity{{ID: 7, Name: "Alice"}},
		err:        errors.New("grid index unavailable"),
	})
	scheduler := NewBackupScheduler(resolver, h.queue, h.store, h.history, SchedulerConfig{Concurrency: 1}, nil, h.metrics)

	summary, _ := scheduler.TriggerRun(context.Background(), domain.TriggerScheduled)
	if summary.Identities != 1 || summary.Groups != 0 || summary.Failed != 1 || len(summary.Failures) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	f := summary.Failures[0]
	if f.Stage != domain.FailureStageResolve || f.IdentityID != 7 || f.IdentityName != "Alice" {
		t.Errorf("failure = %+v", f)
	}
	if f.GraphName != "" || f.EntityID != 0 || f.Code != domain.ErrInternalServer.Code {
		t.Errorf("failure = %+v", f)
	}
}

func TestBackupScheduler_CancelStopsManualRun(t *testing.T) {
	h := newHarness(t)
	release := h.serializer.hold()
	t.Cleanup(release)

	ctx, cancel := context.WithCancel(context.Background())
	if !h.scheduler.TriggerRunAsync(ctx, domain.TriggerManual) {
		t.Fatal("trigger rejected")
	}
	h.waitEntered(t)

	// The held export keeps the simulation thread busy, so nothing can
	// finish before the cancel lands.
	cancel()
	h.scheduler.Wait()

	last := h.scheduler.LastRun()
	if last == nil {
		t.Fatal("no run recorded")
	}
	if last.Succeeded != 0 || last.Failed == 0 {
		t.Fatalf("summary = %+v", last)
	}
	for _, f := range last.Failures {
		if f.Code != domain.ErrServiceUnavailable.Code {
			t.Errorf("failure = %+v, want %s", f, domain.ErrServiceUnavailable.Code)
		}
	}
	for _, rel := range []string{"7/Outpost_42", "7/Shuttle_50", "9/Outpost_60"} {
		files, _ := h.store.ListSnapshots(filepath.Join(h.store.Root(), filepath.FromSlash(rel)))
		if len(files) != 0 {
			t.Errorf("%s: %d snapshots written after cancel", rel, len(files))
		}
	}
	if runs, _ := h.history.List(context.Background(), 0); len(runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(runs))
	}
}

func TestBackupScheduler_PrunesWrittenFolders(t *testing.T) {
	h := newHarness(t, withKeepPerGrid(2))
	ctx := context.Background()

	var last *domain.RunSummary
	for i := 0; i < 3; i++ {
		last, _ = h.scheduler.TriggerRun(ctx, domain.TriggerScheduled)
	}
	if last.Pruned != 3 {
		t.Fatalf("Pruned = %d, want 3", last.Pruned)
	}
	for _, rel := range []string{"7/Outpost_42", "7/Shuttle_50", "9/Outpost_60"} {
		files, _ := h.store.ListSnapshots(filepath.Join(h.store.Root(), filepath.FromSlash(rel)))
		if len(files) != 2 {
			t.Errorf("%s: files = %d, want 2", rel, len(files))
		}
	}
}

func TestBackupScheduler_RunLoop(t *testing.T) {
	h := newHarness(t, withInterval(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.scheduler.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.scheduler.LastRun() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	last := h.scheduler.LastRun()
	if last == nil || last.Trigger != domain.TriggerScheduled {
		t.Fatalf("LastRun = %+v", last)
	}
}

func TestBackupScheduler_RunDisabled(t *testing.T) {
	h := newHarness(t)
	done := make(chan struct{})
	go func() {
		h.scheduler.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval did not return")
	}
}
