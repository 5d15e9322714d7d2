package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

func TestBackupService_SaveListRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	saved, err := h.svc.Save(ctx, SaveRequest{GraphToken: "Rotor Arm"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.IdentityID != 7 || saved.EntityID != 42 || saved.GraphName != "Outpost" {
		t.Fatalf("SaveResult = %+v", saved)
	}
	if want := filepath.Join(h.store.Root(), "7", "Outpost_42", saved.File.Name); saved.File.Path != want {
		t.Fatalf("path = %s, want %s", saved.File.Path, want)
	}

	listing, err := h.svc.ListBackups(ctx, "7", "")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(listing.Folders) != 1 || listing.Folders[0].Name != "Outpost_42" {
		t.Fatalf("folders = %+v", listing.Folders)
	}

	listing, err = h.svc.ListBackups(ctx, "Alice", "Out*")
	if err != nil {
		t.Fatalf("ListBackups(grid): %v", err)
	}
	if listing.Folder == nil || len(listing.Files) != 1 {
		t.Fatalf("listing = %+v", listing)
	}
	text := listing.Text()
	for _, want := range []string{
		"Backed up Grids for Player Alice\n",
		"Grid Outpost_42\n",
		"1      " + saved.File.Name + " " + FormatKB(saved.File.Size) + " kb\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("listing text missing %q:\n%s", want, text)
		}
	}

	before := h.world.MemberCount()
	restored, err := h.svc.Restore(ctx, RestoreRequest{
		IdentityToken:        "Alice",
		GraphToken:           "42",
		KeepOriginalPosition: true,
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Version != 1 || restored.Members != 2 || restored.GraphName != "Outpost" {
		t.Fatalf("RestoreResult = %+v", restored)
	}
	if restored.EntityID == 42 {
		t.Fatal("restored grid reused the original entity id")
	}
	if h.world.MemberCount() != before+2 {
		t.Fatalf("member count = %d, want %d", h.world.MemberCount(), before+2)
	}
	m, ok := h.world.Member(restored.EntityID)
	if !ok || m.Position != (domain.Vector3{X: 10}) {
		t.Fatalf("restored primary = %+v, %v", m, ok)
	}
}

func TestBackupService_RestoreNearViewer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.svc.Save(ctx, SaveRequest{GraphToken: "42"}); err != nil {
		t.Fatal(err)
	}

	_, err := h.svc.Restore(ctx, RestoreRequest{IdentityToken: "7", GraphToken: "Outpost"})
	if !errors.Is(err, domain.ErrNoViewpoint) {
		t.Fatalf("no viewpoint error = %v", err)
	}

	restored, err := h.svc.Restore(ctx, RestoreRequest{
		IdentityToken: "7",
		GraphToken:    "Outpost",
		Viewpoint:     &domain.Viewpoint{IdentityID: 7},
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	m, _ := h.world.Member(restored.EntityID)
	if m.Position.X <= 100 {
		t.Fatalf("restored position = %+v, want near viewer at x=100", m.Position)
	}
}

func TestBackupService_RestoreVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := h.svc.Save(ctx, SaveRequest{GraphToken: "Shuttle"}); err != nil {
			t.Fatal(err)
		}
	}
	listing, _ := h.svc.ListBackups(ctx, "7", "Shuttle")

	keep := RestoreRequest{IdentityToken: "7", GraphToken: "Shuttle", KeepOriginalPosition: true}

	keep.Version = 2
	res, err := h.svc.Restore(ctx, keep)
	if err != nil || res.File.Name != listing.Files[1].Name {
		t.Fatalf("version 2 = %+v, %v", res, err)
	}

	keep.Version = 3
	if _, err := h.svc.Restore(ctx, keep); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("version 3 error = %v", err)
	}
	keep.Version = -1
	if _, err := h.svc.Restore(ctx, keep); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("version -1 error = %v", err)
	}
	keep.Version = 0
	if res, err := h.svc.Restore(ctx, keep); err != nil || res.Version != 1 || res.File.Name != listing.Files[0].Name {
		t.Fatalf("default version = %+v, %v", res, err)
	}
}

func TestBackupService_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		want *domain.DomainError
	}{
		{"ambiguous save", func() error {
			_, err := h.svc.Save(ctx, SaveRequest{GraphToken: "Outpost"})
			return err
		}, domain.ErrGridAmbiguous},
		{"unknown grid", func() error {
			_, err := h.svc.Save(ctx, SaveRequest{GraphToken: "Nope"})
			return err
		}, domain.ErrGridNotFound},
		{"save without token or viewer", func() error {
			_, err := h.svc.Save(ctx, SaveRequest{})
			return err
		}, domain.ErrNoViewpoint},
		{"ownerless grid", func() error {
			_, err := h.svc.Save(ctx, SaveRequest{GraphToken: "70"})
			return err
		}, domain.ErrNoOwner},
		{"unknown identity", func() error {
			_, err := h.svc.ListBackups(ctx, "Mallory", "")
			return err
		}, domain.ErrIdentityNotFound},
		{"missing identity", func() error {
			_, err := h.svc.ListBackups(ctx, " ", "")
			return err
		}, domain.ErrMissingArgument},
		{"grid never backed up", func() error {
			_, err := h.svc.ListBackups(ctx, "7", "Shuttle")
			return err
		}, domain.ErrGridNotFound},
		{"restore without grid", func() error {
			_, err := h.svc.Restore(ctx, RestoreRequest{IdentityToken: "7", KeepOriginalPosition: true})
			return err
		}, domain.ErrMissingArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %s", err, tt.want.Code)
			}
		})
	}
}

func TestBackupService_SaveFromViewpoint(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Save(context.Background(), SaveRequest{Viewpoint: &domain.Viewpoint{IdentityID: 7}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.EntityID != 42 {
		t.Fatalf("saved %d, want the targeted group's primary 42", res.EntityID)
	}
}

func TestBackupService_ManualRunAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if !h.svc.TriggerManualRun(ctx) {
		t.Fatal("TriggerManualRun rejected")
	}
	h.scheduler.Wait()

	runs, err := h.svc.RunHistory(ctx, 10)
	if err != nil || len(runs) != 1 || runs[0].Trigger != domain.TriggerManual {
		t.Fatalf("RunHistory = %v, %v", runs, err)
	}

	st, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running || st.Identities != 2 || st.LastRun == nil || st.Root != h.store.Root() {
		t.Fatalf("Status = %+v", st)
	}
	if st.BackedUpIdentities != 2 {
		t.Errorf("BackedUpIdentities = %d, want 2", st.BackedUpIdentities)
	}
}

func TestBackupService_RunDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	summary, _ := h.scheduler.TriggerRun(ctx, domain.TriggerManual)

	run, err := h.svc.RunDetail(ctx, summary.RunID)
	if err != nil || run.RunID != summary.RunID || run.Succeeded != 3 {
		t.Fatalf("RunDetail = %+v, %v", run, err)
	}
	if _, err := h.svc.RunDetail(ctx, "01UNKNOWN"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("unknown run error = %v", err)
	}
	if _, err := h.svc.RunDetail(ctx, " "); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("blank run id error = %v", err)
	}

	// Without a history store only the last run is known.
	bare := NewBackupService(BackupServiceConfig{
		Resolver:  h.resolver,
		Queue:     h.queue,
		Scheduler: h.scheduler,
		Store:     h.store,
		Sim:       h.sim,
	})
	if run, err := bare.RunDetail(ctx, summary.RunID); err != nil || run != h.scheduler.LastRun() {
		t.Errorf("fallback RunDetail = %+v, %v", run, err)
	}
	if _, err := bare.RunDetail(ctx, "01UNKNOWN"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("fallback unknown run error = %v", err)
	}
}

func TestBackupService_RenamedGridKeepsEntityID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Save(ctx, SaveRequest{GraphToken: "42"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !h.world.Rename(42, "Outpost Mk2") {
		t.Fatal("Rename(42) found nothing")
	}
	saved, err := h.svc.Save(ctx, SaveRequest{GraphToken: "42"})
	if err != nil {
		t.Fatalf("Save after rename: %v", err)
	}
	if saved.EntityID != 42 || saved.GraphName != "Outpost Mk2" {
		t.Fatalf("SaveResult = %+v", saved)
	}

	listing, err := h.svc.ListBackups(ctx, "7", "")
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	names := map[string]int64{}
	for _, f := range listing.Folders {
		names[f.Name] = f.EntityID
	}
	if len(names) != 2 || names["Outpost_42"] != 42 || names["Outpost Mk2_42"] != 42 {
		t.Fatalf("folders = %+v", listing.Folders)
	}

	listing, err = h.svc.ListBackups(ctx, "7", "Outpost Mk2")
	if err != nil || listing.Folder.Name != "Outpost Mk2_42" || len(listing.Files) != 1 {
		t.Fatalf("ListBackups(new name) = %+v, %v", listing, err)
	}
	listing, err = h.svc.ListBackups(ctx, "7", "42")
	if err != nil || listing.Folder.EntityID != 42 {
		t.Fatalf("ListBackups(42) = %+v, %v", listing, err)
	}
}

func TestBackupService_RestoreOutlivesDeadline(t *testing.T) {
	h := newHarness(t)

	if _, err := h.svc.Save(context.Background(), SaveRequest{GraphToken: "Shuttle"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	h.serializer.slowImports(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	before := h.world.MemberCount()
	restored, err := h.svc.Restore(ctx, RestoreRequest{
		IdentityToken:        "7",
		GraphToken:           "50",
		KeepOriginalPosition: true,
	})
	if err != nil {
		t.Fatalf("Restore reported %v for a grid that was spawned", err)
	}
	if restored.Members != 1 || h.world.MemberCount() != before+1 {
		t.Fatalf("restored = %+v, members %d -> %d", restored, before, h.world.MemberCount())
	}

	// A context that is already done never reaches the import.
	dead, cancelDead := context.WithCancel(context.Background())
	cancelDead()
	if _, err := h.svc.Restore(dead, RestoreRequest{IdentityToken: "7", GraphToken: "50", KeepOriginalPosition: true}); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("canceled Restore error = %v", err)
	}
	if h.world.MemberCount() != before+1 {
		t.Fatalf("member count = %d after canceled restore", h.world.MemberCount())
	}
}

func TestFormatKB(t *testing.T) {
	tests := map[int64]string{
		0:           "0.00",
		512:         "0.50",
		1536:        "1.50",
		2048 * 1024: "2,048.00",
	}
	for size, want := range tests {
		if got := FormatKB(size); got != want {
			t.Errorf("FormatKB(%d) = %q, want %q", size, got, want)
		}
	}
}

func TestFormatSnapshotLine(t *testing.T) {
	f := domain.SnapshotFile{Name: "backup-20240501120000-0001.sbc", Size: 1536}
	want := "3      backup-20240501120000-0001.sbc 1.50 kb"
	if got := FormatSnapshotLine(3, f); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
