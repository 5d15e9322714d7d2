package service

import (
	"context"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// WorldGridSource is the host world's view of identities and grids.
// Implementations are not required to be safe for concurrent use; the
// service only calls them from the simulation dispatcher.
type WorldGridSource interface {
	// ResolveIdentity finds an identity by decimal id or display name.
	ResolveIdentity(nameOrID string) (domain.Identity, bool)

	// FindGraphGroups returns the groups matching token by exact entity id
	// or name. With an empty token it returns the group the viewpoint's
	// identity is looking at. It may return domain.ErrGridAmbiguous itself.
	FindGraphGroups(token string, vp *domain.Viewpoint, includeConnections bool) ([]domain.GraphGroup, error)

	// OwnedGraphGroups returns every group whose primary member is owned
	// by identityID.
	OwnedGraphGroups(identityID int64, includeConnections bool) ([]domain.GraphGroup, error)

	// AllIdentities lists every known identity.
	AllIdentities() []domain.Identity
}

// GridSerializer converts a group to bytes and back.
type GridSerializer interface {
	Export(group domain.GraphGroup) ([]byte, error)
	Import(data []byte, hint domain.PlacementHint) (domain.GraphGroup, error)
}

// SnapshotStore is the on-disk snapshot layout.
type SnapshotStore interface {
	Root() string
	ListGraphFolders(playerPath string) ([]domain.SnapshotFolder, error)
	FindFolder(folders []domain.SnapshotFolder, token string) (domain.SnapshotFolder, bool)
	ListSnapshots(folderPath string) ([]domain.SnapshotFile, error)
	WriteSnapshot(folderPath string, meta domain.SnapshotMeta, data []byte) (domain.SnapshotFile, error)
	ReadSnapshot(path string) (*domain.Snapshot, error)
	Prune(folderPath string, keep int) (int, error)
	// ListIdentities returns the ids that have a folder under Root.
	ListIdentities() ([]int64, error)
}

// RunHistory persists sweep summaries.
type RunHistory interface {
	Record(ctx context.Context, s *domain.RunSummary) error
	List(ctx context.Context, limit int) ([]*domain.RunSummary, error)
	// Get returns domain.ErrRunNotFound for an unknown id.
	Get(ctx context.Context, runID string) (*domain.RunSummary, error)
}

// Metrics receives job and run observations.
type Metrics interface {
	ObserveJob(result string, d time.Duration, bytes int64)
	ObserveRun(trigger string, d time.Duration)
	RunRejected()
}

type noopMetrics struct{}

func (noopMetrics) ObserveJob(string, time.Duration, int64) {}
func (noopMetrics) ObserveRun(string, time.Duration)        {}
func (noopMetrics) RunRejected()                            {}
