package domain

import "time"

// BackupJob asks the queue to export Group into Root, filed under OwnerID.
type BackupJob struct {
	Group   GraphGroup
	Root    string
	OwnerID int64
}

// Trigger records what started a backup run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Failure stages.
const (
	// FailureStageResolve means the identity's grids could not be listed;
	// GraphName and EntityID are empty.
	FailureStageResolve = "resolve"
	FailureStageBackup  = "backup"
)

// JobFailure describes one job that did not produce a snapshot.
type JobFailure struct {
	Stage        string `json:"stage"`
	IdentityID   int64  `json:"identity_id"`
	IdentityName string `json:"identity_name,omitempty"`
	GraphName    string `json:"graph_name,omitempty"`
	EntityID     int64  `json:"entity_id,omitempty"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// RunSummary is the outcome of one sweep.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	Trigger    Trigger      `json:"trigger"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Identities int          `json:"identities"`
	Groups     int          `json:"groups"`
	Succeeded  int          `json:"succeeded"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Pruned     int          `json:"pruned"`
	Bytes      int64        `json:"bytes"`
	Failures   []JobFailure `json:"failures,omitempty"`
	Aborted    string       `json:"aborted,omitempty"`
}

// Duration is FinishedAt - StartedAt.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// NewBackupJob files group under its authoritative owner.
func NewBackupJob(group GraphGroup, root string) BackupJob {
	owner, _ := group.OwnerID()
	return BackupJob{Group: group, Root: root, OwnerID: owner}
}
