// Package types defines the domain types shared by the job manager, engine
// adapter, and IPC server: job state, backup results, snapshot metadata, and
// the IPC request/response/event envelopes. Keeping them in one package
// without behavior avoids import cycles between jobmanager, engine, and ipc.
package types

import "time"

// JobStateKind is the tag of the per-set state machine described in the job
// manager's design: Idle, Debouncing, Running, Error.
type JobStateKind string

const (
	StateIdle       JobStateKind = "idle"
	StateDebouncing JobStateKind = "debouncing"
	StateRunning    JobStateKind = "running"
	StateError      JobStateKind = "error"
)

// JobState is the tagged-union encoding of the set's current state.
// DebounceRemaining is only meaningful when Kind == StateDebouncing.
type JobState struct {
	Kind              JobStateKind  `json:"kind"`
	DebounceRemaining time.Duration `json:"debounce_remaining_ns,omitempty"`
}

// BackupResult records the outcome of the most recently completed backup run
// for a set, success or failure. RunID correlates this result with the
// BackupStarted/BackupComplete/BackupFailed events emitted for the same run.
type BackupResult struct {
	RunID      string    `json:"run_id"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	AddedBytes uint64    `json:"added_bytes"`
	Duration   time.Duration `json:"duration_ns"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// SnapshotInfo mirrors one entry from `restic snapshots --json`.
type SnapshotInfo struct {
	ID       string    `json:"id"`
	ShortID  string    `json:"short_id"`
	Time     time.Time `json:"time"`
	Paths    []string  `json:"paths"`
	Tags     []string  `json:"tags,omitempty"`
}

// RepoSummary is the cached size/count view of a repository, refreshed after
// every successful backup or prune. A nil *RepoSummary field on SetStatus
// means "unknown" (cleared after a failed refresh), never stale data.
type RepoSummary struct {
	SnapshotCount int    `json:"snapshot_count"`
	TotalBytes    uint64 `json:"total_bytes"`
}

// SetStatus is the externally-visible snapshot of a single Job, returned by
// the IPC Status request.
type SetStatus struct {
	Name       string        `json:"name"`
	Sources    []string      `json:"sources"`
	Target     string        `json:"target"`
	State      JobState      `json:"state"`
	LastBackup *BackupResult `json:"last_backup,omitempty"`
	Repo       *RepoSummary  `json:"repo,omitempty"`
	IsMounted  bool          `json:"is_mounted"`
	MountPath  string        `json:"mount_path,omitempty"`
}
