package jobmanager

import (
	"time"

	"github.com/backutil/backutil/internal/engine"
	"github.com/backutil/backutil/internal/types"
)

// Job is the runtime state for one configured backup set (spec §3
// "Runtime"). All mutable fields are only ever touched while the owning
// Manager's mutex is held; the one exception is the subprocess running
// inside runBackup/runAutoPrune, which executes with the lock released
// (spec §4.3 "the engine subprocess must run outside the JobManager
// mutex").
type Job struct {
	Name            string
	Sources         []string
	Target          string
	Exclude         []string
	DebounceSeconds int
	Retention       *engine.RetentionPolicy

	State            types.JobState
	Deadline         time.Time
	LastBackup       *types.BackupResult
	Repo             *types.RepoSummary
	MountHandle      *engine.MountHandle
	IsMounted        bool
	WorkerActive     bool
	PendingChange    bool
	ImmediateTrigger bool

	timer      *time.Timer
	generation uint64
}

// debounceDuration returns the set's configured debounce window.
func (j *Job) debounceDuration() time.Duration {
	return time.Duration(j.DebounceSeconds) * time.Second
}

// currentState computes the externally-visible JobState, filling in the
// live remaining-debounce duration rather than the value captured when the
// timer was armed.
func (j *Job) currentState() types.JobState {
	if j.State.Kind != types.StateDebouncing {
		return j.State
	}
	remaining := time.Until(j.Deadline)
	if remaining < 0 {
		remaining = 0
	}
	return types.JobState{Kind: types.StateDebouncing, DebounceRemaining: remaining}
}

// snapshotInputs is the bounded set of fields a worker needs, captured
// under the manager's lock and passed to runBackup after the lock is
// released (spec §4.3 "captures needed inputs, releases the lock, runs").
type snapshotInputs struct {
	target    string
	sources   []string
	exclude   []string
	retention *engine.RetentionPolicy
}
