// Package jobmanager is the daemon's core: one Job per configured backup
// set, the Idle/Debouncing/Running/Error state machine driving each, the
// at-most-one-worker-per-set discipline, retention auto-prune, mount
// tracking, and cross-set repository-sharing reconciliation (spec §4.3).
//
// Grounded on arkeep-io-arkeep/server/internal/scheduler/scheduler.go's
// singleton-job discipline (gocron.WithSingletonMode there maps to this
// package's worker_active guard here) and its dispatch/runJob split between
// scheduling decisions and execution. gocron itself is not wired in: that
// scheduler runs fixed cron expressions against a remote job queue, while
// this manager schedules a per-set debounce deadline recomputed on every
// filesystem change — a shape time.AfterFunc expresses directly without an
// external scheduling library.
package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/backutil/backutil/internal/broadcast"
	"github.com/backutil/backutil/internal/config"
	"github.com/backutil/backutil/internal/engine"
	"github.com/backutil/backutil/internal/mount"
	"github.com/backutil/backutil/internal/paths"
	"github.com/backutil/backutil/internal/types"
)

// ErrUnknownSet is returned by any Manager method scoped to a set name that
// is not currently configured.
var ErrUnknownSet = errors.New("jobmanager: unknown backup set")

// ErrNotMounted is returned by Unmount when the daemon owns no mount handle
// and the kernel mount table shows nothing mounted at the set's mountpoint.
var ErrNotMounted = errors.New("jobmanager: set is not mounted")

// ErrNoRetention is returned by TriggerPrune against a set with no
// effective retention policy (spec §4.3 "manual prune against an
// unconfigured set fails with a clear error").
var ErrNoRetention = errors.New("jobmanager: set has no retention policy configured")

// Manager owns every Job and is the only component that invokes the engine
// adapter. Its mutex is held only for bounded state reads/writes, never
// across subprocess execution (spec §5 locking discipline).
type Manager struct {
	ctx context.Context

	log     *zap.Logger
	adapter *engine.Adapter
	bus     *broadcast.Bus
	tracker *mount.Tracker
	paths   paths.Paths

	mu   sync.Mutex
	jobs map[string]*Job

	wg sync.WaitGroup
}

// New creates a Manager with no jobs. ctx is the root cancellation token
// (spec §9 "cancellation tree"): cancelling it propagates into every
// in-flight engine subprocess via context derivation, without the manager
// tracking per-operation cancel state itself. Call Reconcile to populate
// jobs from a loaded config.
func New(ctx context.Context, log *zap.Logger, adapter *engine.Adapter, bus *broadcast.Bus, tracker *mount.Tracker, p paths.Paths) *Manager {
	return &Manager{
		ctx:     ctx,
		log:     log,
		adapter: adapter,
		bus:     bus,
		tracker: tracker,
		paths:   p,
		jobs:    make(map[string]*Job),
	}
}

// Reconcile brings the job set in line with root: new sets become fresh
// Jobs (with startup reconciliation against the repository and mount
// table), removed sets are unmounted and dropped, and sets that already
// exist have their configuration fields updated in place without
// disturbing runtime state (spec §4.5 "reconciles the Job set").
func (m *Manager) Reconcile(root *config.Root) {
	wanted := make(map[string]config.BackupSet, len(root.BackupSets))
	for _, s := range root.BackupSets {
		wanted[s.Name] = s
	}

	m.mu.Lock()
	var toRemove []*Job
	for name, job := range m.jobs {
		if _, ok := wanted[name]; !ok {
			toRemove = append(toRemove, job)
			delete(m.jobs, name)
		}
	}
	m.mu.Unlock()

	for _, job := range toRemove {
		m.dropJob(job)
	}

	var newSets []config.BackupSet
	for name, set := range wanted {
		m.mu.Lock()
		job, exists := m.jobs[name]
		m.mu.Unlock()

		if exists {
			m.updateJob(job, set, root.Global)
			continue
		}
		newSets = append(newSets, set)
	}
	if len(newSets) == 0 {
		return
	}

	candidates := make([]string, len(newSets))
	for i, set := range newSets {
		candidates[i] = m.paths.SetMountpoint(set.Name)
	}
	orphaned, err := m.tracker.Orphaned(candidates)
	if err != nil {
		m.log.Warn("jobmanager: failed to query mount table during startup reconciliation", zap.Error(err))
	}
	orphanSet := make(map[string]struct{}, len(orphaned))
	for _, path := range orphaned {
		orphanSet[path] = struct{}{}
	}

	for _, set := range newSets {
		_, isOrphaned := orphanSet[m.paths.SetMountpoint(set.Name)]
		m.addJob(set, root.Global, isOrphaned)
	}
}

// addJob constructs a Job for a newly observed set, querying the
// repository for its most recent snapshot and size, before registering it
// (spec §4.3 "startup reconciliation"). alreadyMounted reports whether the
// set's mountpoint was found in the kernel mount table by Reconcile's single
// bulk Tracker.Orphaned call across every new set, rather than a per-set
// Tracker.IsMounted query.
func (m *Manager) addJob(set config.BackupSet, global config.Global, alreadyMounted bool) {
	job := &Job{
		Name:            set.Name,
		Sources:         set.ResolvedSources(),
		Target:          set.Target,
		Exclude:         set.Exclude,
		DebounceSeconds: set.EffectiveDebounceSeconds(global),
		Retention:       toEngineRetention(set.EffectiveRetention(global)),
		State:           types.JobState{Kind: types.StateIdle},
	}

	if password, err := m.readPassword(); err != nil {
		m.log.Warn("jobmanager: password file unreadable, skipping repository reconciliation for new set",
			zap.String("set", set.Name), zap.Error(err))
	} else {
		if snaps, err := m.adapter.Snapshots(m.ctx, job.Target, password, nil, 1); err != nil {
			m.log.Warn("jobmanager: failed to query latest snapshot during startup reconciliation",
				zap.String("set", set.Name), zap.Error(err))
		} else if len(snaps) > 0 {
			latest := snaps[len(snaps)-1]
			job.LastBackup = &types.BackupResult{
				SnapshotID: latest.ID,
				Timestamp:  latest.Time,
				Success:    true,
			}
		}

		if summary, err := m.adapter.Stats(m.ctx, job.Target, password, nil); err != nil {
			m.log.Warn("jobmanager: failed to query repository stats during startup reconciliation",
				zap.String("set", set.Name), zap.Error(err))
		} else {
			job.Repo = &summary
		}
	}

	if alreadyMounted {
		job.IsMounted = true
		m.log.Info("jobmanager: found orphaned mount from a prior daemon instance",
			zap.String("set", set.Name), zap.String("path", m.paths.SetMountpoint(set.Name)))
	}

	m.mu.Lock()
	m.jobs[set.Name] = job
	m.mu.Unlock()
}

// updateJob applies a reloaded set's configuration fields to an existing
// Job, leaving all runtime state (state machine, timers, mount handle,
// cached results) untouched.
func (m *Manager) updateJob(job *Job, set config.BackupSet, global config.Global) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Sources = set.ResolvedSources()
	job.Target = set.Target
	job.Exclude = set.Exclude
	job.DebounceSeconds = set.EffectiveDebounceSeconds(global)
	job.Retention = toEngineRetention(set.EffectiveRetention(global))
}

// dropJob stops a removed set's timer and unmounts any active mount before
// discarding it.
func (m *Manager) dropJob(job *Job) {
	m.mu.Lock()
	if job.timer != nil {
		job.timer.Stop()
	}
	handle := job.MountHandle
	wasMounted := job.IsMounted
	job.MountHandle = nil
	job.IsMounted = false
	m.mu.Unlock()

	if handle != nil {
		if err := handle.Terminate(); err != nil {
			m.log.Warn("jobmanager: failed to terminate mount while removing set", zap.String("set", job.Name), zap.Error(err))
		}
		return
	}
	if wasMounted {
		if err := mount.Unmount(m.paths.SetMountpoint(job.Name)); err != nil {
			m.log.Warn("jobmanager: failed to unmount orphaned mount while removing set", zap.String("set", job.Name), zap.Error(err))
		}
	}
}

// OnChange is called by the watcher for every coalesced filesystem change
// attributed to name. A change while Running is recorded as a pending
// change rather than starting a second worker (spec §4.3 "Running →
// Debouncing: if change events arrived while Running").
func (m *Manager) OnChange(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return
	}

	if job.State.Kind == types.StateRunning {
		job.PendingChange = true
		return
	}

	m.scheduleDebounce(job, job.debounceDuration())
}

// scheduleDebounce (re)arms job's debounce timer for delay from now. Must
// be called with m.mu held.
//
// job.timer.Stop() does not guarantee a timer already in the process of
// firing is cancelled, so a stale goroutine can still call fireDebounce
// after this rearms the deadline. generation disambiguates: each rearm
// bumps it, and fireDebounce ignores a firing whose captured generation no
// longer matches, so every new change event really does produce a fresh
// deadline rather than letting a stale firing start the worker early.
func (m *Manager) scheduleDebounce(job *Job, delay time.Duration) {
	if job.timer != nil {
		job.timer.Stop()
	}
	job.Deadline = time.Now().Add(delay)
	job.State = types.JobState{Kind: types.StateDebouncing, DebounceRemaining: delay}

	job.generation++
	gen := job.generation
	name := job.Name
	job.timer = time.AfterFunc(delay, func() { m.fireDebounce(name, gen) })
}

// fireDebounce runs when a job's debounce timer expires. It spawns a worker
// only if worker_active is false and gen still matches the job's current
// generation, guarding against both a second timer firing while one is
// already running and a stale firing from a timer that was rearmed after it
// had already begun to fire (spec §4.3 "Debouncing → Running ... iff
// worker_active is false").
func (m *Manager) fireDebounce(name string, gen uint64) {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok || job.State.Kind != types.StateDebouncing || job.WorkerActive || job.generation != gen {
		m.mu.Unlock()
		return
	}

	job.WorkerActive = true
	job.ImmediateTrigger = false
	job.State = types.JobState{Kind: types.StateRunning}
	in := snapshotInputs{
		target:    job.Target,
		sources:   append([]string(nil), job.Sources...),
		exclude:   append([]string(nil), job.Exclude...),
		retention: job.Retention,
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runBackup(name, in)
}

// runBackup executes one backup outside the manager mutex (spec §4.3), then
// reacquires the lock via finishBackup to record the result. runID
// correlates the started/terminal event pair for this run (spec §6
// "clients can correlate a BackupStarted event with its outcome").
func (m *Manager) runBackup(name string, in snapshotInputs) {
	defer m.wg.Done()

	runID := uuid.NewString()
	m.bus.Publish(types.Event{Type: types.EventBackupStarted, Set: name, RunID: runID})

	password, err := m.readPassword()
	if err != nil {
		m.finishBackup(name, types.BackupResult{
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     fmt.Sprintf("reading password file: %s", err),
		})
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	if err := m.adapter.Init(ctx, in.target, password, nil); err != nil && !errors.Is(err, engine.ErrAlreadyInitialized) {
		m.finishBackup(name, types.BackupResult{
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Success:   false,
			Error:     fmt.Sprintf("initializing repository: %s", err),
		})
		m.refreshTargetJobs(in.target)
		return
	}

	start := time.Now()
	summary, err := m.adapter.Backup(ctx, in.target, password, nil, engine.BackupOptions{
		Sources:         in.sources,
		ExcludePatterns: in.exclude,
	})

	result := types.BackupResult{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Success = true
		result.SnapshotID = summary.SnapshotID
		result.AddedBytes = summary.AddedBytes
	}

	m.finishBackup(name, result)

	m.refreshTargetJobs(in.target)
	if result.Success {
		if in.retention != nil {
			m.wg.Add(1)
			go m.runAutoPrune(name, in.target, *in.retention)
		}
	}
}

// finishBackup transitions a Running job back to Idle, Error, or a fresh
// Debouncing cycle (if changes arrived during the run), records the
// result, and publishes the terminal event.
func (m *Manager) finishBackup(name string, result types.BackupResult) {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return
	}

	job.LastBackup = &result
	job.WorkerActive = false

	pending := job.PendingChange
	job.PendingChange = false

	switch {
	case pending:
		m.scheduleDebounce(job, job.debounceDuration())
	case result.Success:
		job.State = types.JobState{Kind: types.StateIdle}
	default:
		job.State = types.JobState{Kind: types.StateError}
	}
	m.mu.Unlock()

	if result.Success {
		m.bus.Publish(types.Event{
			Type:         types.EventBackupComplete,
			Set:          name,
			RunID:        result.RunID,
			SnapshotID:   result.SnapshotID,
			AddedBytes:   result.AddedBytes,
			DurationSecs: result.Duration.Seconds(),
		})
	} else {
		m.bus.Publish(types.Event{Type: types.EventBackupFailed, Set: name, RunID: result.RunID, Error: result.Error})
		m.log.Error("jobmanager: backup failed", zap.String("set", name), zap.String("run_id", result.RunID), zap.String("error", result.Error))
	}
}

// runAutoPrune runs after a successful backup when policy is configured.
// Failures are logged and do not affect the backup's own success (spec
// §4.3 "Auto-prune failures log and notify but do not fail the backup").
func (m *Manager) runAutoPrune(name, target string, policy engine.RetentionPolicy) {
	defer m.wg.Done()

	password, err := m.readPassword()
	if err != nil {
		m.log.Error("jobmanager: auto-prune failed to read password file", zap.String("set", name), zap.Error(err))
		return
	}

	reclaimed, err := m.adapter.Prune(m.ctx, target, password, nil, policy)
	if err != nil {
		m.log.Error("jobmanager: auto-prune failed", zap.String("set", name), zap.Error(err))
		return
	}

	m.bus.Publish(types.Event{Type: types.EventPruneComplete, Set: name, ReclaimedBytes: reclaimed})
	m.refreshTargetJobs(target)
}

// refreshTargetJobs re-queries repository stats for every job whose target
// equals target (spec §4.3 repository-sharing: "refreshes snapshot_count
// and total_bytes of every set whose target equals the just-modified
// repository path"). A failed refresh clears the cached summary rather
// than leaving stale values (spec §7).
func (m *Manager) refreshTargetJobs(target string) {
	m.mu.Lock()
	var names []string
	for name, job := range m.jobs {
		if job.Target == target {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	password, err := m.readPassword()
	if err != nil {
		m.log.Warn("jobmanager: failed to read password file for repository refresh", zap.Error(err))
		return
	}

	for _, name := range names {
		summary, err := m.adapter.Stats(m.ctx, target, password, nil)

		m.mu.Lock()
		if job, ok := m.jobs[name]; ok {
			if err != nil {
				job.Repo = nil
				m.log.Warn("jobmanager: repository refresh failed, clearing cached summary", zap.String("set", name), zap.Error(err))
			} else {
				job.Repo = &summary
			}
		}
		m.mu.Unlock()
	}
}

// TriggerBackup is the IPC-facing entry point for Backup{set_name}. It
// shortens the current debounce to zero (spec §4.3 "immediate_trigger"),
// or — if a worker is already running — marks a pending change so a fresh
// cycle begins once it finishes.
func (m *Manager) TriggerBackup(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return ErrUnknownSet
	}

	if job.State.Kind == types.StateRunning {
		job.PendingChange = true
		return nil
	}

	job.ImmediateTrigger = true
	m.scheduleDebounce(job, 0)
	return nil
}

// TriggerBackupAll triggers every configured set, for Backup requests with
// no set_name (spec §6).
func (m *Manager) TriggerBackupAll() (started []string, failed []types.TriggerOutcome) {
	for _, name := range m.setNames() {
		if err := m.TriggerBackup(name); err != nil {
			failed = append(failed, types.TriggerOutcome{Set: name, Error: err.Error()})
			continue
		}
		started = append(started, name)
	}
	return started, failed
}

// TriggerPrune runs a manual forget --prune for name using its effective
// retention policy. Fails with ErrNoRetention if none is configured (spec
// §4.3).
func (m *Manager) TriggerPrune(name string) (uint64, error) {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return 0, ErrUnknownSet
	}
	if job.Retention == nil {
		m.mu.Unlock()
		return 0, ErrNoRetention
	}
	target := job.Target
	policy := *job.Retention
	m.mu.Unlock()

	password, err := m.readPassword()
	if err != nil {
		return 0, fmt.Errorf("jobmanager: failed to read password file: %w", err)
	}

	reclaimed, err := m.adapter.Prune(m.ctx, target, password, nil, policy)
	if err != nil {
		return 0, err
	}

	m.bus.Publish(types.Event{Type: types.EventPruneComplete, Set: name, ReclaimedBytes: reclaimed})
	m.refreshTargetJobs(target)
	return reclaimed, nil
}

// TriggerPruneAll prunes every set that has an effective retention policy,
// for Prune requests with no set_name.
func (m *Manager) TriggerPruneAll() (succeeded []types.PruneSucceeded, failed []types.TriggerOutcome) {
	for _, name := range m.setNames() {
		reclaimed, err := m.TriggerPrune(name)
		if err != nil {
			if errors.Is(err, ErrNoRetention) {
				continue
			}
			failed = append(failed, types.TriggerOutcome{Set: name, Error: err.Error()})
			continue
		}
		succeeded = append(succeeded, types.PruneSucceeded{Set: name, ReclaimedBytes: reclaimed})
	}
	return succeeded, failed
}

// Snapshots lists the snapshots of name's repository.
func (m *Manager) Snapshots(name string, limit int) ([]types.SnapshotInfo, error) {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownSet
	}
	target := job.Target
	m.mu.Unlock()

	password, err := m.readPassword()
	if err != nil {
		return nil, fmt.Errorf("jobmanager: failed to read password file: %w", err)
	}
	return m.adapter.Snapshots(m.ctx, target, password, nil, limit)
}

// Mount spawns (or returns the path of an already-active) mount for name.
// snapshotID, when set, is appended as a restic `/ids/<id>` subpath (spec
// §4.3 "snapshot selection is by subpath").
func (m *Manager) Mount(name, snapshotID string) (string, error) {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return "", ErrUnknownSet
	}
	if job.MountHandle != nil {
		base := m.paths.SetMountpoint(name)
		m.mu.Unlock()
		return subpath(base, snapshotID), nil
	}
	target := job.Target
	m.mu.Unlock()

	mountPath := m.paths.SetMountpoint(name)

	if mounted, err := m.tracker.IsMounted(mountPath); err == nil && mounted {
		m.mu.Lock()
		job.IsMounted = true
		m.mu.Unlock()
		return subpath(mountPath, snapshotID), nil
	}

	if err := os.MkdirAll(mountPath, 0o700); err != nil {
		return "", fmt.Errorf("jobmanager: failed to create mountpoint: %w", err)
	}

	password, err := m.readPassword()
	if err != nil {
		return "", fmt.Errorf("jobmanager: failed to read password file: %w", err)
	}

	handle, err := m.adapter.Mount(target, password, nil, mountPath)
	if err != nil {
		return "", fmt.Errorf("jobmanager: mount failed: %w", err)
	}

	m.mu.Lock()
	job.MountHandle = handle
	job.IsMounted = true
	m.mu.Unlock()

	return subpath(mountPath, snapshotID), nil
}

// Unmount terminates name's mount subprocess, or invokes the platform
// unmount helper when the daemon tracks no handle but the mount table
// shows a mount (e.g. after a restart). Warns rather than refuses when the
// set is currently Running (spec §4.3).
func (m *Manager) Unmount(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSet
	}
	if job.State.Kind == types.StateRunning {
		m.log.Warn("jobmanager: unmounting while a backup is running, repository lock contention may fail it", zap.String("set", name))
	}
	handle := job.MountHandle
	wasMounted := job.IsMounted
	job.MountHandle = nil
	job.IsMounted = false
	m.mu.Unlock()

	if handle != nil {
		return handle.Terminate()
	}
	mountPath := m.paths.SetMountpoint(name)
	if !wasMounted {
		mounted, err := m.tracker.IsMounted(mountPath)
		if err != nil {
			return err
		}
		if !mounted {
			return ErrNotMounted
		}
	}
	return mount.Unmount(mountPath)
}

// Status returns a point-in-time snapshot of every configured set (spec §6
// Status reply). is_mounted reflects the tracked flag directly — it is
// never cleared here even when MountHandle is absent (spec §4.3
// "get_status must not clear is_mounted when the process handle is
// absent"), because dropping stale orphan-mount state is the job of
// startup reconciliation and Unmount, not of a read-only query.
func (m *Manager) Status() []types.SetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.SetStatus, 0, len(m.jobs))
	for name, job := range m.jobs {
		mountPath := ""
		if job.IsMounted {
			mountPath = m.paths.SetMountpoint(name)
		}
		out = append(out, types.SetStatus{
			Name:       name,
			Sources:    job.Sources,
			Target:     job.Target,
			State:      job.currentState(),
			LastBackup: job.LastBackup,
			Repo:       job.Repo,
			IsMounted:  job.IsMounted,
			MountPath:  mountPath,
		})
	}
	return out
}

// Shutdown stops every pending debounce timer, terminates any daemon-owned
// mount subprocesses, and waits for in-flight workers to observe ctx
// cancellation and exit (spec §4.4 "drains in-flight handlers").
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var handles []*engine.MountHandle
	for _, job := range m.jobs {
		if job.timer != nil {
			job.timer.Stop()
		}
		if job.MountHandle != nil {
			handles = append(handles, job.MountHandle)
			job.MountHandle = nil
			job.IsMounted = false
		}
	}
	m.mu.Unlock()

	for _, h := range handles {
		if err := h.Terminate(); err != nil {
			m.log.Warn("jobmanager: failed to terminate mount during shutdown", zap.Error(err))
		}
	}

	m.wg.Wait()
}

// setNames returns the currently configured set names.
func (m *Manager) setNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	return names
}

// readPassword reads and trims the repository password file (spec §6 "all
// commands use a password file passed by path").
func (m *Manager) readPassword() (string, error) {
	raw, err := os.ReadFile(m.paths.PasswordFile)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

// toEngineRetention converts a config.RetentionPolicy to the engine
// package's local type, avoiding a config<->engine import cycle through
// jobmanager (engine deliberately does not import config — see
// internal/engine/adapter.go).
func toEngineRetention(r *config.RetentionPolicy) *engine.RetentionPolicy {
	if r == nil {
		return nil
	}
	return &engine.RetentionPolicy{
		KeepLast:    r.KeepLast,
		KeepDaily:   r.KeepDaily,
		KeepWeekly:  r.KeepWeekly,
		KeepMonthly: r.KeepMonthly,
	}
}

// subpath appends restic's /ids/<snapshot> selector to a mount root when a
// specific snapshot was requested.
func subpath(base, snapshotID string) string {
	if snapshotID == "" {
		return base
	}
	return filepath.Join(base, "ids", snapshotID)
}
