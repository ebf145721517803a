// Package supervisor is the daemon's process core: pidfile acquisition,
// wiring the watcher, job manager, and IPC server together under one
// cancellation token, and the config-reload loop (spec §4.5). Signal
// handling and the file log sink are set up by cmd/backutild, which passes
// the resulting context and logger in.
//
// Grounded on arkeep-io-arkeep/agent/cmd/agent/main.go's startup sequence
// (signal.NotifyContext, component construction, goroutine fan-out) and
// other_examples' gastown daemon.go for PID-file exclusive locking via
// gofrs/flock. golang.org/x/sync/errgroup (present in arkeep-io-arkeep's
// server go.mod) replaces bare `go` calls for the daemon's three
// long-running components, so the first one to fail cancels the others
// and Run returns its error.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/backutil/backutil/internal/broadcast"
	"github.com/backutil/backutil/internal/config"
	"github.com/backutil/backutil/internal/engine"
	"github.com/backutil/backutil/internal/ipc"
	"github.com/backutil/backutil/internal/jobmanager"
	"github.com/backutil/backutil/internal/mount"
	"github.com/backutil/backutil/internal/paths"
	"github.com/backutil/backutil/internal/watcher"
)

// configRetries and configRetryDelay bound the daemon's tolerance for
// reading a config file mid-write by an external atomic save-and-rename
// (spec §4.5, §9 "atomic config save").
const (
	configRetries    = 3
	configRetryDelay = 2 * time.Second
)

// Supervisor owns the daemon's lifetime: it acquires the PID lock, builds
// every component, and runs them under a single errgroup until ctx is
// cancelled.
type Supervisor struct {
	Paths      paths.Paths
	Log        *zap.Logger
	ResticPath string

	lock *flock.Flock
}

// New creates a Supervisor for the given paths and logger.
func New(p paths.Paths, log *zap.Logger, resticPath string) *Supervisor {
	return &Supervisor{Paths: p, Log: log, ResticPath: resticPath}
}

// AcquireLock takes an exclusive, non-blocking lock on the PID file,
// refusing to start a second daemon instance (spec §1 Non-goals: "does not
// arbitrate between multiple concurrent daemon instances (a PID file
// prevents this)").
func (s *Supervisor) AcquireLock() error {
	s.lock = flock.New(s.Paths.PIDFile + ".lock")
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("supervisor: failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("supervisor: another backutil daemon instance is already running")
	}

	if err := os.WriteFile(s.Paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("supervisor: failed to write PID file: %w", err)
	}
	return nil
}

// ReleaseLock removes the PID file and releases the lock. Safe to call
// even if AcquireLock was never called.
func (s *Supervisor) ReleaseLock() {
	_ = os.Remove(s.Paths.PIDFile)
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// Run builds the watcher, job manager, and IPC server from an initial
// config load, then runs all three under ctx until it is cancelled (by a
// signal the caller wired into ctx, or an internal error), draining
// gracefully before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("supervisor: failed to resolve home directory: %w", err)
	}

	root, err := s.loadConfigWithRetry(home)
	if err != nil {
		return fmt.Errorf("supervisor: failed to load configuration: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	adapter := engine.New(s.ResticPath)
	bus := broadcast.New()
	tracker := mount.NewTracker()
	jobs := jobmanager.New(runCtx, s.Log, adapter, bus, tracker, s.Paths)
	jobs.Reconcile(root)

	w, err := watcher.New(s.Log)
	if err != nil {
		return fmt.Errorf("supervisor: failed to create file watcher: %w", err)
	}
	if err := w.Reload(watchedSetsFrom(root)); err != nil {
		s.Log.Warn("supervisor: some watch roots could not be registered", zap.Error(err))
	}

	srv := ipc.New(s.Paths.SocketFile, s.Log, jobs, bus)

	group, gctx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		w.Run()
		return nil
	})

	// w.Run's loop only exits when its fsnotify watcher is closed; tie that
	// to gctx so cancellation (signal or IPC Shutdown) actually unblocks it.
	group.Go(func() error {
		<-gctx.Done()
		return w.Close()
	})

	group.Go(func() error {
		for {
			select {
			case setName, ok := <-w.Changes:
				if !ok {
					return nil
				}
				jobs.OnChange(setName)
			case err := <-w.Errors:
				s.Log.Warn("supervisor: watcher error", zap.Error(err))
			case <-gctx.Done():
				return nil
			}
		}
	})

	group.Go(func() error {
		return srv.Serve(gctx)
	})

	reloadCh := make(chan struct{}, 1)
	srv.OnReloadRequested(func() {
		select {
		case reloadCh <- struct{}{}:
		default:
		}
	})

	// A client-requested Shutdown cancels the same runCtx a SIGTERM would,
	// so every component observes it through the one gctx.Done() path.
	srv.OnShutdownRequested(cancelRun)

	group.Go(func() error {
		configWatch, err := watcher.New(s.Log)
		if err != nil {
			return fmt.Errorf("supervisor: failed to watch config file: %w", err)
		}
		defer configWatch.Close()
		if err := configWatch.Reload([]watcher.Watched{{SetName: "__config__", Roots: []string{s.Paths.ConfigFile}}}); err != nil {
			s.Log.Warn("supervisor: failed to watch config file for changes", zap.Error(err))
		}
		go configWatch.Run()

		for {
			select {
			case <-configWatch.Changes:
				s.reload(jobs, w, home)
			case <-reloadCh:
				s.reload(jobs, w, home)
			case <-gctx.Done():
				return nil
			}
		}
	})

	err = group.Wait()

	jobs.Shutdown()

	return err
}

// reload re-reads the config file with retry and, on success, reconciles
// both the job manager and the watcher against it (spec §4.5).
func (s *Supervisor) reload(jobs *jobmanager.Manager, w *watcher.Watcher, home string) {
	root, err := s.loadConfigWithRetry(home)
	if err != nil {
		s.Log.Error("supervisor: config reload failed, keeping last-known-good configuration", zap.Error(err))
		return
	}
	jobs.Reconcile(root)
	if err := w.Reload(watchedSetsFrom(root)); err != nil {
		s.Log.Warn("supervisor: some watch roots could not be registered after reload", zap.Error(err))
	}
	s.Log.Info("supervisor: configuration reloaded", zap.Int("sets", len(root.BackupSets)))
}

// loadConfigWithRetry absorbs a partial read from an external atomic
// save-and-rename by retrying up to configRetries times (spec §9).
func (s *Supervisor) loadConfigWithRetry(home string) (*config.Root, error) {
	var lastErr error
	for attempt := 0; attempt < configRetries; attempt++ {
		root, err := config.Load(s.Paths.ConfigFile, home)
		if err == nil {
			return root, nil
		}
		lastErr = err
		if attempt < configRetries-1 {
			time.Sleep(configRetryDelay)
		}
	}
	return nil, lastErr
}

// watchedSetsFrom converts a loaded config into the watcher's Watched
// descriptors.
func watchedSetsFrom(root *config.Root) []watcher.Watched {
	out := make([]watcher.Watched, 0, len(root.BackupSets))
	for _, set := range root.BackupSets {
		out = append(out, watcher.Watched{
			SetName:  set.Name,
			Roots:    set.ResolvedSources(),
			Excludes: set.Exclude,
		})
	}
	return out
}
