// Package watcher wraps fsnotify with recursive directory registration and
// glob-based exclusion, and coalesces raw filesystem events down to a single
// token per backup set so the job manager never sees event bursts (spec
// §4.2). Structured directly from fsnotify's own documented usage shape
// (Add every directory; recurse into new directories as they appear); see
// DESIGN.md.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watched is one backup set's watch configuration: the root directories to
// recurse into and the glob patterns excluded from triggering a rebuild.
type Watched struct {
	SetName  string
	Roots    []string
	Excludes []string
}

// Watcher recursively watches every configured set's source roots and
// forwards the owning set name on Changes whenever a non-excluded path
// changes. One fsnotify.Watcher backs all sets; set membership is resolved
// per event.
type Watcher struct {
	log *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.RWMutex
	sets    map[string]Watched
	byRoot  map[string]string // watched directory -> owning set name

	Changes chan string
	Errors  chan error
}

// New creates a Watcher with no sets registered. Call Reload to populate it.
func New(log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		log:     log,
		fsw:     fsw,
		sets:    make(map[string]Watched),
		byRoot:  make(map[string]string),
		Changes: make(chan string, 64),
		Errors:  make(chan error, 16),
	}, nil
}

// Run consumes fsnotify events until fsw is closed, forwarding coalesced set
// names on Changes. Intended to run in its own goroutine under an errgroup
// (spec §4.5).
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.Changes)
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			select {
			case w.Errors <- err:
			default:
				w.log.Warn("watcher: dropped fsnotify error, consumer too slow", zap.Error(err))
			}
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Reload replaces the full set of watched roots/excludes with sets,
// unwatching any directory that no longer belongs to a set and watching any
// new ones. Used both at startup and on config reload (spec §4.5).
func (w *Watcher) Reload(sets []Watched) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for root := range w.byRoot {
		_ = w.fsw.Remove(root)
	}
	w.byRoot = make(map[string]string)
	w.sets = make(map[string]Watched)

	for _, s := range sets {
		w.sets[s.SetName] = s
		for _, root := range s.Roots {
			if err := w.addRecursive(root, s.SetName); err != nil {
				return fmt.Errorf("watcher: set %q: %w", s.SetName, err)
			}
		}
	}
	return nil
}

// addRecursive watches root. When root is a regular file (e.g. the
// supervisor's config-file watch) it is added directly; fsnotify supports
// watching individual files as well as directories. Otherwise it walks the
// directory tree and calls fsnotify.Add on every directory, skipping
// anything excluded for owner.
func (w *Watcher) addRecursive(root, owner string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			w.log.Warn("watcher: watch root does not exist, skipping", zap.String("set", owner), zap.String("path", root))
			return nil
		}
		return err
	}
	if !info.IsDir() {
		if err := w.fsw.Add(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		w.byRoot[root] = owner
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcluded(owner, root, path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.byRoot[path] = owner
		return nil
	})
}

// handleEvent resolves the owning set for ev.Name, checks exclusion, and
// either forwards a coalesced token or — for directory-only events —
// extends the watch (on creation) or retires it (on removal) without
// forwarding. Directory creation/deletion is discarded; only leaf file
// events are forwarded (spec §4.2).
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.mu.RLock()
	owner, known := w.resolveOwner(ev.Name)
	excluded := true
	if known {
		if set, ok := w.sets[owner]; ok {
			root := w.rootFor(set, ev.Name)
			excluded = w.isExcluded(owner, root, ev.Name)
		} else {
			known = false
		}
	}
	w.mu.RUnlock()
	if !known || excluded {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			_ = w.addRecursive(ev.Name, owner)
			w.mu.Unlock()
			return
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		_, wasDir := w.byRoot[ev.Name]
		if wasDir {
			delete(w.byRoot, ev.Name)
			_ = w.fsw.Remove(ev.Name)
		}
		w.mu.Unlock()
		if wasDir {
			return
		}
	}

	select {
	case w.Changes <- owner:
	default:
		w.log.Warn("watcher: dropped change notification, consumer too slow", zap.String("set", owner))
	}
}

// resolveOwner finds which set owns path by walking up its watched parent
// directories — fsnotify events carry the changed entry's path, which may
// be a file inside (not itself) a watched directory.
func (w *Watcher) resolveOwner(path string) (string, bool) {
	if owner, ok := w.byRoot[path]; ok {
		return owner, true
	}
	dir := filepath.Dir(path)
	for {
		if owner, ok := w.byRoot[dir]; ok {
			return owner, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// rootFor returns the configured root containing path, for relative-exclude
// matching.
func (w *Watcher) rootFor(set Watched, path string) string {
	for _, root := range set.Roots {
		if strings.HasPrefix(path, root) {
			return root
		}
	}
	return ""
}

// isExcluded matches path against owner's exclude globs three ways: against
// the path relative to root, the absolute path, and the basename (spec
// §4.2 "exclusion patterns may match a relative path, absolute path, or
// basename").
func (w *Watcher) isExcluded(owner, root, path string) bool {
	set, ok := w.sets[owner]
	if !ok {
		return false
	}

	base := filepath.Base(path)
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}

	for _, pattern := range set.Excludes {
		if match(pattern, base) || match(pattern, rel) || match(pattern, path) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}
