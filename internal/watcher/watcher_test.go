package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(zap.NewNop())
	require.NoError(t, err)
	go w.Run()
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitForChange(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-changes:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change notification on %q", want)
		}
	}
}

func TestWatcher_DetectsFileChangeUnderRoot(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)

	require.NoError(t, w.Reload([]Watched{{SetName: "docs", Roots: []string{root}}}))

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), []byte("hi"), 0o644))

	waitForChange(t, w.Changes, "docs")
}

func TestWatcher_ExcludesMatchingBasename(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)

	require.NoError(t, w.Reload([]Watched{{SetName: "docs", Roots: []string{root}, Excludes: []string{"*.tmp"}}}))

	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))

	select {
	case got := <-w.Changes:
		t.Fatalf("expected no change notification, got %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_WatchesNewSubdirectoriesAutomatically(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)

	require.NoError(t, w.Reload([]Watched{{SetName: "docs", Roots: []string{root}}}))

	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	select {
	case got := <-w.Changes:
		t.Fatalf("expected directory creation to be discarded, got change for %q", got)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(sub, "file.txt"), []byte("x"), 0o644))
	waitForChange(t, w.Changes, "docs")
}

func TestWatcher_DiscardsDirectoryDeletion(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)

	require.NoError(t, w.Reload([]Watched{{SetName: "docs", Roots: []string{root}}}))

	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	select {
	case got := <-w.Changes:
		t.Fatalf("expected directory creation to be discarded, got change for %q", got)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.Remove(sub))
	select {
	case got := <-w.Changes:
		t.Fatalf("expected directory deletion to be discarded, got change for %q", got)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "still-watched.txt"), []byte("x"), 0o644))
	waitForChange(t, w.Changes, "docs")
}

func TestWatcher_CanWatchASingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("a = 1"), 0o644))

	w := newTestWatcher(t)
	require.NoError(t, w.Reload([]Watched{{SetName: "__config__", Roots: []string{file}}}))

	require.NoError(t, os.WriteFile(file, []byte("a = 2"), 0o644))
	waitForChange(t, w.Changes, "__config__")
}

func TestWatcher_ReloadReplacesPriorSets(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	w := newTestWatcher(t)

	require.NoError(t, w.Reload([]Watched{{SetName: "a", Roots: []string{rootA}}}))
	require.NoError(t, w.Reload([]Watched{{SetName: "b", Roots: []string{rootB}}}))

	require.NoError(t, os.WriteFile(filepath.Join(rootA, "ignored.txt"), []byte("x"), 0o644))
	select {
	case got := <-w.Changes:
		t.Fatalf("expected no change from unwatched rootA, got %q", got)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(rootB, "seen.txt"), []byte("x"), 0o644))
	waitForChange(t, w.Changes, "b")
}

func TestWatcher_ReloadOnNonExistentRootDoesNotError(t *testing.T) {
	w := newTestWatcher(t)
	err := w.Reload([]Watched{{SetName: "gone", Roots: []string{filepath.Join(t.TempDir(), "does-not-exist")}}})
	assert.NoError(t, err)
}

func TestMatch(t *testing.T) {
	assert.True(t, match("*.tmp", "file.tmp"))
	assert.False(t, match("*.tmp", "file.txt"))
}
