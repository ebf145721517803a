package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRestic writes an executable shell script standing in for restic and
// returns its path. body is the script's POSIX shell body.
func fakeRestic(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake restic script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "restic")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestAdapter_Init_Success(t *testing.T) {
	restic := fakeRestic(t, `exit 0`)
	a := New(restic)
	err := a.Init(context.Background(), "/tmp/repo", "secret", nil)
	assert.NoError(t, err)
}

func TestAdapter_Init_AlreadyInitialized(t *testing.T) {
	restic := fakeRestic(t, `echo "config file already exists" >&2; exit 1`)
	a := New(restic)
	err := a.Init(context.Background(), "/tmp/repo", "secret", nil)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestAdapter_Backup_ParsesSummary(t *testing.T) {
	restic := fakeRestic(t, `echo '{"message_type":"status"}'
echo '{"message_type":"summary","snapshot_id":"abc123","data_added":1048576,"total_duration":2.5}'
`)
	a := New(restic)
	summary, err := a.Backup(context.Background(), "/tmp/repo", "secret", nil, BackupOptions{Sources: []string{"/home/user"}})
	require.NoError(t, err)
	assert.Equal(t, "abc123", summary.SnapshotID)
	assert.Equal(t, uint64(1048576), summary.AddedBytes)
	assert.Equal(t, 2500*time.Millisecond, summary.Duration)
}

func TestAdapter_Backup_MissingSummaryIsError(t *testing.T) {
	restic := fakeRestic(t, `echo '{"message_type":"status"}'`)
	a := New(restic)
	_, err := a.Backup(context.Background(), "/tmp/repo", "secret", nil, BackupOptions{Sources: []string{"/home/user"}})
	assert.Error(t, err)
}

func TestAdapter_Prune_RefusesEmptyRetention(t *testing.T) {
	a := New("restic")
	_, err := a.Prune(context.Background(), "/tmp/repo", "secret", nil, RetentionPolicy{})
	assert.ErrorIs(t, err, ErrInvalidRetention)
}

func TestAdapter_Prune_ParsesReclaimedBytes(t *testing.T) {
	restic := fakeRestic(t, `echo "will remove 3 snapshots"
echo "total freed: 512 MiB"
`)
	a := New(restic)
	reclaimed, err := a.Prune(context.Background(), "/tmp/repo", "secret", nil, RetentionPolicy{KeepLast: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(512*1<<20), reclaimed)
}

func TestAdapter_Prune_NoReclaimLineReturnsZero(t *testing.T) {
	restic := fakeRestic(t, `echo "nothing to remove"`)
	a := New(restic)
	reclaimed, err := a.Prune(context.Background(), "/tmp/repo", "secret", nil, RetentionPolicy{KeepLast: 5})
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestAdapter_Snapshots_DecodesJSON(t *testing.T) {
	restic := fakeRestic(t, `echo '[{"id":"abc123full","short_id":"abc123","time":"2026-01-01T00:00:00Z","paths":["/home/user"]}]'`)
	a := New(restic)
	snaps, err := a.Snapshots(context.Background(), "/tmp/repo", "secret", nil, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "abc123full", snaps[0].ID)
	assert.Equal(t, "abc123", snaps[0].ShortID)
}

func TestAdapter_Stats_DecodesJSON(t *testing.T) {
	restic := fakeRestic(t, `echo '{"total_size":2048,"snapshots_count":4}'`)
	a := New(restic)
	summary, err := a.Stats(context.Background(), "/tmp/repo", "secret", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), summary.TotalBytes)
	assert.Equal(t, 4, summary.SnapshotCount)
}

func TestAdapter_Backup_CancellationStopsSubprocess(t *testing.T) {
	restic := fakeRestic(t, `trap 'exit 0' TERM
sleep 30 &
wait $!
`)
	a := New(restic)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := a.Backup(ctx, "/tmp/repo", "secret", nil, BackupOptions{Sources: []string{"/home/user"}})
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("backup did not observe cancellation in time")
	}
}

func TestRetentionPolicy_IsEmpty(t *testing.T) {
	assert.True(t, RetentionPolicy{}.IsEmpty())
	assert.False(t, RetentionPolicy{KeepWeekly: 2}.IsEmpty())
}
