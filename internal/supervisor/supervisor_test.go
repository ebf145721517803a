package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backutil/backutil/internal/paths"
	"github.com/backutil/backutil/internal/types"
)

func fakeResticScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restic")
	script := "#!/bin/sh\n" + `
case "$1" in
  snapshots) echo '[]' ;;
  stats) echo '{"total_size":0,"snapshots_count":0}' ;;
  *) exit 0 ;;
esac
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func testPaths(t *testing.T) paths.Paths {
	t.Helper()
	dir := t.TempDir()
	pw := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(pw, []byte("hunter2\n"), 0o600))

	config := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(config, []byte(`
[[backup_set]]
name = "docs"
source = "/tmp/does-not-need-to-exist"
target = "/mnt/repo"
`), 0o644))

	return paths.Paths{
		ConfigFile:   config,
		PasswordFile: pw,
		LogFile:      filepath.Join(dir, "backutil.log"),
		SocketFile:   filepath.Join(dir, "backutil.sock"),
		PIDFile:      filepath.Join(dir, "backutil.pid"),
		MountBase:    filepath.Join(dir, "mnt"),
	}
}

func TestSupervisor_AcquireLockRejectsSecondInstance(t *testing.T) {
	p := testPaths(t)

	first := New(p, zap.NewNop(), fakeResticScript(t))
	require.NoError(t, first.AcquireLock())
	defer first.ReleaseLock()

	second := New(p, zap.NewNop(), fakeResticScript(t))
	err := second.AcquireLock()
	require.Error(t, err)
}

func TestSupervisor_Run_ServesIPCAndStopsOnCancel(t *testing.T) {
	p := testPaths(t)
	sup := New(p, zap.NewNop(), fakeResticScript(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(p.SocketFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	nc, err := net.DialTimeout("unix", p.SocketFile, time.Second)
	require.NoError(t, err)

	req, _ := json.Marshal(types.Request{Type: types.ReqStatus})
	_, err = nc.Write(append(req, '\n'))
	require.NoError(t, err)

	scanner := bufio.NewScanner(nc)
	require.True(t, scanner.Scan())
	var frame types.Frame
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &frame))
	var resp types.Response
	require.NoError(t, json.Unmarshal(frame.Body, &resp))
	require.True(t, resp.Ok)
	_ = nc.Close()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
