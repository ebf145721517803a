package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_ConfigOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("BACKUTIL_CONFIG", "/from/env/config.toml")
	p, err := Resolve("/from/flag/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag/config.toml", p.ConfigFile)
}

func TestResolve_EnvVarUsedWhenNoOverride(t *testing.T) {
	t.Setenv("BACKUTIL_CONFIG", "/from/env/config.toml")
	p, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env/config.toml", p.ConfigFile)
}

func TestResolve_DefaultsUnderXDGConfigHome(t *testing.T) {
	t.Setenv("BACKUTIL_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	p, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "/xdg/config/backutil/config.toml", p.ConfigFile)
}

func TestResolve_SocketUsesXDGRuntimeDirWhenSet(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	p, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "/run/user/1000/backutil.sock", p.SocketFile)
	assert.Equal(t, "/run/user/1000/backutil.pid", p.PIDFile)
}

func TestResolve_SocketFallsBackToTempDirWithoutRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	p, err := Resolve("")
	require.NoError(t, err)
	assert.Contains(t, p.SocketFile, "backutil-")
	assert.Contains(t, p.SocketFile, ".sock")
}

func TestSetMountpoint(t *testing.T) {
	p := Paths{MountBase: "/data/mnt"}
	assert.Equal(t, "/data/mnt/docs", p.SetMountpoint("docs"))
}

func TestExpandTilde(t *testing.T) {
	home := "/home/tester"

	assert.Equal(t, home, ExpandTilde("~", home))
	assert.Equal(t, "/home/tester/Documents", ExpandTilde("~/Documents", home))
	assert.Equal(t, "/absolute/path", ExpandTilde("/absolute/path", home))
	assert.Equal(t, "relative/path", ExpandTilde("relative/path", home))
	assert.Equal(t, "~user/path", ExpandTilde("~user/path", home))
}
