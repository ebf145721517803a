// Package paths resolves the on-disk and on-socket locations the daemon
// uses: config file, repository password file, Unix socket, PID file, log
// file, and the mount base directory. Deliberately stdlib-only
// (os.Getenv + os.UserHomeDir) rather than an XDG base-directory
// dependency — see DESIGN.md.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds every filesystem/socket location the daemon resolves at
// startup. Construct with Resolve.
type Paths struct {
	ConfigFile string
	PasswordFile string
	LogFile    string
	SocketFile string
	PIDFile    string
	MountBase  string
}

// Resolve computes all daemon paths for the current user. configOverride,
// when non-empty, takes precedence over $BACKUTIL_CONFIG and the default
// location (matching spec §6's "overridable via BACKUTIL_CONFIG").
func Resolve(configOverride string) (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("paths: failed to resolve home directory: %w", err)
	}

	configDir := xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"), "backutil")
	dataDir := xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"), "backutil")

	configFile := configOverride
	if configFile == "" {
		configFile = os.Getenv("BACKUTIL_CONFIG")
	}
	if configFile == "" {
		configFile = filepath.Join(configDir, "config.toml")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	var socketFile, pidFile string
	if runtimeDir != "" {
		socketFile = filepath.Join(runtimeDir, "backutil.sock")
		pidFile = filepath.Join(runtimeDir, "backutil.pid")
	} else {
		uid := os.Getuid()
		socketFile = filepath.Join(os.TempDir(), fmt.Sprintf("backutil-%d.sock", uid))
		pidFile = filepath.Join(os.TempDir(), fmt.Sprintf("backutil-%d.pid", uid))
	}

	return Paths{
		ConfigFile:   configFile,
		PasswordFile: filepath.Join(configDir, ".repo_password"),
		LogFile:      filepath.Join(dataDir, "backutil.log"),
		SocketFile:   socketFile,
		PIDFile:      pidFile,
		MountBase:    filepath.Join(dataDir, "mnt"),
	}, nil
}

// SetMountpoint returns the mount directory for a single backup set,
// rooted under MountBase per spec §6.
func (p Paths) SetMountpoint(setName string) string {
	return filepath.Join(p.MountBase, setName)
}

// xdgDir returns $envVar/<suffix> if envVar is set, else fallback/<suffix>.
func xdgDir(envVar, fallback, suffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, suffix)
	}
	return filepath.Join(fallback, suffix)
}

// ExpandTilde expands a leading "~" in p to the user's home directory, as
// required by the configuration model's path fields (spec §3).
func ExpandTilde(p string, home string) string {
	if p == "~" {
		return home
	}
	if len(p) >= 2 && p[0] == '~' && p[1] == '/' {
		return filepath.Join(home, p[2:])
	}
	return p
}
