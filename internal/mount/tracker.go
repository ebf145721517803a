// Package mount tracks which backup sets currently have an active
// `restic mount` FUSE mountpoint, and reconciles that view against the
// kernel's actual mount table at startup to detect mounts orphaned by a
// previous daemon crash (spec §4.3 "mount tracking").
//
// Grounded on arkeep-io-arkeep's use of github.com/shirou/gopsutil/v4 for
// host inspection (there: agent heartbeat metrics). This package repurposes
// the same dependency for a different concern — disk.Partitions gives the
// kernel's mount table, which is the only reliable way to notice a mount
// that survived a daemon restart.
package mount

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// Tracker answers whether a given path is currently mounted, by consulting
// the live kernel mount table rather than trusting in-memory daemon state —
// daemon state is lost across a crash, the mount table is not.
type Tracker struct{}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// IsMounted reports whether path appears as a mountpoint in the current
// mount table.
func (t *Tracker) IsMounted(path string) (bool, error) {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return false, fmt.Errorf("mount: failed to read mount table: %w", err)
	}
	for _, p := range partitions {
		if p.Mountpoint == path {
			return true, nil
		}
	}
	return false, nil
}

// Orphaned returns the subset of candidatePaths that are currently mounted
// according to the kernel, used at startup to detect FUSE mounts left
// behind by a crashed prior daemon instance (spec §4.3).
func (t *Tracker) Orphaned(candidatePaths []string) ([]string, error) {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return nil, fmt.Errorf("mount: failed to read mount table: %w", err)
	}

	mounted := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		mounted[p.Mountpoint] = struct{}{}
	}

	var orphans []string
	for _, path := range candidatePaths {
		if _, ok := mounted[path]; ok {
			orphans = append(orphans, path)
		}
	}
	return orphans, nil
}

// Unmount invokes fusermount -u (falling back to umount) on path. restic
// mount is a FUSE filesystem; fusermount is the conventional unprivileged
// way to tear one down without killing the serving process directly.
func Unmount(path string) error {
	if err := exec.Command("fusermount", "-u", path).Run(); err == nil {
		return nil
	}
	if out, err := exec.Command("umount", path).CombinedOutput(); err != nil {
		return fmt.Errorf("mount: failed to unmount %s: %w\n%s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}
