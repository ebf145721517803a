package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_IsMounted_RootIsAlwaysMounted(t *testing.T) {
	tr := NewTracker()
	mounted, err := tr.IsMounted("/")
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestTracker_IsMounted_UnlikelyPathIsNotMounted(t *testing.T) {
	tr := NewTracker()
	mounted, err := tr.IsMounted("/this/path/should/not/be/a/mountpoint/backutil-test")
	require.NoError(t, err)
	assert.False(t, mounted)
}

func TestTracker_Orphaned_FiltersToMountedOnly(t *testing.T) {
	tr := NewTracker()
	orphans, err := tr.Orphaned([]string{"/", "/this/path/should/not/be/a/mountpoint/backutil-test"})
	require.NoError(t, err)
	assert.Contains(t, orphans, "/")
	assert.NotContains(t, orphans, "/this/path/should/not/be/a/mountpoint/backutil-test")
}

func TestUnmount_NonMountedPathReturnsError(t *testing.T) {
	err := Unmount("/this/path/should/not/be/a/mountpoint/backutil-test")
	assert.Error(t, err)
}
