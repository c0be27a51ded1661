package blockdev

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procMounts = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
/dev/sda2 / ext4 rw,relatime 0 0
/dev/sdb1 /media/usb\040stick vfat rw,relatime 0 0

broken-line
`

func TestParseMounts(t *testing.T) {
	mounts, err := parseMounts(strings.NewReader(procMounts))
	require.NoError(t, err)

	assert.Equal(t, []Mount{
		{Device: "sysfs", MountPoint: "/sys", FSType: "sysfs"},
		{Device: "/dev/sda2", MountPoint: "/", FSType: "ext4"},
		{Device: "/dev/sdb1", MountPoint: "/media/usb stick", FSType: "vfat"},
	}, mounts)
}

func TestFindMount(t *testing.T) {
	mounts, err := parseMounts(strings.NewReader(procMounts))
	require.NoError(t, err)

	m, ok := FindMount(mounts, "/media/usb stick/")
	require.True(t, ok)
	assert.Equal(t, "/dev/sdb1", m.Device)

	m, ok = FindMount(mounts, "/dev/sda2")
	require.True(t, ok)
	assert.Equal(t, "/", m.MountPoint)

	_, ok = FindMount(mounts, "/mnt/none")
	assert.False(t, ok)
}
