package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dskgeom/diskgeom"
)

// fakeSysfs lays out <root>/block/<disk>/<part>/{start,size} with values in
// 512-byte units.
func fakeSysfs(t *testing.T, disk string, parts map[string][2]string) string {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "block", disk)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "queue"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "holders"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "size"), []byte("8388608\n"), 0o644))

	for name, v := range parts {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(p, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p, "start"), []byte(v[0]+"\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(p, "size"), []byte(v[1]+"\n"), 0o644))
	}

	return root
}

func TestSysfsPartitions(t *testing.T) {
	root := fakeSysfs(t, "sda", map[string][2]string{
		"sda1": {"2048", "1048576"},
		"sda2": {"1050624", "2097152"},
	})

	extents, err := SysfsPartitions(root, "sda", 512)
	require.NoError(t, err)

	assert.ElementsMatch(t, []diskgeom.Extent{
		{Start: 2048, End: 1050623, Label: "sda1"},
		{Start: 1050624, End: 3147775, Label: "sda2"},
	}, extents)
}

func TestSysfsPartitionsConvertsUnits(t *testing.T) {
	root := fakeSysfs(t, "nvme0n1", map[string][2]string{
		"nvme0n1p1": {"2048", "8192"},
	})

	extents, err := SysfsPartitions(root, "nvme0n1", 4096)
	require.NoError(t, err)

	assert.Equal(t, []diskgeom.Extent{{Start: 256, End: 1279, Label: "nvme0n1p1"}}, extents)
}

func TestSysfsPartitionsSkipsEmpty(t *testing.T) {
	root := fakeSysfs(t, "mmcblk0", map[string][2]string{
		"mmcblk0p1": {"8192", "0"},
		"mmcblk0p2": {"16384", "16384"},
	})

	extents, err := SysfsPartitions(root, "mmcblk0", 512)
	require.NoError(t, err)

	assert.Equal(t, []diskgeom.Extent{{Start: 16384, End: 32767, Label: "mmcblk0p2"}}, extents)
}

func TestSysfsPartitionsMissingDevice(t *testing.T) {
	_, err := SysfsPartitions(t.TempDir(), "sdz", 512)
	assert.ErrorIs(t, err, errNoOSPartitions)
}

func TestSysfsPartitionsBadValue(t *testing.T) {
	root := fakeSysfs(t, "sdb", map[string][2]string{
		"sdb1": {"not-a-number", "10"},
	})

	_, err := SysfsPartitions(root, "sdb", 512)
	assert.Error(t, err)
}

func TestIsPartitionOf(t *testing.T) {
	for _, tt := range []struct {
		disk, name string
		want       bool
	}{
		{"sda", "sda1", true},
		{"sda", "sda15", true},
		{"sda", "sda", false},
		{"sda", "sdb1", false},
		{"sda", "queue", false},
		{"nvme0n1", "nvme0n1p3", true},
		{"nvme0n1", "nvme0n13", false},
		{"mmcblk0", "mmcblk0p1", true},
		{"mmcblk0", "mmcblk0boot0", false},
		{"", "1", false},
	} {
		assert.Equal(t, tt.want, IsPartitionOf(tt.disk, tt.name), "%s/%s", tt.disk, tt.name)
	}
}
