package blockdev

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dskgeom/diskgeom"
)

// sysfs reports partition start and size in 512-byte units regardless of
// the logical sector size of the device.
const sysfsSectorSize = 512

// SysfsPartitions lists the partitions of the block device name (for example
// "sda" or "nvme0n1") from <root>/block/<name>/<part>/{start,size}. Extents
// are converted to units of bytesPerSector.
func SysfsPartitions(root, name string, bytesPerSector uint32) ([]diskgeom.Extent, error) {
	if bytesPerSector == 0 {
		return nil, errors.New("sector size is zero")
	}

	dir := filepath.Join(root, "block", name)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoOSPartitions
	}
	if err != nil {
		return nil, err
	}

	var out []diskgeom.Extent
	for _, e := range entries {
		if !IsPartitionOf(name, e.Name()) {
			continue
		}
		start, err := readSysfsUint(filepath.Join(dir, e.Name(), "start"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		size, err := readSysfsUint(filepath.Join(dir, e.Name(), "size"))
		if err != nil {
			return nil, err
		}

		first := start * sysfsSectorSize / uint64(bytesPerSector)
		sectors := size * sysfsSectorSize / uint64(bytesPerSector)
		if sectors == 0 {
			continue
		}
		out = append(out, diskgeom.Extent{Start: first, End: first + sectors - 1, Label: e.Name()})
	}
	return out, nil
}

func readSysfsUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// IsPartitionOf reports whether name is the kernel name of a partition of disk.
func IsPartitionOf(disk, name string) bool {
	rest, ok := strings.CutPrefix(name, disk)
	if !ok || disk == "" {
		return false
	}
	if isDigit(disk[len(disk)-1]) {
		rest, ok = strings.CutPrefix(rest, "p")
		if !ok {
			return false
		}
	}
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if !isDigit(rest[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
