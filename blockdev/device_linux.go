//go:build linux

package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"dskgeom/diskgeom"
)

func sectorSize(f *os.File) (uint32, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, fmt.Errorf("BLKSSZGET: %w", err)
	}
	return uint32(size), nil
}

func deviceSize(f *os.File) (uint64, error) {
	var size uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); errno != 0 {
		return 0, fmt.Errorf("BLKGETSIZE64: %w", errno)
	}
	return size, nil
}

// osPartitions reads the partition list the kernel keeps in sysfs. Devices
// without a sysfs block entry (partitions, device-mapper nodes under other
// names) fall back to the on-disk table.
func (h *handle) osPartitions(bytesPerSector uint32) ([]diskgeom.Extent, error) {
	path, err := filepath.EvalSymlinks(h.name)
	if err != nil {
		path = h.name
	}
	return SysfsPartitions(h.dev.sysfsRoot(), filepath.Base(path), bytesPerSector)
}
