//go:build darwin

package blockdev

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"dskgeom/diskgeom"
)

const (
	dkiocGetBlockSize  = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // _IOR('d', 25, uint64)
)

func sectorSize(f *os.File) (uint32, error) {
	var size uint32
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), dkiocGetBlockSize, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, fmt.Errorf("DKIOCGETBLOCKSIZE: %w", errno)
	}
	return size, nil
}

func deviceSize(f *os.File) (uint64, error) {
	blockSize, err := sectorSize(f)
	if err != nil {
		return 0, err
	}

	var blockCount uint64
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), dkiocGetBlockCount, uintptr(unsafe.Pointer(&blockCount)))
	if errno != 0 {
		return 0, fmt.Errorf("DKIOCGETBLOCKCOUNT: %w", errno)
	}

	return uint64(blockSize) * blockCount, nil
}

func (h *handle) osPartitions(uint32) ([]diskgeom.Extent, error) {
	return nil, errNoOSPartitions
}
