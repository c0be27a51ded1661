// Package blockdev implements diskgeom.Backend on top of operating system
// block devices and raw disk image files.
//
// Block devices are queried with the native ioctls of each platform
// (BLKSSZGET/BLKGETSIZE64 on Linux, DKIOCGETBLOCKSIZE/DKIOCGETBLOCKCOUNT on
// macOS, IOCTL_DISK_GET_DRIVE_GEOMETRY_EX on Windows). Partitions come from
// sysfs on Linux, from the drive layout ioctl on Windows and from the on-disk
// MBR or GPT everywhere else. Regular files are treated as disk images.
package blockdev

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"dskgeom/diskgeom"
)

// DefaultSectorSize is the sector size assumed for image files.
const DefaultSectorSize = 512

// Device is a diskgeom.Backend for block devices and image files.
// The zero value is ready to use.
type Device struct {
	// SectorSize is reported for regular files, which have no native
	// sector size. Zero means DefaultSectorSize.
	SectorSize uint32

	// Table makes RawPartitions decode the MBR or GPT found on the device
	// instead of asking the operating system.
	Table bool

	// SysfsRoot is where sysfs is mounted. Empty means /sys.
	SysfsRoot string

	Log logrus.FieldLogger
}

var _ diskgeom.Backend = (*Device)(nil)

func (d *Device) log() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

func (d *Device) imageSectorSize() uint32 {
	if d.SectorSize == 0 {
		return DefaultSectorSize
	}
	return d.SectorSize
}

func (d *Device) sysfsRoot() string {
	if d.SysfsRoot == "" {
		return "/sys"
	}
	return d.SysfsRoot
}

// Open implements diskgeom.Backend.
func (d *Device) Open(device string, mode diskgeom.OpenMode) (diskgeom.Handle, error) {
	if device == "" {
		return nil, errors.New("empty device path")
	}

	f, err := openFile(device, mode)
	if err != nil {
		return nil, err
	}

	h := &handle{
		dev:     d,
		name:    device,
		f:       f,
		regular: isRegular(f, device),
	}

	d.log().WithFields(logrus.Fields{
		"device":  device,
		"mode":    mode,
		"regular": h.regular,
	}).Debug("device opened")

	return h, nil
}

// handle is one open device or image file.
type handle struct {
	dev     *Device
	name    string
	f       *os.File
	regular bool
}

func (h *handle) BytesPerSector() (uint32, error) {
	if h.regular {
		return h.dev.imageSectorSize(), nil
	}
	return sectorSize(h.f)
}

func (h *handle) DiskSize() (uint64, error) {
	if h.regular {
		st, err := h.f.Stat()
		if err != nil {
			return 0, err
		}
		return uint64(st.Size()), nil
	}
	return deviceSize(h.f)
}

// RawPartitions returns the partitions of the device in units of
// bytesPerSector. Entries never overlap and lie inside the device.
func (h *handle) RawPartitions(bytesPerSector uint32) ([]diskgeom.Extent, error) {
	if h.regular || h.dev.Table {
		return ReadTable(h.f, bytesPerSector)
	}

	extents, err := h.osPartitions(bytesPerSector)
	if errors.Is(err, errNoOSPartitions) {
		h.dev.log().WithField("device", h.name).Debug("no partition list from the system, decoding the partition table")
		return ReadTable(h.f, bytesPerSector)
	}
	return extents, err
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off)
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	return h.f.WriteAt(p, off)
}

func (h *handle) Close() error {
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", h.name, err)
	}
	return nil
}

// errNoOSPartitions means the platform has no partition list for the
// device and the on-disk table must be decoded instead.
var errNoOSPartitions = errors.New("no partition list available from the operating system")
