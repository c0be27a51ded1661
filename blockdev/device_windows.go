//go:build windows

package blockdev

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"github.com/diskfs/go-diskfs/partition/mbr"
	"golang.org/x/sys/windows"

	"dskgeom/diskgeom"
)

const (
	ioctlDiskGetDriveGeometryEx  = 0x000700A0
	ioctlDiskGetDriveLayoutEx    = 0x00070050
	ioctlStorageGetDeviceNumber  = 0x002D1080
	fileFlagWriteThrough         = 0x80000000
	partitionStyleMBR            = 0
	partitionStyleGPT            = 1
	maxLayoutPartitions          = 128
	gptNameOffset                = 40
	gptNameLength                = 36
	devicePathPrefix             = `\\.\`
	physicalDriveFormat          = `\\.\PhysicalDrive%d`
	driveLetterDevicePathMinimum = len(devicePathPrefix) + 2
)

type storageDeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber uint32
}

// diskGeometryEx is DISK_GEOMETRY_EX followed by room for the variable
// detection and partition information the driver may append.
type diskGeometryEx struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
	DiskSize          int64
	Data              [256]byte
}

// partitionInformationEx is PARTITION_INFORMATION_EX. Info holds the
// PARTITION_INFORMATION_MBR or PARTITION_INFORMATION_GPT union.
type partitionInformationEx struct {
	PartitionStyle     uint32
	StartingOffset     int64
	PartitionLength    int64
	PartitionNumber    uint32
	RewritePartition   byte
	IsServicePartition byte
	_                  [2]byte
	Info               [112]byte
}

type driveLayoutInformationEx struct {
	PartitionStyle uint32
	PartitionCount uint32
	Info           [40]byte
	PartitionEntry [maxLayoutPartitions]partitionInformationEx
}

// normalizeDevicePath maps \\.\A: to \\.\PhysicalDriveN if possible.
// If mapping fails or p is not a drive-letter path, p is returned unchanged.
func normalizeDevicePath(p string) string {
	if len(p) < driveLetterDevicePathMinimum || !strings.HasPrefix(p, devicePathPrefix) || p[5] != ':' {
		return p
	}
	letter := strings.ToUpper(p[4:5])
	if letter < "A" || letter > "Z" {
		return p
	}

	vol, err := windows.UTF16PtrFromString(devicePathPrefix + letter + ":")
	if err != nil {
		return p
	}
	h, err := windows.CreateFile(vol, 0, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return p
	}
	defer windows.CloseHandle(h)

	var out storageDeviceNumber
	var returned uint32
	err = windows.DeviceIoControl(h, ioctlStorageGetDeviceNumber, nil, 0,
		(*byte)(unsafe.Pointer(&out)), uint32(unsafe.Sizeof(out)), &returned, nil)
	if err != nil {
		return p
	}
	return fmt.Sprintf(physicalDriveFormat, out.DeviceNumber)
}

// openFile opens devicePath for raw access. Writes go straight to the disk.
func openFile(devicePath string, mode diskgeom.OpenMode) (*os.File, error) {
	devicePath = normalizeDevicePath(devicePath)

	access := uint32(windows.GENERIC_READ)
	var flags uint32
	if mode == diskgeom.ReadWrite {
		access |= windows.GENERIC_WRITE
		flags = fileFlagWriteThrough
	}

	name, err := windows.UTF16PtrFromString(devicePath)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: devicePath, Err: err}
	}
	handle, err := windows.CreateFile(name, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, flags, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: devicePath, Err: err}
	}

	file := os.NewFile(uintptr(handle), devicePath)
	if file == nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("cannot create file from handle for %s", devicePath)
	}
	return file, nil
}

func isRegular(_ *os.File, path string) bool {
	return !strings.HasPrefix(path, devicePathPrefix)
}

func driveGeometry(f *os.File) (*diskGeometryEx, error) {
	var g diskGeometryEx
	var returned uint32
	err := windows.DeviceIoControl(windows.Handle(f.Fd()), ioctlDiskGetDriveGeometryEx, nil, 0,
		(*byte)(unsafe.Pointer(&g)), uint32(unsafe.Sizeof(g)), &returned, nil)
	if err != nil {
		return nil, fmt.Errorf("IOCTL_DISK_GET_DRIVE_GEOMETRY_EX: %w", err)
	}
	return &g, nil
}

func sectorSize(f *os.File) (uint32, error) {
	g, err := driveGeometry(f)
	if err != nil {
		return 0, err
	}
	return g.BytesPerSector, nil
}

func deviceSize(f *os.File) (uint64, error) {
	g, err := driveGeometry(f)
	if err != nil {
		return 0, err
	}
	return uint64(g.DiskSize), nil
}

// osPartitions reads the drive layout. Entries that are neither MBR nor GPT,
// empty MBR slots and extended containers are skipped; the logical drives
// inside a container are listed on their own.
func (h *handle) osPartitions(bytesPerSector uint32) ([]diskgeom.Extent, error) {
	layout := new(driveLayoutInformationEx)
	var returned uint32
	err := windows.DeviceIoControl(windows.Handle(h.f.Fd()), ioctlDiskGetDriveLayoutEx, nil, 0,
		(*byte)(unsafe.Pointer(layout)), uint32(unsafe.Sizeof(*layout)), &returned, nil)
	if err != nil {
		return nil, fmt.Errorf("IOCTL_DISK_GET_DRIVE_LAYOUT_EX: %w", err)
	}

	bps := uint64(bytesPerSector)
	count := min(int(layout.PartitionCount), maxLayoutPartitions)

	var out []diskgeom.Extent
	for _, p := range layout.PartitionEntry[:count] {
		if p.PartitionStyle != partitionStyleMBR && p.PartitionStyle != partitionStyleGPT {
			continue
		}
		if p.PartitionLength <= 0 {
			continue
		}
		if p.PartitionStyle == partitionStyleMBR && isExtended(mbr.Type(p.Info[0])) {
			continue
		}
		start := uint64(p.StartingOffset) / bps
		sectors := uint64(p.PartitionLength) / bps
		if sectors == 0 {
			continue
		}
		out = append(out, diskgeom.Extent{
			Start: start,
			End:   start + sectors - 1,
			Label: layoutLabel(&p),
		})
	}
	return out, nil
}

func layoutLabel(p *partitionInformationEx) string {
	if p.PartitionStyle == partitionStyleMBR {
		return mbrTypeName(mbr.Type(p.Info[0]))
	}
	name := make([]uint16, gptNameLength)
	for i := range name {
		off := gptNameOffset + 2*i
		name[i] = uint16(p.Info[off]) | uint16(p.Info[off+1])<<8
	}
	return windows.UTF16ToString(name)
}
