package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"dskgeom/diskgeom"
)

// Info is one device node found by Discover.
type Info struct {
	Path  string
	Whole bool
	// Reason says why a node is not a whole disk.
	Reason string
}

// Discover lists the disk device nodes of the running system. Nothing is
// opened for writing.
func Discover() ([]Info, error) {
	switch runtime.GOOS {
	case "darwin":
		return discoverDarwin("/dev")
	case "linux":
		return discoverLinux("/dev")
	case "windows":
		return discoverWindows()
	default:
		return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

func discoverDarwin(dev string) ([]Info, error) {
	entries, err := os.ReadDir(dev)
	if err != nil {
		return nil, err
	}
	infos := []Info{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
			continue
		}
		path := filepath.Join(dev, name)
		if isDarwinPartition(name) {
			infos = append(infos, Info{Path: path, Reason: "partition"})
		} else {
			infos = append(infos, Info{Path: path, Whole: true})
		}
	}
	return infos, nil
}

// isDarwinPartition matches diskNsM and rdiskNsM.
func isDarwinPartition(name string) bool {
	return darwinSliceIndex(name) >= 0
}

func darwinSliceIndex(name string) int {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && isDigit(name[i+1]) {
			return i
		}
	}
	return -1
}

func discoverLinux(dev string) ([]Info, error) {
	entries, err := os.ReadDir(dev)
	if err != nil {
		return nil, err
	}
	infos := []Info{}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dev, name)
		switch {
		case isWholeLinuxDevice(name):
			infos = append(infos, Info{Path: path, Whole: true})
		case isLinuxPartition(name):
			infos = append(infos, Info{Path: path, Reason: "partition"})
		case strings.HasPrefix(name, "loop") && name != "loop-control":
			infos = append(infos, Info{Path: path, Reason: "loop device"})
		}
	}
	return infos, nil
}

// isWholeLinuxDevice matches sdX, vdX, nvmeXnY and mmcblkX.
func isWholeLinuxDevice(name string) bool {
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	if rest, ok := strings.CutPrefix(name, "nvme"); ok {
		ctrl, ns, found := strings.Cut(rest, "n")
		return found && allDigits(ctrl) && allDigits(ns)
	}
	if rest, ok := strings.CutPrefix(name, "mmcblk"); ok {
		return allDigits(rest)
	}
	return false
}

// isLinuxPartition matches sdXN, vdXN, nvmeXnYpZ and mmcblkXpZ.
func isLinuxPartition(name string) bool {
	whole := linuxWholeName(name)
	return whole != name && isWholeLinuxDevice(whole)
}

// linuxWholeName strips a partition suffix from a kernel device name.
func linuxWholeName(name string) string {
	if strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd") {
		return strings.TrimRight(name, "0123456789")
	}
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		if i := strings.LastIndexByte(name, 'p'); i > 0 && allDigits(name[i+1:]) {
			return name[:i]
		}
	}
	return name
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func discoverWindows() ([]Info, error) {
	infos := []Info{}
	for i := 0; i < 32; i++ {
		path := fmt.Sprintf(`\\.\PhysicalDrive%d`, i)
		f, err := os.Open(path)
		if err == nil {
			_ = f.Close()
			infos = append(infos, Info{Path: path, Whole: true})
			continue
		}
		if i < 8 {
			infos = append(infos, Info{Path: path, Reason: "not accessible"})
		}
	}
	return infos, nil
}

// WholeDevice returns the disk holding the partition dev, or dev itself.
func WholeDevice(dev string) string {
	switch runtime.GOOS {
	case "darwin":
		if i := darwinSliceIndex(filepath.Base(dev)); i >= 0 {
			return filepath.Join(filepath.Dir(dev), filepath.Base(dev)[:i])
		}
	case "linux":
		base := filepath.Base(dev)
		if isLinuxPartition(base) {
			return filepath.Join(filepath.Dir(dev), linuxWholeName(base))
		}
	}
	return dev
}

// Resolve maps a mount point or device path to the device and, if mounted,
// its mount point.
func Resolve(path string) (device, mountpoint string, err error) {
	mounts, merr := Mounts()

	if strings.HasPrefix(path, "/dev/") || strings.HasPrefix(path, `\\.\`) {
		if m, ok := FindMount(mounts, path); ok && m.Device == path {
			return path, m.MountPoint, nil
		}
		return path, "", nil
	}

	if merr != nil {
		return "", "", fmt.Errorf("list mounts: %w", merr)
	}
	m, ok := FindMount(mounts, path)
	if !ok {
		return "", "", fmt.Errorf("cannot resolve device for %s", path)
	}
	return m.Device, m.MountPoint, nil
}

// Details describes a device for listings.
type Details struct {
	Kind   string
	Serial string
	Size   uint64
	Media  string
}

// Describe collects what can be learnt about path without writing to it.
// Unknown fields are left empty.
func (d *Device) Describe(path string) Details {
	det := Details{Kind: "Disk"}

	if runtime.GOOS == "linux" {
		sys := filepath.Join(d.sysfsRoot(), "block", filepath.Base(path))
		if b, err := os.ReadFile(filepath.Join(sys, "removable")); err == nil {
			if strings.TrimSpace(string(b)) == "1" {
				det.Kind = "Removable Disk"
			} else {
				det.Kind = "Fixed Disk"
			}
		}
		if b, err := os.ReadFile(filepath.Join(sys, "device", "serial")); err == nil {
			det.Serial = strings.TrimSpace(string(b))
		}
	}
	if runtime.GOOS == "windows" {
		det.Kind = "PhysicalDrive"
	}

	if h, err := d.Open(path, diskgeom.ReadOnly); err == nil {
		if size, err := h.DiskSize(); err == nil {
			det.Size = size
		}
		_ = h.Close()
	}

	if media := mediaTypeBySize(det.Size); media != "" {
		det.Kind = "Floppy"
		det.Media = media
	}
	return det
}

func mediaTypeBySize(size uint64) string {
	switch size {
	case 360 * 1024:
		return "360K floppy"
	case 720 * 1024:
		return "720K floppy"
	case 1200 * 1024:
		return "1.2M floppy"
	case 1440 * 1024:
		return "1.44M floppy"
	case 2880 * 1024:
		return "2.88M floppy"
	default:
		return ""
	}
}
