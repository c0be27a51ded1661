//go:build darwin

package blockdev

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mounts lists mounted volumes with getfsstat(2).
func Mounts() ([]Mount, error) {
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return nil, err
	}
	buf := make([]unix.Statfs_t, n)
	n, err = unix.Getfsstat(buf, unix.MNT_NOWAIT)
	if err != nil {
		return nil, err
	}

	out := make([]Mount, 0, n)
	for _, st := range buf[:n] {
		out = append(out, Mount{
			MountPoint: filepath.Clean(cString(st.Mntonname[:])),
			Device:     cString(st.Mntfromname[:]),
			FSType:     cString(st.Fstypename[:]),
			SizeBytes:  int64(st.Blocks) * int64(st.Bsize),
		})
	}
	return out, nil
}

func cString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
