//go:build linux

package blockdev

import "os"

// Mounts lists mounted filesystems from /proc/self/mounts.
func Mounts() ([]Mount, error) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(f)
}
