//go:build !linux && !darwin && !windows

package blockdev

// Mounts is not implemented on this platform.
func Mounts() ([]Mount, error) { return nil, nil }
