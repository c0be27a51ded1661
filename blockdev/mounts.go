package blockdev

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"
)

// Mount is a mounted volume.
type Mount struct {
	MountPoint string
	Device     string
	FSType     string
	SizeBytes  int64
}

// parseMounts reads a /proc/self/mounts style table:
// <src> <target> <fstype> <opts> ...
func parseMounts(r io.Reader) ([]Mount, error) {
	var out []Mount
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 3 {
			continue
		}
		out = append(out, Mount{
			Device:     unescapeMountField(fields[0]),
			MountPoint: filepath.Clean(unescapeMountField(fields[1])),
			FSType:     fields[2],
		})
	}
	return out, s.Err()
}

// unescapeMountField undoes the octal escaping of spaces, tabs and
// backslashes in mount tables.
func unescapeMountField(s string) string {
	return strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`).Replace(s)
}

// FindMount returns the mount whose mount point is target or whose device
// is target.
func FindMount(mounts []Mount, target string) (Mount, bool) {
	target = filepath.Clean(target)
	for _, m := range mounts {
		if filepath.Clean(m.MountPoint) == target {
			return m, true
		}
	}
	for _, m := range mounts {
		if m.Device == target {
			return m, true
		}
	}
	return Mount{}, false
}
