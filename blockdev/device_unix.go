//go:build !windows

package blockdev

import (
	"os"

	"dskgeom/diskgeom"
)

func openFile(path string, mode diskgeom.OpenMode) (*os.File, error) {
	flag := os.O_RDONLY
	if mode == diskgeom.ReadWrite {
		flag = os.O_RDWR
	}
	return os.OpenFile(path, flag, 0)
}

func isRegular(f *os.File, _ string) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode().IsRegular()
}
