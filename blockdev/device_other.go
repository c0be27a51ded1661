//go:build !linux && !darwin && !windows

package blockdev

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/hashicorp/go-multierror"

	"dskgeom/diskgeom"
)

var errUnsupported = fmt.Errorf("block device queries are not supported on %s", runtime.GOOS)

func sectorSize(*os.File) (uint32, error) {
	return 0, errUnsupported
}

// deviceSize seeks to the end, which some BSD disk drivers support.
func deviceSize(f *os.File) (uint64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, multierror.Append(errUnsupported, err)
	}
	_, _ = f.Seek(0, io.SeekStart)
	return uint64(size), nil
}

func (h *handle) osPartitions(uint32) ([]diskgeom.Extent, error) {
	return nil, errNoOSPartitions
}
