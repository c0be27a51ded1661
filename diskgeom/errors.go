package diskgeom

import (
	"errors"
	"fmt"
)

// ErrOutOfRange matches every *RangeError via errors.Is.
var ErrOutOfRange = errors.New("outside the partition")

// RangeError is returned when a read or write request does not fit inside
// the target partition. It is always a caller defect and nothing has been
// sent to the device.
type RangeError struct {
	Op             string
	Partition      Partition
	StartingSector uint64
	Size           uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s of %d bytes at sector %d: %s %s", e.Op, e.Size, e.StartingSector, ErrOutOfRange, e.Partition)
}

// Is makes errors.Is(err, ErrOutOfRange) hold.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// BackendError carries a failure of the storage backend (open, query, read,
// write or close) together with the untouched platform error.
type BackendError struct {
	Op     string
	Device string
	Offset int64
	Err    error
}

func (e *BackendError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s %s at offset %d: %v", e.Op, e.Device, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ConstructionError means a DiskGeometry could not be built: the device was
// unreachable or a geometry/partition query failed.
type ConstructionError struct {
	Device string
	Err    error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("disk geometry for %s: %v", e.Device, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func backendErr(op, device string, off int64, err error) *BackendError {
	return &BackendError{Op: op, Device: device, Offset: off, Err: err}
}
