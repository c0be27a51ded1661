package diskgeom

// OpenMode selects how a backend opens a device.
type OpenMode int

// Open modes.
const (
	ReadOnly OpenMode = iota
	ReadWrite
)

func (m OpenMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Backend opens devices. One implementation exists per platform (see package
// blockdev); MemoryBackend serves tests and emulation.
type Backend interface {
	Open(device string, mode OpenMode) (Handle, error)
}

// Handle is an open device. It is only used for the duration of a single
// DiskGeometry operation and closed afterwards.
type Handle interface {
	// BytesPerSector returns the logical sector size of the device.
	BytesPerSector() (uint32, error)
	// DiskSize returns the size of the device in bytes.
	DiskSize() (uint64, error)
	// RawPartitions returns the partitions known to the device, in any
	// order. Implementations must return non-overlapping extents inside
	// [0, DiskSize/bytesPerSector - 1]; the normalizer does not check this.
	RawPartitions(bytesPerSector uint32) ([]Extent, error)
	// ReadAt reads whole sectors at byte offset off. Zero bytes with
	// io.EOF marks the end of readable data.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes whole sectors at byte offset off.
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}
