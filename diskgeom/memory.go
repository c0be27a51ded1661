package diskgeom

import (
	"io"
	"os"
)

// MemoryBackend is a Backend over an in-memory disk image. It is used for
// emulation and in tests; the Fault hooks inject backend failures.
type MemoryBackend struct {
	SectorSize uint32
	Data       []byte
	Extents    []Extent

	OpenFault       func(device string, mode OpenMode) error
	SectorSizeFault error
	SizeFault       error
	PartitionsFault error
	ReadFault       func(off int64) error
	WriteFault      func(off int64) error
	CloseFault      error

	opens  int
	active int
}

// NewMemoryBackend returns a zero-filled disk of size bytes.
func NewMemoryBackend(bytesPerSector uint32, size uint64, extents ...Extent) *MemoryBackend {
	return &MemoryBackend{
		SectorSize: bytesPerSector,
		Data:       make([]byte, size),
		Extents:    extents,
	}
}

// Open implements Backend.
func (m *MemoryBackend) Open(device string, mode OpenMode) (Handle, error) {
	if m.OpenFault != nil {
		if err := m.OpenFault(device, mode); err != nil {
			return nil, err
		}
	}
	m.opens++
	m.active++
	return &memoryHandle{m: m, mode: mode}, nil
}

// Opens returns how many handles were opened so far.
func (m *MemoryBackend) Opens() int { return m.opens }

// Active returns how many handles are currently open.
func (m *MemoryBackend) Active() int { return m.active }

type memoryHandle struct {
	m      *MemoryBackend
	mode   OpenMode
	closed bool
}

func (h *memoryHandle) BytesPerSector() (uint32, error) {
	if h.m.SectorSizeFault != nil {
		return 0, h.m.SectorSizeFault
	}
	return h.m.SectorSize, nil
}

func (h *memoryHandle) DiskSize() (uint64, error) {
	if h.m.SizeFault != nil {
		return 0, h.m.SizeFault
	}
	return uint64(len(h.m.Data)), nil
}

func (h *memoryHandle) RawPartitions(uint32) ([]Extent, error) {
	if h.m.PartitionsFault != nil {
		return nil, h.m.PartitionsFault
	}
	out := make([]Extent, len(h.m.Extents))
	copy(out, h.m.Extents)
	return out, nil
}

func (h *memoryHandle) ReadAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	if h.m.ReadFault != nil {
		if err := h.m.ReadFault(off); err != nil {
			return 0, err
		}
	}
	if off >= int64(len(h.m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, h.m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *memoryHandle) WriteAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	if h.mode != ReadWrite {
		return 0, os.ErrPermission
	}
	if h.m.WriteFault != nil {
		if err := h.m.WriteFault(off); err != nil {
			return 0, err
		}
	}
	if off >= int64(len(h.m.Data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(h.m.Data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (h *memoryHandle) Close() error {
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	h.m.active--
	return h.m.CloseFault
}
