package diskgeom

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// DiskGeometry describes one physical device: its sector size, its size and
// its normalized partition table. The table is computed once by New and
// never changes afterwards.
//
// DiskGeometry holds no open handle. Every ReadData and WriteData call opens
// the device through the backend and closes it before returning, so callers
// sharing a device must serialize their own access.
type DiskGeometry struct {
	device         string
	bytesPerSector uint32
	diskSize       uint64
	partitions     []Partition

	io *sectorIO
}

// Option configures a DiskGeometry.
type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

// WithLogger sets the logger used for construction and I/O.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// New queries device through backend and builds its partition table.
// Any backend failure is returned as a *ConstructionError.
func New(device string, backend Backend, opts ...Option) (*DiskGeometry, error) {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.WithField("device", device)

	s := &sectorIO{device: device, backend: backend, log: o.log}
	g, err := s.query()
	if err != nil {
		log.WithError(err).Error("could not query the device")
		return nil, &ConstructionError{Device: device, Err: err}
	}
	s.bytesPerSector = g.bytesPerSector
	g.io = s

	log.WithFields(logrus.Fields{
		"bytes_per_sector": g.bytesPerSector,
		"total_sectors":    g.TotalSectors(),
		"partitions":       len(g.partitions),
	}).Debug("disk geometry ready")

	return g, nil
}

// query reads sector size, disk size and raw partitions through one
// short-lived read-only handle.
func (s *sectorIO) query() (g *DiskGeometry, err error) {
	device := s.device
	h, err := s.open(ReadOnly)
	if err != nil {
		return nil, err
	}
	defer s.release(h, &err)

	bps, err := h.BytesPerSector()
	if err != nil {
		return nil, backendErr("query sector size of", device, -1, err)
	}
	if bps == 0 {
		return nil, backendErr("query sector size of", device, -1, errors.New("device reports a sector size of zero"))
	}

	size, err := h.DiskSize()
	if err != nil {
		return nil, backendErr("query size of", device, -1, err)
	}

	raw, err := h.RawPartitions(bps)
	if err != nil {
		return nil, backendErr("query partitions of", device, -1, err)
	}

	return &DiskGeometry{
		device:         device,
		bytesPerSector: bps,
		diskSize:       size,
		partitions:     Normalize(raw, size/uint64(bps)),
	}, nil
}

// Device returns the device identifier the geometry was built for.
func (g *DiskGeometry) Device() string { return g.device }

// BytesPerSector returns the logical sector size.
func (g *DiskGeometry) BytesPerSector() uint32 { return g.bytesPerSector }

// DiskSize returns the device size in bytes.
func (g *DiskGeometry) DiskSize() uint64 { return g.diskSize }

// TotalSectors returns the number of whole sectors on the device.
func (g *DiskGeometry) TotalSectors() uint64 {
	return g.diskSize / uint64(g.bytesPerSector)
}

// Partitions returns a copy of the normalized partition table.
func (g *DiskGeometry) Partitions() []Partition {
	out := make([]Partition, len(g.partitions))
	copy(out, g.partitions)
	return out
}

// Unallocated returns the synthetic partitions covering unused space.
func (g *DiskGeometry) Unallocated() []Partition {
	var out []Partition
	for _, p := range g.partitions {
		if p.Unallocated {
			out = append(out, p)
		}
	}
	return out
}

// PartitionAt returns the partition containing sector.
func (g *DiskGeometry) PartitionAt(sector uint64) (Partition, bool) {
	for _, p := range g.partitions {
		if p.Contains(sector) {
			return p, true
		}
	}
	return Partition{}, false
}

// WriteData writes data into p starting at startingSector. Writes are
// sector granular: a trailing partial sector is padded with zeroes on the
// device. It returns the number of bytes of data written, which is less than
// len(data) only together with a *BackendError.
//
// startingSector must lie inside p and startingSector+len(data)-1 must not
// pass p.EndSector, otherwise a *RangeError is returned and the device is
// not touched.
func (g *DiskGeometry) WriteData(p Partition, startingSector uint64, data []byte) (int, error) {
	return g.io.write(p, startingSector, data)
}

// ReadData reads readSize bytes from p starting at startingSector. On a
// *BackendError the bytes read before the failure are returned with it.
func (g *DiskGeometry) ReadData(p Partition, startingSector, readSize uint64) ([]byte, error) {
	return g.io.read(p, startingSector, readSize)
}
