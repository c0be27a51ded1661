package diskgeom

import (
	"bytes"
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// exampleDisk is a 1 MiB disk with one partition at sectors 100-199.
func exampleDisk(t *testing.T) (*DiskGeometry, *MemoryBackend) {
	t.Helper()

	b := NewMemoryBackend(512, 1048576, Extent{Start: 100, End: 199})
	g, err := New("mem0", b, WithLogger(quietLogger()))
	require.NoError(t, err)

	return g, b
}

// ioDisk is an 8 MiB disk with one partition at sectors 1000-8999, roomy
// enough for multi-sector requests.
func ioDisk(t *testing.T) (*DiskGeometry, *MemoryBackend) {
	t.Helper()

	b := NewMemoryBackend(512, 8*1048576, Extent{Start: 1000, End: 8999})
	g, err := New("mem1", b, WithLogger(quietLogger()))
	require.NoError(t, err)

	return g, b
}

func TestNew(t *testing.T) {
	g, b := exampleDisk(t)

	assert.Equal(t, "mem0", g.Device())
	assert.Equal(t, uint32(512), g.BytesPerSector())
	assert.Equal(t, uint64(1048576), g.DiskSize())
	assert.Equal(t, uint64(2048), g.TotalSectors())
	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 99, Unallocated: true},
		{StartSector: 100, EndSector: 199},
		{StartSector: 200, EndSector: 2047, Unallocated: true},
	}, g.Partitions())

	assert.Equal(t, 1, b.Opens())
	assert.Equal(t, 0, b.Active(), "construction must not keep the device open")
}

func TestTotalSectorsFloors(t *testing.T) {
	b := NewMemoryBackend(512, 1000)
	g, err := New("mem0", b, WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), g.TotalSectors())
	assert.Equal(t, []Partition{{StartSector: 0, EndSector: 0, Unallocated: true}}, g.Partitions())
}

func TestPartitionsIsACopy(t *testing.T) {
	g, _ := exampleDisk(t)

	parts := g.Partitions()
	parts[0].EndSector = 5

	assert.Equal(t, uint64(99), g.Partitions()[0].EndSector)
}

func TestUnallocatedAndPartitionAt(t *testing.T) {
	g, _ := exampleDisk(t)

	assert.Equal(t, []Partition{
		{StartSector: 0, EndSector: 99, Unallocated: true},
		{StartSector: 200, EndSector: 2047, Unallocated: true},
	}, g.Unallocated())

	p, ok := g.PartitionAt(150)
	require.True(t, ok)
	assert.Equal(t, Partition{StartSector: 100, EndSector: 199}, p)

	_, ok = g.PartitionAt(2048)
	assert.False(t, ok)
}

func TestNewConstructionErrors(t *testing.T) {
	cause := errors.New("boom")

	for _, tt := range []struct {
		name   string
		mutate func(b *MemoryBackend)
	}{
		{"open", func(b *MemoryBackend) {
			b.OpenFault = func(string, OpenMode) error { return cause }
		}},
		{"sector size", func(b *MemoryBackend) { b.SectorSizeFault = cause }},
		{"size", func(b *MemoryBackend) { b.SizeFault = cause }},
		{"partitions", func(b *MemoryBackend) { b.PartitionsFault = cause }},
		{"close", func(b *MemoryBackend) { b.CloseFault = cause }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMemoryBackend(512, 1048576)
			tt.mutate(b)

			g, err := New("mem0", b, WithLogger(quietLogger()))
			require.Error(t, err)
			assert.Nil(t, g)

			var ce *ConstructionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "mem0", ce.Device)

			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.ErrorIs(t, err, cause)
			assert.Contains(t, err.Error(), "boom")

			assert.Equal(t, 0, b.Active())
		})
	}
}

func TestNewZeroSectorSize(t *testing.T) {
	b := NewMemoryBackend(0, 1048576)

	_, err := New("mem0", b, WithLogger(quietLogger()))

	var ce *ConstructionError
	require.ErrorAs(t, err, &ce)
}

func TestWriteReadRoundTrip(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]

	data := bytes.Repeat([]byte{0xAA}, 512)
	n, err := g.WriteData(p, 200, data)
	require.NoError(t, err)
	assert.Equal(t, 512, n)

	got, err := g.ReadData(p, 200, 512)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, data, b.Data[200*512:201*512])
	assert.Equal(t, 0, b.Active())
}

func TestWriteReadMultiSector(t *testing.T) {
	g, _ := ioDisk(t)
	p := g.Partitions()[2]

	data := make([]byte, 512*7)
	for i := range data {
		data[i] = byte(i * 31)
	}

	n, err := g.WriteData(p, 9000, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got, err := g.ReadData(p, 9000, uint64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWritePadsTrailingSector(t *testing.T) {
	g, b := ioDisk(t)
	p := g.Partitions()[0]

	for i := range b.Data[:1024] {
		b.Data[i] = 0xFF
	}

	data := bytes.Repeat([]byte{0x11}, 600)
	n, err := g.WriteData(p, 0, data)
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	assert.Equal(t, data, b.Data[:600])
	assert.Equal(t, make([]byte, 1024-600), b.Data[600:1024], "tail of the last sector is zero padded")

	got, err := g.ReadData(p, 0, 600)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadTruncatesToReadSize(t *testing.T) {
	g, b := ioDisk(t)
	copy(b.Data[1000*512:], bytes.Repeat([]byte{0x42}, 1024))

	got, err := g.ReadData(g.Partitions()[1], 1000, 700)
	require.NoError(t, err)
	assert.Len(t, got, 700)
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 700), got)
}

func TestZeroSize(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[1]

	n, err := g.WriteData(p, 199, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := g.ReadData(p, 199, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, 1, b.Opens(), "empty requests do not touch the device")
}

func TestRangeErrors(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[1] // 100-199

	for _, tt := range []struct {
		name   string
		sector uint64
		size   uint64
	}{
		{"before start", 99, 512},
		{"after end", 200, 512},
		{"far after end", 5000, 1},
		{"overruns end", 199, 1024},
		{"size counted from the starting sector", 150, 100},
		{"full sector at the last sector", 199, 512},
		{"one past the end", 100, 101},
		{"two bytes at the last sector", 199, 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.WriteData(p, tt.sector, make([]byte, tt.size))
			require.ErrorIs(t, err, ErrOutOfRange)

			var re *RangeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "write", re.Op)
			assert.Equal(t, p, re.Partition)

			_, err = g.ReadData(p, tt.sector, tt.size)
			require.ErrorIs(t, err, ErrOutOfRange)
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "read", re.Op)
		})
	}

	assert.Equal(t, 1, b.Opens(), "out of range requests do not touch the device")
}

func TestLargestRequests(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[1] // 100-199

	for _, tt := range []struct {
		sector uint64
		size   int
	}{
		{100, 100},
		{150, 50},
		{199, 1},
	} {
		data := bytes.Repeat([]byte{0x5A}, tt.size)
		n, err := g.WriteData(p, tt.sector, data)
		require.NoError(t, err, "sector %d", tt.sector)
		assert.Equal(t, tt.size, n)

		got, err := g.ReadData(p, tt.sector, uint64(tt.size))
		require.NoError(t, err, "sector %d", tt.sector)
		assert.Equal(t, data, got)
	}

	assert.Equal(t, bytes.Repeat([]byte{0x5A}, 1), b.Data[199*512:199*512+1])
}

func TestWritePartialFailure(t *testing.T) {
	g, b := ioDisk(t)
	p := g.Partitions()[2]

	failAt := int64(9003 * 512)
	b.WriteFault = func(off int64) error {
		if off == failAt {
			return syscall.EIO
		}
		return nil
	}

	n, err := g.WriteData(p, 9000, bytes.Repeat([]byte{0xAA}, 512*6))
	require.Error(t, err)
	assert.Equal(t, 3*512, n)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "write", be.Op)
	assert.Equal(t, failAt, be.Offset)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.Contains(t, err.Error(), syscall.EIO.Error())

	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 3*512), b.Data[9000*512:9003*512])
	assert.Equal(t, make([]byte, 512), b.Data[9003*512:9004*512])
	assert.Equal(t, 0, b.Active(), "handle is released on failure")
}

func TestWritePartialFailureWithPaddedTail(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]

	b.WriteFault = func(off int64) error {
		if off == 201*512 {
			return syscall.EIO
		}
		return nil
	}

	n, err := g.WriteData(p, 200, make([]byte, 700))
	require.Error(t, err)
	assert.Equal(t, 512, n)
}

func TestReadPartialFailure(t *testing.T) {
	g, b := ioDisk(t)
	p := g.Partitions()[2]
	copy(b.Data[9100*512:], bytes.Repeat([]byte{0x77}, 4*512))

	b.ReadFault = func(off int64) error {
		if off == 9102*512 {
			return syscall.EIO
		}
		return nil
	}

	got, err := g.ReadData(p, 9100, 4*512)
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "read", be.Op)
	assert.Equal(t, int64(9102*512), be.Offset)
	assert.Equal(t, bytes.Repeat([]byte{0x77}, 2*512), got, "only the bytes read before the failure are returned")
	assert.Equal(t, 0, b.Active())
}

func TestReadPartialFailureNeverExceedsReadSize(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]

	b.ReadFault = func(off int64) error {
		if off == 201*512 {
			return syscall.EIO
		}
		return nil
	}

	got, err := g.ReadData(p, 200, 300)
	require.NoError(t, err)
	assert.Len(t, got, 300)

	got, err = g.ReadData(p, 200, 800)
	require.Error(t, err)
	assert.Len(t, got, 512)
}

func TestReadStopsAtEndOfData(t *testing.T) {
	b := NewMemoryBackend(512, 1048576)
	g, err := New("mem0", b, WithLogger(quietLogger()))
	require.NoError(t, err)

	copy(b.Data[1000*512:], bytes.Repeat([]byte{0x33}, 512))
	// the device shrinks after construction
	b.Data = b.Data[:1001*512]

	got, err := g.ReadData(g.Partitions()[0], 1000, 1024)
	require.NoError(t, err)
	assert.Len(t, got, 1024)
	assert.Equal(t, bytes.Repeat([]byte{0x33}, 512), got[:512])
	assert.Equal(t, make([]byte, 512), got[512:])
}

func TestOpenFailureDuringIO(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]

	b.OpenFault = func(_ string, mode OpenMode) error {
		if mode == ReadWrite {
			return syscall.EACCES
		}
		return nil
	}

	n, err := g.WriteData(p, 200, make([]byte, 512))
	assert.Zero(t, n)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "open", be.Op)
	assert.ErrorIs(t, err, syscall.EACCES)

	_, err = g.ReadData(p, 200, 512)
	assert.NoError(t, err)
}

func TestCloseFailureIsReported(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]
	b.CloseFault = syscall.EIO

	n, err := g.WriteData(p, 200, make([]byte, 1024))
	assert.Equal(t, 1024, n)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "close", be.Op)
}

func TestCloseFailureJoinsPrimaryError(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]
	b.CloseFault = syscall.EBADF
	b.WriteFault = func(int64) error { return syscall.EIO }

	_, err := g.WriteData(p, 200, make([]byte, 512))
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestEachCallUsesItsOwnHandle(t *testing.T) {
	g, b := exampleDisk(t)
	p := g.Partitions()[2]

	for i := 0; i < 3; i++ {
		_, err := g.WriteData(p, 200, make([]byte, 512))
		require.NoError(t, err)
		_, err = g.ReadData(p, 200, 512)
		require.NoError(t, err)
	}

	assert.Equal(t, 7, b.Opens())
	assert.Equal(t, 0, b.Active())
}
