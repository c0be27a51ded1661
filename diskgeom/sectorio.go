package diskgeom

import (
	"errors"
	"io"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// sectorIO validates requests against a partition and moves whole sectors
// between callers and a backend. It holds no device handle between calls.
type sectorIO struct {
	device         string
	bytesPerSector uint32
	backend        Backend
	log            logrus.FieldLogger
}

// sectorCount is the number of sectors needed to hold size bytes.
func sectorCount(size uint64, bytesPerSector uint32) uint64 {
	bps := uint64(bytesPerSector)
	n := size / bps
	if size%bps != 0 {
		n++
	}
	return n
}

// checkBounds rejects requests starting outside p, and requests where
// startingSector + size - 1 passes p.EndSector. The second rule adds the
// byte count to a sector number, so it is stricter than the sector span
// and any request it accepts also ends inside p.
func (s *sectorIO) checkBounds(op string, p Partition, startingSector, size uint64) error {
	rangeErr := &RangeError{Op: op, Partition: p, StartingSector: startingSector, Size: size}
	if !p.Contains(startingSector) {
		return rangeErr
	}
	if size == 0 {
		return nil
	}
	if size-1 > p.EndSector-startingSector {
		return rangeErr
	}
	// the last byte touched must still be addressable
	if startingSector+sectorCount(size, s.bytesPerSector) > math.MaxInt64/uint64(s.bytesPerSector) {
		return rangeErr
	}
	return nil
}

func (s *sectorIO) open(mode OpenMode) (Handle, error) {
	h, err := s.backend.Open(s.device, mode)
	if err != nil {
		s.log.WithError(err).WithField("mode", mode).Error("could not open the device")
		return nil, backendErr("open", s.device, -1, err)
	}
	return h, nil
}

// release closes h and folds a close failure into *err.
func (s *sectorIO) release(h Handle, err *error) {
	cerr := h.Close()
	if cerr == nil {
		return
	}
	s.log.WithError(cerr).Error("could not close the device")
	if *err == nil {
		*err = backendErr("close", s.device, -1, cerr)
		return
	}
	*err = multierror.Append(*err, backendErr("close", s.device, -1, cerr))
}

// write stores data starting at startingSector, one sector per backend call.
// A short final chunk is zero padded to a full sector. On failure the number
// of bytes of data already on the device is returned with the error.
func (s *sectorIO) write(p Partition, startingSector uint64, data []byte) (written int, err error) {
	if err := s.checkBounds("write", p, startingSector, uint64(len(data))); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	h, err := s.open(ReadWrite)
	if err != nil {
		return 0, err
	}
	defer s.release(h, &err)

	bps := int(s.bytesPerSector)
	offset := int64(startingSector) * int64(bps)
	log := s.log.WithField("device", s.device)

	for written < len(data) {
		chunk := data[written:]
		logical := bps
		if len(chunk) < bps {
			logical = len(chunk)
			padded := make([]byte, bps)
			copy(padded, chunk)
			chunk = padded
		} else {
			chunk = chunk[:bps]
		}

		n, werr := h.WriteAt(chunk, offset)
		if werr == nil && n < len(chunk) {
			werr = io.ErrShortWrite
		}
		if werr != nil {
			log.WithError(werr).WithField("offset", offset).Error("write operation failed")
			return written, backendErr("write", s.device, offset, werr)
		}
		log.WithField("offset", offset).Debugf("chunk written, %d bytes", n)

		offset += int64(bps)
		written += logical
	}

	log.WithField("bytes", written).Info("all data written")
	return written, nil
}

// read returns readSize bytes starting at startingSector. Whole sectors are
// read into a sector-aligned buffer which is cut down to readSize. A backend
// reporting no more data ends the loop early; the missing tail reads as
// zeroes. On failure the bytes read so far (at most readSize) are returned
// together with the error.
func (s *sectorIO) read(p Partition, startingSector, readSize uint64) (data []byte, err error) {
	if err := s.checkBounds("read", p, startingSector, readSize); err != nil {
		return nil, err
	}
	if readSize == 0 {
		return []byte{}, nil
	}

	h, err := s.open(ReadOnly)
	if err != nil {
		return nil, err
	}
	defer s.release(h, &err)

	bps := uint64(s.bytesPerSector)
	buf := make([]byte, sectorCount(readSize, s.bytesPerSector)*bps)
	offset := int64(startingSector * bps)
	log := s.log.WithField("device", s.device)

	total := uint64(0)
	for total < readSize {
		at := offset + int64(total)
		n, rerr := h.ReadAt(buf[total:min(total+bps, uint64(len(buf)))], at)
		total += uint64(n)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			log.WithError(rerr).WithField("offset", at).Error("read operation failed")
			return buf[:min(total, readSize)], backendErr("read", s.device, at, rerr)
		}
		if n == 0 || rerr != nil {
			log.WithField("offset", at).Debug("end of readable data")
			break
		}
		log.WithField("offset", at).Debugf("data read, %d bytes", n)
	}

	log.WithField("bytes", total).Info("all data read")
	return buf[:readSize], nil
}
