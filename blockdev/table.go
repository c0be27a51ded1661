package blockdev

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/diskfs/go-diskfs/util"

	"dskgeom/diskgeom"
)

// Partition table kinds returned by TableType.
const (
	TableNone = ""
	TableMBR  = "mbr"
	TableGPT  = "gpt"
)

var (
	efiSignature = []byte("EFI PART")
	mbrSignature = []byte{0x55, 0xaa}
)

const mbrSize = 512

// TableType looks at the first two sectors of r and reports which kind of
// partition table they hold.
func TableType(r io.ReaderAt, bytesPerSector uint32) (string, error) {
	bps := int(bytesPerSector)
	if bps < mbrSize {
		bps = mbrSize
	}

	b := make([]byte, 2*bps)
	n, err := r.ReadAt(b, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return TableNone, fmt.Errorf("read partition table: %w", err)
	}
	b = b[:n]

	if len(b) >= bps+len(efiSignature) && bytes.Equal(b[bps:bps+len(efiSignature)], efiSignature) {
		return TableGPT, nil
	}
	if len(b) >= mbrSize && bytes.Equal(b[mbrSize-2:mbrSize], mbrSignature) {
		return TableMBR, nil
	}
	return TableNone, nil
}

// ReadTable decodes the GPT or MBR partition table at the start of f.
// Extents are in units of bytesPerSector; a device without a partition table
// has no extents.
//
// A sector carrying the MBR signature but no valid partition entries, like
// the boot sector of an unpartitioned FAT volume, also has no extents.
func ReadTable(f util.File, bytesPerSector uint32) ([]diskgeom.Extent, error) {
	kind, err := TableType(f, bytesPerSector)
	if err != nil {
		return nil, err
	}

	switch kind {
	case TableGPT:
		t, err := gpt.Read(f, int(bytesPerSector), int(bytesPerSector))
		if err != nil {
			return nil, fmt.Errorf("decode GPT: %w", err)
		}
		return gptExtents(t), nil
	case TableMBR:
		t, err := mbr.Read(f, int(bytesPerSector), int(bytesPerSector))
		if err != nil {
			return nil, nil
		}
		return mbrExtents(t), nil
	default:
		return nil, nil
	}
}

func gptExtents(t *gpt.Table) []diskgeom.Extent {
	var out []diskgeom.Extent
	for _, p := range t.Partitions {
		if p == nil || p.Type == gpt.Unused || p.End < p.Start {
			continue
		}
		label := p.Name
		if label == "" {
			label = gptTypeName(p.Type)
		}
		out = append(out, diskgeom.Extent{Start: p.Start, End: p.End, Label: label})
	}
	return out
}

// mbrExtents skips empty slots. MBR addresses are in logical sectors of the
// device, whatever their size.
func mbrExtents(t *mbr.Table) []diskgeom.Extent {
	var out []diskgeom.Extent
	for _, p := range t.Partitions {
		if p == nil || p.Type == mbr.Empty || p.Size == 0 {
			continue
		}
		start := uint64(p.Start)
		out = append(out, diskgeom.Extent{
			Start: start,
			End:   start + uint64(p.Size) - 1,
			Label: mbrTypeName(p.Type),
		})
	}
	return out
}

// isExtended reports whether t is an extended partition, a container for
// logical partitions rather than a partition of its own.
func isExtended(t mbr.Type) bool {
	switch t {
	case mbr.ExtendedCHS, mbr.ExtendedLBA, mbr.LinuxExtended:
		return true
	}
	return false
}

func gptTypeName(t gpt.Type) string {
	switch t {
	case gpt.EFISystemPartition:
		return "EFI system"
	case gpt.LinuxFilesystem:
		return "Linux filesystem"
	case gpt.LinuxSwap:
		return "Linux swap"
	case gpt.MicrosoftBasicData:
		return "Microsoft basic data"
	default:
		return string(t)
	}
}

func mbrTypeName(t mbr.Type) string {
	if isExtended(t) {
		return "extended"
	}
	switch t {
	case mbr.Fat12:
		return "FAT12"
	case mbr.Fat16, mbr.Fat16b, mbr.Fat16bLBA:
		return "FAT16"
	case mbr.Fat32CHS, mbr.Fat32LBA:
		return "FAT32"
	case mbr.NTFS:
		return "NTFS"
	case mbr.Linux:
		return "Linux"
	case mbr.LinuxSwap:
		return "Linux swap"
	case mbr.LinuxLVM:
		return "Linux LVM"
	case mbr.EFISystem:
		return "EFI system"
	case mbr.GPTProtective:
		return "GPT protective"
	default:
		return fmt.Sprintf("type 0x%02x", byte(t))
	}
}
