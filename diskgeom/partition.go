// Package diskgeom models the partition layout of a raw block device and
// provides bounds-checked, sector-aligned reads and writes against any
// region of it, including the unallocated gaps between partitions.
//
// The platform specific parts (opening devices, querying geometry and
// decoding partition tables) are provided by a Backend; see package blockdev.
package diskgeom

import "fmt"

// Extent is a partition as reported by a backend: an inclusive sector range.
type Extent struct {
	Start uint64
	End   uint64
	// Label is informational only (GPT partition name, MBR type, sysfs name).
	Label string
}

// Partition is an inclusive sector range of the normalized partition table.
// Unallocated partitions are synthetic and cover the gaps between the
// backend-reported ones.
type Partition struct {
	StartSector uint64
	EndSector   uint64
	Unallocated bool
	Label       string
}

// Sectors returns the number of sectors covered by p.
func (p Partition) Sectors() uint64 {
	return p.EndSector - p.StartSector + 1
}

// Contains reports whether sector lies inside p.
func (p Partition) Contains(sector uint64) bool {
	return sector >= p.StartSector && sector <= p.EndSector
}

func (p Partition) String() string {
	kind := "allocated"
	if p.Unallocated {
		kind = "unallocated"
	}
	return fmt.Sprintf("[%d … %d] %s", p.StartSector, p.EndSector, kind)
}
