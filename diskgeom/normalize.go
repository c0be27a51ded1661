package diskgeom

import "sort"

// Normalize turns the raw partition list of a backend into a full partition
// table: sorted by start sector, gapless, with an unallocated partition for
// every hole between (and around) the raw entries, covering exactly
// [0, totalSectors-1].
//
// raw may be empty and in any order. Entries are trusted to be mutually
// non-overlapping and inside the disk; see Handle.RawPartitions.
func Normalize(raw []Extent, totalSectors uint64) []Partition {
	parts := make([]Partition, 0, 2*len(raw)+1)
	for _, e := range raw {
		parts = append(parts, Partition{StartSector: e.Start, EndSector: e.End, Label: e.Label})
	}
	sortPartitions(parts)

	if totalSectors == 0 {
		return parts
	}

	var gaps []Partition
	// next is the first sector not covered by any partition seen so far.
	next := uint64(0)
	for _, p := range parts {
		if next < p.StartSector {
			gaps = append(gaps, Partition{StartSector: next, EndSector: p.StartSector - 1, Unallocated: true})
		}
		if p.EndSector+1 > next {
			next = p.EndSector + 1
		}
	}
	if next < totalSectors {
		gaps = append(gaps, Partition{StartSector: next, EndSector: totalSectors - 1, Unallocated: true})
	}

	parts = append(parts, gaps...)
	sortPartitions(parts)
	return parts
}

// sortPartitions orders by start sector; equal starts keep the shorter
// partition first.
func sortPartitions(parts []Partition) {
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].StartSector != parts[j].StartSector {
			return parts[i].StartSector < parts[j].StartSector
		}
		return parts[i].EndSector < parts[j].EndSector
	})
}
