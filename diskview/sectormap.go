package diskview

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"dskgeom/diskgeom"
)

// Map glyphs.
const (
	GlyphAllocated   = '█'
	GlyphUnallocated = '░'
	GlyphSelected    = '■'
)

// SectorMap renders parts as at most rows lines of width cells. Each cell
// stands for an equal run of sectors; the last cell may be shorter. A cell
// touching the highlighted partition shows GlyphSelected, a cell touching
// any allocated partition GlyphAllocated, anything else GlyphUnallocated.
// A negative highlight selects nothing.
func SectorMap(parts []diskgeom.Partition, totalSectors uint64, width, rows, highlight int) []string {
	if totalSectors == 0 || width <= 0 || rows <= 0 {
		return nil
	}

	cells := uint64(width) * uint64(rows)
	perCell := totalSectors / cells
	if totalSectors%cells != 0 {
		perCell++
	}
	used := totalSectors / perCell
	if totalSectors%perCell != 0 {
		used++
	}

	var sel *diskgeom.Partition
	if highlight >= 0 && highlight < len(parts) {
		sel = &parts[highlight]
	}

	lines := make([]string, 0, rows)
	var b strings.Builder
	for cell := uint64(0); cell < used; cell++ {
		first := cell * perCell
		last := min(first+perCell, totalSectors) - 1

		glyph := GlyphUnallocated
		switch {
		case sel != nil && overlaps(*sel, first, last):
			glyph = GlyphSelected
		case allocatedIn(parts, first, last):
			glyph = GlyphAllocated
		}
		b.WriteRune(glyph)

		if (cell+1)%uint64(width) == 0 {
			lines = append(lines, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		lines = append(lines, b.String())
	}
	return lines
}

func overlaps(p diskgeom.Partition, first, last uint64) bool {
	return p.StartSector <= last && first <= p.EndSector
}

func allocatedIn(parts []diskgeom.Partition, first, last uint64) bool {
	for _, p := range parts {
		if !p.Unallocated && overlaps(p, first, last) {
			return true
		}
	}
	return false
}

// PartitionLines lists parts one per line, marking the highlighted one.
func PartitionLines(parts []diskgeom.Partition, bytesPerSector uint32, highlight int) []string {
	lines := make([]string, 0, len(parts))
	for i, p := range parts {
		marker := ' '
		if i == highlight {
			marker = '>'
		}
		kind := "Partition"
		if p.Unallocated {
			kind = "Unallocated"
		}
		line := fmt.Sprintf("%c %2d  %-11s  %12d  %12d  %10s",
			marker, i+1, kind, p.StartSector, p.EndSector,
			humanize.IBytes(p.Sectors()*uint64(bytesPerSector)))
		if p.Label != "" {
			line += "  " + p.Label
		}
		lines = append(lines, line)
	}
	return lines
}

// PartitionHeader is the column header for PartitionLines.
func PartitionHeader() string {
	return fmt.Sprintf("  %2s  %-11s  %12s  %12s  %10s", "#", "Kind", "Start", "End", "Size")
}
