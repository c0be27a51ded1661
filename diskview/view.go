package diskview

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"dskgeom/diskgeom"
)

// Layout is what the view needs from a disk.
type Layout interface {
	Device() string
	BytesPerSector() uint32
	DiskSize() uint64
	TotalSectors() uint64
	Partitions() []diskgeom.Partition
}

var _ Layout = (*diskgeom.DiskGeometry)(nil)

// Viewer shows one disk on a UI and lets the user move the selection
// through its partitions.
type Viewer struct {
	ui       *UI
	disk     Layout
	parts    []diskgeom.Partition
	selected int
}

// NewViewer prepares a view of disk with partition selected highlighted.
func NewViewer(ui *UI, disk Layout, selected int) *Viewer {
	v := &Viewer{ui: ui, disk: disk, parts: disk.Partitions()}
	v.Select(selected)
	return v
}

// Selected returns the index of the highlighted partition.
func (v *Viewer) Selected() int { return v.selected }

// Select highlights partition i, clamped to the table.
func (v *Viewer) Select(i int) {
	v.selected = max(0, min(i, len(v.parts)-1))
}

// Draw lays out the whole screen for the current selection.
func (v *Viewer) Draw() {
	u := v.ui
	bps := v.disk.BytesPerSector()

	u.SetTitle(fmt.Sprintf(" %s ", v.disk.Device()))
	u.SetSummaryLines([]string{
		fmt.Sprintf("Bytes/Sector: %d   Sectors: %d   Size: %s   Partitions: %d",
			bps, v.disk.TotalSectors(), humanize.IBytes(v.disk.DiskSize()), len(v.parts)),
	})
	u.SetLegend([]string{
		fmt.Sprintf("Legend:  %c allocated   %c unallocated   %c selected | ↑/↓ select, Q to quit",
			GlyphAllocated, GlyphUnallocated, GlyphSelected),
	})
	u.SetPartitionLines(append([]string{PartitionHeader()}, PartitionLines(v.parts, bps, v.selected)...))

	if v.selected < len(v.parts) {
		p := v.parts[v.selected]
		u.SetStatusLines([]string{
			fmt.Sprintf("Selected: %s", p),
			fmt.Sprintf("Bytes: %d … %d", p.StartSector*uint64(bps), (p.EndSector+1)*uint64(bps)-1),
		})
	}

	w, h := u.Size()
	rows := max(1, h-u.FixedRows())
	u.SetMap(SectorMap(v.parts, v.disk.TotalSectors(), w, rows, v.selected))

	u.LayoutAndDraw()
}

// Run draws the view and follows navigation keys until the user quits.
func (v *Viewer) Run() error {
	v.Draw()
	for {
		select {
		case d := <-v.ui.Nav():
			v.Select(v.selected + d)
			v.Draw()
		case <-v.ui.Stopped():
			v.drain()
			return nil
		}
	}
}

// drain applies navigation that arrived before the stop request.
func (v *Viewer) drain() {
	for {
		select {
		case d := <-v.ui.Nav():
			v.Select(v.selected + d)
		default:
			return
		}
	}
}
