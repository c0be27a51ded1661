// dskgeom
// Disk geometry inspector for images or block devices.
// Cobra CLI + tcell fullscreen sector map.
// Reads and writes whole sectors inside any partition or gap.
//
// Build:
//
//	go build -o dskgeom .
package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dskgeom/blockdev"
	"dskgeom/diskgeom"
	"dskgeom/diskview"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "b"):
		mult = 1
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return int64(v * float64(mult)), nil
}

// parseExtent parses "start-end" (inclusive sectors, optional ":label").
func parseExtent(s string) (diskgeom.Extent, error) {
	rng, label, _ := strings.Cut(s, ":")
	a, b, ok := strings.Cut(rng, "-")
	if !ok {
		return diskgeom.Extent{}, fmt.Errorf("extent %q: want start-end", s)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(a), 10, 64)
	if err != nil {
		return diskgeom.Extent{}, fmt.Errorf("extent %q: %w", s, err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(b), 10, 64)
	if err != nil {
		return diskgeom.Extent{}, fmt.Errorf("extent %q: %w", s, err)
	}
	if end < start {
		return diskgeom.Extent{}, fmt.Errorf("extent %q: end before start", s)
	}
	return diskgeom.Extent{Start: start, End: end, Label: label}, nil
}

/* ===================== Disk selection ===================== */

type diskFlags struct {
	device     string
	image      string
	sectorSize uint32
	table      bool
	emulate    bool
	size       string
	extents    []string
	verbose    bool
}

func (f *diskFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.device, "device", "", "block device (e.g. /dev/sdb, /dev/disk2, \\\\.\\PhysicalDrive1)")
	pf.StringVar(&f.image, "image", "", "raw disk image file")
	pf.Uint32Var(&f.sectorSize, "sector-size", blockdev.DefaultSectorSize, "bytes per sector for images and emulation")
	pf.BoolVar(&f.table, "table", false, "decode the MBR/GPT on the device instead of asking the OS")
	pf.BoolVar(&f.emulate, "emulate", false, "use a blank in-memory disk instead of a device")
	pf.StringVar(&f.size, "disk-size", "1440K", "size of the emulated disk")
	pf.StringArrayVar(&f.extents, "extent", nil, "partition of the emulated disk as start-end[:label] (repeatable)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

func (f *diskFlags) logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if f.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// backend returns the device name and backend selected by the flags.
func (f *diskFlags) backend(log logrus.FieldLogger) (string, diskgeom.Backend, error) {
	if f.emulate {
		if f.device != "" || f.image != "" {
			return "", nil, fmt.Errorf("--emulate cannot be combined with --device or --image")
		}
		sz, err := parseSize(f.size)
		if err != nil {
			return "", nil, fmt.Errorf("invalid --disk-size: %w", err)
		}
		var extents []diskgeom.Extent
		for _, s := range f.extents {
			e, err := parseExtent(s)
			if err != nil {
				return "", nil, err
			}
			extents = append(extents, e)
		}
		return "memory", diskgeom.NewMemoryBackend(f.sectorSize, uint64(sz), extents...), nil
	}

	dev := &blockdev.Device{SectorSize: f.sectorSize, Table: f.table, Log: log}
	switch {
	case f.device != "" && f.image != "":
		return "", nil, fmt.Errorf("use either --device or --image")
	case f.device != "":
		return f.device, dev, nil
	case f.image != "":
		dev.Table = true
		return f.image, dev, nil
	}
	return "", nil, fmt.Errorf("--device, --image or --emulate is required")
}

// open builds the geometry of the selected disk.
func (f *diskFlags) open(log logrus.FieldLogger) (*diskgeom.DiskGeometry, diskgeom.Backend, error) {
	name, b, err := f.backend(log)
	if err != nil {
		return nil, nil, err
	}
	g, err := diskgeom.New(name, b, diskgeom.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return g, b, nil
}

// pickPartition resolves a 1-based partition number. Zero selects the first
// unallocated region, or the first partition if there is none.
func pickPartition(g *diskgeom.DiskGeometry, n int) (int, diskgeom.Partition, error) {
	parts := g.Partitions()
	if len(parts) == 0 {
		return 0, diskgeom.Partition{}, fmt.Errorf("%s has no sectors", g.Device())
	}
	if n == 0 {
		for i, p := range parts {
			if p.Unallocated {
				return i, p, nil
			}
		}
		return 0, parts[0], nil
	}
	if n < 1 || n > len(parts) {
		return 0, diskgeom.Partition{}, fmt.Errorf("partition %d out of range (1-%d)", n, len(parts))
	}
	return n - 1, parts[n-1], nil
}

/* ===================== Output ===================== */

func printGeometry(g *diskgeom.DiskGeometry) {
	parts := g.Partitions()
	fmt.Println("Disk geometry")
	fmt.Printf("  Device:          %s\n", g.Device())
	fmt.Printf("  Bytes/Sector:    %d\n", g.BytesPerSector())
	fmt.Printf("  Total sectors:   %d\n", g.TotalSectors())
	fmt.Printf("  Size:            %s (%d bytes)\n", humanize.IBytes(g.DiskSize()), g.DiskSize())
	fmt.Printf("  Partitions:      %d\n", len(parts))
	fmt.Println()
	fmt.Println(diskview.PartitionHeader())
	for _, l := range diskview.PartitionLines(parts, g.BytesPerSector(), -1) {
		fmt.Println(l)
	}
	fmt.Println()
}

func printDump(start uint64, data []byte) {
	fmt.Printf("Sector %d, %d bytes:\n", start, len(data))
	fmt.Print(hex.Dump(data))
}

/* ===================== Commands ===================== */

func newInfoCmd(flags *diskFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show sector size, disk size and the normalized partition table",
		RunE: func(_ *cobra.Command, _ []string) error {
			g, _, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			printGeometry(g)
			return nil
		},
	}
}

func newReadCmd(flags *diskFlags) *cobra.Command {
	var (
		part    int
		sector  uint64
		sizeStr string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read sectors from a partition or unallocated region",
		RunE: func(_ *cobra.Command, _ []string) error {
			g, _, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			_, p, err := pickPartition(g, part)
			if err != nil {
				return err
			}
			size, err := parseSize(sizeStr)
			if err != nil {
				return fmt.Errorf("invalid --size: %w", err)
			}
			start := p.StartSector + sector
			data, err := g.ReadData(p, start, uint64(size))
			if err != nil {
				return err
			}
			if out != "" {
				return os.WriteFile(out, data, 0o644)
			}
			printDump(start, data)
			return nil
		},
	}
	cmd.Flags().IntVar(&part, "partition", 1, "partition number as shown by info")
	cmd.Flags().Uint64Var(&sector, "sector", 0, "first sector, relative to the partition start")
	cmd.Flags().StringVar(&sizeStr, "size", "512", "bytes to read (e.g. 512, 4K)")
	cmd.Flags().StringVar(&out, "out", "", "write the data to a file instead of dumping it")
	return cmd
}

func newWriteCmd(flags *diskFlags) *cobra.Command {
	var (
		part    int
		sector  uint64
		text    string
		in      string
		fill    string
		sizeStr string
		force   bool
		verify  bool
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write data to a partition or unallocated region",
		Long: "Write data sector by sector. The last sector is zero padded.\n" +
			"Without --partition the first unallocated region is used.",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !force && !flags.emulate {
				return fmt.Errorf("--force is required for device operations")
			}
			data, err := payload(text, in, fill, sizeStr)
			if err != nil {
				return err
			}

			g, _, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			idx, p, err := pickPartition(g, part)
			if err != nil {
				return err
			}
			start := p.StartSector + sector

			fmt.Printf("Writing %s to partition %d (%s) at sector %d...\n",
				humanize.IBytes(uint64(len(data))), idx+1, p, start)
			n, err := g.WriteData(p, start, data)
			if err != nil {
				return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err)
			}
			fmt.Printf("Write complete: %d bytes\n", n)

			if !verify {
				return nil
			}
			back, err := g.ReadData(p, start, uint64(len(data)))
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			printDump(start, back)
			if !bytes.Equal(back, data) {
				return fmt.Errorf("verify: data read back differs from data written")
			}
			fmt.Println("Verify OK")
			return nil
		},
	}
	cmd.Flags().IntVar(&part, "partition", 0, "partition number as shown by info (0 = first unallocated)")
	cmd.Flags().Uint64Var(&sector, "sector", 0, "first sector, relative to the partition start")
	cmd.Flags().StringVar(&text, "data", "", "text to write")
	cmd.Flags().StringVar(&in, "in", "", "file to write")
	cmd.Flags().StringVar(&fill, "fill", "", "byte to repeat, in hex (e.g. AA), together with --size")
	cmd.Flags().StringVar(&sizeStr, "size", "512", "bytes to fill")
	cmd.Flags().BoolVar(&force, "force", false, "confirm writing to the device")
	cmd.Flags().BoolVar(&verify, "verify", false, "read the data back and dump it")
	return cmd
}

// payload returns the bytes selected by exactly one of text, in or fill.
func payload(text, in, fill, sizeStr string) ([]byte, error) {
	set := 0
	for _, s := range []string{text, in, fill} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --data, --in or --fill is required")
	}

	switch {
	case text != "":
		return []byte(text), nil
	case in != "":
		return os.ReadFile(in)
	}

	b, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fill), "0x"), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid --fill: %w", err)
	}
	size, err := parseSize(sizeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --size: %w", err)
	}
	return bytes.Repeat([]byte{byte(b)}, int(size)), nil
}

func newMapCmd(flags *diskFlags) *cobra.Command {
	var selected int
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the partition layout as a full-screen sector map",
		RunE: func(_ *cobra.Command, _ []string) error {
			g, _, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			ui, err := diskview.NewUI()
			if err != nil {
				return fmt.Errorf("init screen: %w", err)
			}
			defer ui.Close()
			return diskview.NewViewer(ui, g, selected-1).Run()
		},
	}
	cmd.Flags().IntVar(&selected, "select", 1, "partition to highlight first")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "dskgeom",
		Short: "Disk geometry inspector and sector editor",
		Long: "Show the partition layout of images or devices, including unallocated\n" +
			"regions, and read or write whole sectors inside any of them",
		SilenceUsage: true,
	}

	flags := &diskFlags{}
	flags.register(root)

	root.AddCommand(newInfoCmd(flags))
	root.AddCommand(newReadCmd(flags))
	root.AddCommand(newWriteCmd(flags))
	root.AddCommand(newMapCmd(flags))
	root.AddCommand(newCopyCmd(flags))
	root.AddCommand(newDeviceCmd(flags))

	must(root.Execute())
}
