package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"dskgeom/diskgeom"
)

/* ===================== Copy operations ===================== */

// Whole-disk copies use a backend handle directly: the facade rejects
// full-sector requests near the end of a partition.

// chunkBytes rounds blockSize down to whole sectors, at least one.
func chunkBytes(blockSize int64, bps uint32) uint64 {
	b := uint64(bps)
	if blockSize <= 0 {
		return b
	}
	return max(1, uint64(blockSize)/b) * b
}

// closeInto closes h and folds a close failure into *err.
func closeInto(h diskgeom.Handle, err *error) {
	cerr := h.Close()
	if cerr == nil {
		return
	}
	if *err == nil {
		*err = cerr
		return
	}
	*err = multierror.Append(*err, cerr)
}

type progress struct {
	done, total uint64
	lastShown   uint64
}

func (pr *progress) add(n uint64) {
	pr.done += n
	if pr.done-pr.lastShown >= 8*1024*1024 || pr.done >= pr.total {
		percent := float64(pr.done) * 100.0 / float64(pr.total)
		fmt.Printf("\rProgress: %s / %s (%.1f%%)", humanize.IBytes(pr.done), humanize.IBytes(pr.total), percent)
		pr.lastShown = pr.done
	}
}

func copyDeviceToImage(g *diskgeom.DiskGeometry, b diskgeom.Backend, imagePath string, blockSize int64) (err error) {
	total := g.TotalSectors() * uint64(g.BytesPerSector())

	if err := os.MkdirAll(filepath.Dir(imagePath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	dst, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer dst.Close()
	if err := dst.Truncate(int64(total)); err != nil {
		return fmt.Errorf("size image: %w", err)
	}

	src, err := b.Open(g.Device(), diskgeom.ReadOnly)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer closeInto(src, &err)

	fmt.Printf("Copying %s (%s) to %s...\n", g.Device(), humanize.IBytes(total), imagePath)

	buf := make([]byte, chunkBytes(blockSize, g.BytesPerSector()))
	pr := &progress{total: total}
	for pr.done < total {
		chunk := buf[:min(uint64(len(buf)), total-pr.done)]
		n, rerr := src.ReadAt(chunk, int64(pr.done))
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			fmt.Println()
			return fmt.Errorf("read device: %w", rerr)
		}
		if n == 0 {
			break
		}
		if _, err := dst.WriteAt(chunk[:n], int64(pr.done)); err != nil {
			fmt.Println()
			return fmt.Errorf("write image: %w", err)
		}
		pr.add(uint64(n))
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("sync image: %w", err)
	}

	fmt.Printf("\nCopy complete: %s copied\n", humanize.IBytes(pr.done))
	return nil
}

func copyImageToDevice(imagePath string, g *diskgeom.DiskGeometry, b diskgeom.Backend, blockSize int64) (err error) {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer src.Close()

	st, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}
	imageSize := uint64(st.Size())

	bps := uint64(g.BytesPerSector())
	deviceSize := g.TotalSectors() * bps
	if deviceSize < imageSize {
		return fmt.Errorf("device too small: has %s, need %s", humanize.IBytes(deviceSize), humanize.IBytes(imageSize))
	}

	fmt.Printf("Copying %s (%s) to %s...\n", imagePath, humanize.IBytes(imageSize), g.Device())
	if deviceSize > imageSize {
		fmt.Printf("WARNING: device is %s, only writing %s\n", humanize.IBytes(deviceSize), humanize.IBytes(imageSize))
	}
	if imageSize == 0 {
		fmt.Println("Copy complete: nothing to write")
		return nil
	}

	dst, err := b.Open(g.Device(), diskgeom.ReadWrite)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer closeInto(dst, &err)

	buf := make([]byte, chunkBytes(blockSize, uint32(bps)))
	pr := &progress{total: imageSize}
	for pr.done < imageSize {
		n := min(uint64(len(buf)), imageSize-pr.done)
		if _, err := src.ReadAt(buf[:n], int64(pr.done)); err != nil && !errors.Is(err, io.EOF) {
			fmt.Println()
			return fmt.Errorf("read image: %w", err)
		}
		// the device takes whole sectors; a short tail is zero padded
		padded := (n + bps - 1) / bps * bps
		clear(buf[n:padded])
		if _, err := dst.WriteAt(buf[:padded], int64(pr.done)); err != nil {
			fmt.Println()
			return fmt.Errorf("write device: %w", err)
		}
		pr.add(n)
	}

	fmt.Printf("\nCopy complete: %s written to device\n", humanize.IBytes(pr.done))
	return nil
}

func newCopyCmd(flags *diskFlags) *cobra.Command {
	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy data between devices and image files",
		Long:  "Copy a whole disk, partitions and unallocated regions alike, to an image (backup) or back (restore)",
	}

	var (
		out      string
		outBlock int64
		in       string
		inBlock  int64
		inForce  bool
	)
	toImage := &cobra.Command{
		Use:   "dev2img --device <device> --out <image>",
		Short: "Copy from device to image file (backup)",
		RunE: func(_ *cobra.Command, _ []string) error {
			g, b, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			return copyDeviceToImage(g, b, out, outBlock)
		},
	}
	toImage.Flags().StringVar(&out, "out", "", "output image file")
	toImage.Flags().Int64Var(&outBlock, "block-size", 64*1024, "bytes per read (rounded down to whole sectors)")
	_ = toImage.MarkFlagRequired("out")

	toDevice := &cobra.Command{
		Use:   "img2dev --in <image> --device <device>",
		Short: "Copy from image file to device (restore)",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !inForce && !flags.emulate {
				return fmt.Errorf("--force is required for device operations")
			}
			g, b, err := flags.open(flags.logger())
			if err != nil {
				return err
			}
			return copyImageToDevice(in, g, b, inBlock)
		},
	}
	toDevice.Flags().StringVar(&in, "in", "", "source image file")
	toDevice.Flags().Int64Var(&inBlock, "block-size", 64*1024, "bytes per write (rounded down to whole sectors)")
	toDevice.Flags().BoolVar(&inForce, "force", false, "confirm device operation")
	_ = toDevice.MarkFlagRequired("in")

	copyCmd.AddCommand(toImage)
	copyCmd.AddCommand(toDevice)
	return copyCmd
}
