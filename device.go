package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dskgeom/blockdev"
)

func sizeString(n uint64) string {
	if n == 0 {
		return "-"
	}
	return humanize.IBytes(n)
}

func newDeviceCmd(flags *diskFlags) *cobra.Command {
	// Device discovery command (read-only; never writes)
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device related utilities (safe, read-only)",
	}

	var listAll bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List whole-disk devices usable with --device (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := blockdev.Discover()
			if err != nil {
				return err
			}
			dev := &blockdev.Device{Log: flags.logger()}

			fmt.Printf("OS: %s\n", runtime.GOOS)
			fmt.Println("This is a SAFE, read-only listing. Nothing is written.")
			fmt.Println()
			fmt.Println("Compatible devices (usable with --device):")
			fmt.Printf("  %-18s  %-14s  %-20s  %-8s\n", "Path", "Type", "Serial", "Size")
			printed := false
			for _, d := range infos {
				if !d.Whole {
					continue
				}
				det := dev.Describe(d.Path)
				fmt.Printf("  %-18s  %-14s  %-20s  %-8s\n", d.Path, det.Kind, det.Serial, sizeString(det.Size))
				printed = true
			}
			if !printed {
				fmt.Println("  <none detected>")
			}
			fmt.Println()

			if listAll {
				fmt.Println("Non-compatible/partitions (use the whole disk with --device):")
				for _, d := range infos {
					if d.Whole {
						continue
					}
					reason := d.Reason
					if strings.TrimSpace(reason) == "" {
						reason = "not a whole-disk device"
					}
					fmt.Printf("  %s  (%s)\n", d.Path, reason)
				}
				fmt.Println()
			}

			mounts, err := blockdev.Mounts()
			if err != nil {
				flags.logger().WithError(err).Warn("could not list mounted volumes")
			}
			if len(mounts) > 0 && runtime.GOOS != "linux" {
				fmt.Println("Mounted volumes:")
				fmt.Printf("  %-24s  %-14s  %-18s  %-8s\n", "Mount", "FS", "Device", "Size")
				for _, m := range mounts {
					fmt.Printf("  %-24s  %-14s  %-18s  %-8s\n", m.MountPoint, m.FSType, m.Device, sizeString(uint64(max(0, m.SizeBytes))))
				}
				fmt.Println()
			}

			fmt.Println("Notes:")
			switch runtime.GOOS {
			case "darwin":
				fmt.Println("  - Whole disks are typically /dev/diskN. Partitions like /dev/diskNsM show up as partitions of the disk.")
			case "linux":
				fmt.Println("  - Whole disks: /dev/sdX, /dev/vdX, /dev/nvmeXnY, /dev/mmcblkX. Partitions are read from sysfs.")
			case "windows":
				fmt.Println("  - Raw access needs an elevated prompt. Drive letters (\\\\.\\E:) map to their physical drive.")
			}
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listAll, "all", false, "include partitions and inaccessible devices in output")
	deviceCmd.AddCommand(listCmd)

	// device info --path <mountpoint or device>
	var infoPath string
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show detailed info about a mount point or device (read-only)",
		RunE: func(_ *cobra.Command, _ []string) error {
			if strings.TrimSpace(infoPath) == "" {
				return fmt.Errorf("--path is required")
			}
			dev, mnt, err := blockdev.Resolve(infoPath)
			if err != nil {
				return err
			}
			whole := blockdev.WholeDevice(dev)
			det := (&blockdev.Device{Log: flags.logger()}).Describe(whole)

			fmt.Println("Path info")
			fmt.Printf("  Input:   %s\n", infoPath)
			fmt.Printf("  Device:  %s\n", dev)
			if mnt != "" {
				fmt.Printf("  Mounted: %s\n", mnt)
			}
			fmt.Printf("  Whole:   %s\n", whole)
			fmt.Printf("  Type:    %s\n", det.Kind)
			if det.Serial != "" {
				fmt.Printf("  Serial:  %s\n", det.Serial)
			}
			if det.Size > 0 {
				fmt.Printf("  Size:    %s\n", humanize.IBytes(det.Size))
			}
			if det.Media != "" {
				fmt.Printf("  Media:   %s\n", det.Media)
			}
			return nil
		},
	}
	infoCmd.Flags().StringVar(&infoPath, "path", "", "mount point (e.g. /Volumes/XYZ) or device path (e.g. /dev/disk2)")
	_ = infoCmd.MarkFlagRequired("path")
	deviceCmd.AddCommand(infoCmd)

	return deviceCmd
}
