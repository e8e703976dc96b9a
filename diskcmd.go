package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/journal"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/workflow"
)

var errNeedForce = errors.New("refusing to write without --force")

// devicePath resolves --device, falling back to the configured SD device.
func devicePath(opts *globalOptions, flag string) (string, error) {
	if strings.TrimSpace(flag) == "" {
		a, err := newApp(opts.config)
		if err != nil {
			return "", err
		}
		defer a.Close()
		return a.cfg.Devices.SD, nil
	}
	dev, _, err := resolvePathToDevice(flag)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(dev, "/dev/") {
		dev = wholeDevice(runtime.GOOS, dev)
	}
	return dev, nil
}

// journaled runs a write against the sector at lba of dev and stores the
// sector before and after in the journal when one is configured.
func journaled(opts *globalOptions, path, kind string, dev blockio.Sectors, lba uint64, details map[string]any, fn func() error) error {
	a, err := newApp(opts.config)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.journal == nil {
		return fn()
	}

	id, err := a.journal.Begin(path, kind, details)
	if err != nil {
		return err
	}
	if before, err := dev.ReadSectors(lba, 1); err == nil {
		_ = a.journal.Snapshot(id, journal.PhaseBefore, lba, before)
	}
	if err := fn(); err != nil {
		_ = a.journal.Finish(id, journal.StatusFailed)
		return err
	}
	if after, err := dev.ReadSectors(lba, 1); err == nil {
		_ = a.journal.Snapshot(id, journal.PhaseAfter, lba, after)
	}
	fmt.Printf("INFO: journaled as %s\n", id[:8])
	return a.journal.Finish(id, journal.StatusSucceeded)
}

func infoCmd(opts *globalOptions) *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show capacity and partition table of a device, image or mount point (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := devicePath(opts, device)
			if err != nil {
				return err
			}
			dev, err := blockio.Open(path, false)
			if err != nil {
				return err
			}
			defer dev.Close()
			info := dev.Info()

			fmt.Println("Path info")
			fmt.Printf("  Device:  %s\n", path)
			fmt.Printf("  Size:    %s (%d sectors of %d bytes)\n", humanize.IBytes(info.TotalBytes()), info.SizeInSectors, info.SectorSize)
			for _, line := range workflow.DeviceSummary(dev, info) {
				fmt.Printf("  %s\n", line)
			}
			m, err := partition.ReadTable(dev)
			if err == nil {
				s := partition.Inspect(m, info)
				fmt.Printf("  Free:    %s behind the last partition\n", humanize.IBytes(s.FreeBytes))
				if s.NeedsOrderFix() {
					fmt.Println("WARNING: the FAT32 partition is not the first entry, run fix-order")
				}
			}
			if _, err := partition.ReadBackup(dev); err == nil {
				fmt.Println("INFO: a backup MBR is present at sector 1")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device, image or mount point (default: the configured SD device)")
	return cmd
}

func fixOrderCmd(opts *globalOptions) *cobra.Command {
	var (
		device string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "fix-order",
		Short: "Move the FAT32 partition into the first MBR slot",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := devicePath(opts, device)
			if err != nil {
				return err
			}
			dev, err := blockio.Open(path, false)
			if err != nil {
				return err
			}
			defer dev.Close()

			m, err := partition.ReadTable(dev)
			if err != nil {
				return err
			}
			s := partition.Inspect(m, dev.Info())
			switch {
			case s.FATIndex < 0:
				return errors.New("no FAT32 partition found")
			case !s.NeedsOrderFix():
				fmt.Println("FAT32 partition is already the first partition.")
				return nil
			}
			fmt.Printf("FAT32 partition found in slot %d, it will be moved to slot 1.\n", s.FATIndex+1)
			if !force {
				return errNeedForce
			}
			err = journaled(opts, path, "fix-order", dev, 0, map[string]any{"from_slot": s.FATIndex}, func() error {
				return partition.FixPartitionOrder(dev)
			})
			if err != nil {
				return err
			}
			if err := dev.Sync(); err != nil {
				return err
			}
			fmt.Println("Partition order fixed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device or image (default: the configured SD device)")
	cmd.Flags().BoolVar(&force, "force", false, "write the reordered table")
	return cmd
}

func mbrCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mbr",
		Short: "Back up and restore the partition table sectors",
	}

	var (
		device, out string
		withBackup  bool
	)
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Copy sector 0 (and optionally the backup at sector 1) into a file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := devicePath(opts, device)
			if err != nil {
				return err
			}
			count := uint32(1)
			if withBackup {
				count = 2
			}
			return dumpSectors(path, out, count)
		},
	}
	dump.Flags().StringVar(&device, "device", "", "device or image (default: the configured SD device)")
	dump.Flags().StringVar(&out, "out", "", "output file")
	dump.Flags().BoolVar(&withBackup, "with-backup", false, "include the backup sector 1")
	_ = dump.MarkFlagRequired("out")

	var (
		in    string
		force bool
	)
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Write a dumped sector back to sector 0",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := devicePath(opts, device)
			if err != nil {
				return err
			}
			return restoreSector(opts, in, path, force)
		},
	}
	restore.Flags().StringVar(&device, "device", "", "device or image (default: the configured SD device)")
	restore.Flags().StringVar(&in, "in", "", "file written by mbr dump")
	restore.Flags().BoolVar(&force, "force", false, "overwrite sector 0")
	_ = restore.MarkFlagRequired("in")

	cmd.AddCommand(dump, restore)
	return cmd
}

func dumpSectors(devicePath, imagePath string, count uint32) error {
	dev, err := blockio.Open(devicePath, false)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	data, err := dev.ReadSectors(0, count)
	if err != nil {
		return fmt.Errorf("read device: %w", err)
	}
	if !mbr.HasSignature(data[:dev.Info().SectorSize]) {
		fmt.Println("WARNING: sector 0 carries no MBR signature")
	}
	if err := os.WriteFile(imagePath, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("Copied %d sector(s) of %s to %s\n", count, devicePath, imagePath)
	return nil
}

func restoreSector(opts *globalOptions, imagePath, devicePath string, force bool) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	dev, err := blockio.Open(devicePath, false)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	ss := int(dev.Info().SectorSize)
	if len(data) < ss || len(data)%ss != 0 {
		return fmt.Errorf("image is %d bytes, not a whole number of %d byte sectors", len(data), ss)
	}
	sector := data[:ss]
	m, err := mbr.Decode(sector)
	if err != nil {
		return fmt.Errorf("image does not hold a partition table: %w", err)
	}
	fmt.Printf("Image holds %d partition(s):\n", m.Count())
	for i, e := range m.Entries {
		if !e.IsEmpty() {
			fmt.Printf("  P%d: %s start %d, %d sectors\n", i+1, e.Type(), e.Start(), e.Sectors())
		}
	}
	if !force {
		return errNeedForce
	}
	err = journaled(opts, devicePath, "mbr-restore", dev, 0, map[string]any{"source": imagePath}, func() error {
		return dev.WriteSectors(0, sector)
	})
	if err != nil {
		return fmt.Errorf("write device: %w", err)
	}
	if err := dev.Sync(); err != nil {
		return fmt.Errorf("sync device: %w", err)
	}
	fmt.Printf("Sector 0 of %s restored from %s\n", devicePath, imagePath)
	return nil
}
