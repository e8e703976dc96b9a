package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/partition"
)

// Device discovery (read-only)
type deviceInfo struct {
	Path       string
	Compatible bool
	Reason     string
}

type mountedVol struct {
	MountPoint string
	Device     string
	FSType     string
}

func devicesCmd() *cobra.Command {
	var listAll bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List block devices usable as SD or USB backing storage (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			infos, err := discoverDevices(runtime.GOOS, "/dev")
			if err != nil {
				return err
			}
			fmt.Printf("OS: %s\n", runtime.GOOS)
			fmt.Println("This is a SAFE, read-only listing. Nothing is written.")
			fmt.Println()
			fmt.Println("Whole disks (usable as devices.sd / devices.usb):")
			fmt.Printf("  %-18s  %-14s  %-20s  %-9s  %s\n", "Path", "Type", "Serial", "Size", "Layout")
			printed := false
			for _, d := range infos {
				if !d.Compatible {
					continue
				}
				dtype, serial, size, layout := deviceDetails(d.Path)
				fmt.Printf("  %-18s  %-14s  %-20s  %-9s  %s\n", d.Path, dtype, serial, size, layout)
				printed = true
			}
			if !printed {
				fmt.Println("  <none detected>")
			}
			fmt.Println()
			if listAll {
				fmt.Println("Partitions and other nodes (not usable):")
				for _, d := range infos {
					if !d.Compatible {
						fmt.Printf("  %s  (%s)\n", d.Path, d.Reason)
					}
				}
				fmt.Println()
			}
			if mvs := listMounted(); len(mvs) > 0 {
				fmt.Println("Mounted volumes:")
				fmt.Printf("  %-24s  %-10s  %s\n", "Mount", "FS", "Device")
				for _, m := range mvs {
					fmt.Printf("  %-24s  %-10s  %s\n", m.MountPoint, m.FSType, m.Device)
				}
				fmt.Println()
			}
			fmt.Println("Notes:")
			switch runtime.GOOS {
			case "darwin":
				fmt.Println("  - Whole disks are typically /dev/diskN. Partitions like /dev/diskNsM are not usable.")
			case "linux":
				fmt.Println("  - Whole disks: /dev/sdX, /dev/vdX, /dev/nvmeXnY, /dev/mmcblkX. Partitions are not usable.")
			}
			fmt.Println("  - Unmount every volume of a disk before handing it to the installer.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&listAll, "all", false, "include partitions and loop devices in the output")
	return cmd
}

func discoverDevices(goos, dir string) ([]deviceInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var infos []deviceInfo
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		switch goos {
		case "darwin":
			if !strings.HasPrefix(name, "disk") && !strings.HasPrefix(name, "rdisk") {
				continue
			}
			if isPartitionDarwin(name) {
				infos = append(infos, deviceInfo{Path: path, Reason: "partition"})
			} else {
				infos = append(infos, deviceInfo{Path: path, Compatible: true})
			}
		case "linux":
			switch {
			case isWholeLinuxDevice(name):
				infos = append(infos, deviceInfo{Path: path, Compatible: true})
			case isPartitionLinux(name):
				infos = append(infos, deviceInfo{Path: path, Reason: "partition"})
			case strings.HasPrefix(name, "loop"):
				infos = append(infos, deviceInfo{Path: path, Reason: "loop device"})
			}
		default:
			return nil, fmt.Errorf("unsupported OS: %s", goos)
		}
	}
	return infos, nil
}

// isPartitionDarwin matches diskNsM and rdiskNsM.
func isPartitionDarwin(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == 's' && name[i+1] >= '0' && name[i+1] <= '9' {
			return true
		}
	}
	return false
}

func isWholeLinuxDevice(name string) bool {
	// sdX, vdX
	if len(name) == 3 && (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && name[2] >= 'a' && name[2] <= 'z' {
		return true
	}
	// nvmeXnY
	if strings.HasPrefix(name, "nvme") && !strings.Contains(name, "p") {
		parts := strings.Split(name, "n")
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return true
		}
	}
	if strings.HasPrefix(name, "mmcblk") && len(name) > len("mmcblk") && !strings.Contains(name, "p") {
		return true
	}
	return false
}

func isPartitionLinux(name string) bool {
	// sdXN or vdXN
	if (strings.HasPrefix(name, "sd") || strings.HasPrefix(name, "vd")) && len(name) >= 4 {
		if name[len(name)-1] >= '0' && name[len(name)-1] <= '9' {
			return true
		}
	}
	// nvmeXnYpZ, mmcblkXpZ
	if (strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk")) && strings.Contains(name, "p") {
		return true
	}
	return false
}

// wholeDevice strips a partition suffix from a device path.
func wholeDevice(goos, dev string) string {
	b := filepath.Base(dev)
	dir := filepath.Dir(dev)
	switch goos {
	case "darwin":
		for i := 0; i+1 < len(b); i++ {
			if b[i] == 's' && b[i+1] >= '0' && b[i+1] <= '9' {
				return filepath.Join(dir, b[:i])
			}
		}
	case "linux":
		if !isPartitionLinux(b) {
			return dev
		}
		if idx := strings.LastIndexByte(b, 'p'); idx != -1 {
			return filepath.Join(dir, b[:idx])
		}
		return filepath.Join(dir, strings.TrimRight(b, "0123456789"))
	}
	return dev
}

// resolvePathToDevice maps a mount point onto the backing device. Device
// nodes and image files are returned as they are.
func resolvePathToDevice(p string) (device string, mountpoint string, err error) {
	p = filepath.Clean(p)
	st, err := os.Stat(p)
	if err != nil {
		return "", "", err
	}
	if !st.IsDir() {
		return p, "", nil
	}
	for _, m := range listMounted() {
		if m.MountPoint == p {
			return m.Device, m.MountPoint, nil
		}
	}
	return "", "", fmt.Errorf("cannot resolve device for %s", p)
}

// deviceDetails returns type, serial, human size and partition layout.
func deviceDetails(path string) (string, string, string, string) {
	dtype, serial, size, layout := "Disk", "-", "-", "-"
	if runtime.GOOS == "linux" {
		sysPath := filepath.Join("/sys/block", filepath.Base(path))
		if _, err := os.Stat(sysPath); err != nil {
			sysPath = filepath.Join("/sys/class/block", filepath.Base(path))
		}
		if b, err := os.ReadFile(filepath.Join(sysPath, "removable")); err == nil {
			if strings.TrimSpace(string(b)) == "1" {
				dtype = "Removable Disk"
			} else {
				dtype = "Fixed Disk"
			}
		}
		if b, err := os.ReadFile(filepath.Join(sysPath, "device", "serial")); err == nil {
			serial = strings.TrimSpace(string(b))
		}
	}
	dev, err := blockio.Open(path, false)
	if err != nil {
		return dtype, serial, size, layout
	}
	defer dev.Close()
	info := dev.Info()
	size = humanize.Bytes(info.TotalBytes())
	layout = describeLayout(dev, info)
	return dtype, serial, size, layout
}

func describeLayout(dev blockio.Sectors, info blockio.Info) string {
	_, m, err := mbr.ReadSector(dev, 0)
	if errors.Is(err, mbr.ErrNoPartitionTable) {
		return "no MBR"
	}
	if err != nil {
		return "unreadable"
	}
	s := partition.Inspect(m, info)
	switch {
	case s.Count == 0:
		return "empty MBR"
	case s.Count >= 2 && s.HasTrailingWFS && s.FATIndex == 0:
		return fmt.Sprintf("FAT32 + Wii U (%d partitions)", s.Count)
	case s.FATIndex > 0:
		return fmt.Sprintf("FAT32 not first (%d partitions)", s.Count)
	}
	return fmt.Sprintf("MBR, %d partitions", s.Count)
}
