package workflow

import (
	"errors"
	"fmt"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/partition"
)

const mib = 1024 * 1024

// DeviceSummary describes capacity and partition table for the user to
// recognise the device by.
func DeviceSummary(dev blockio.Sectors, info blockio.Info) []string {
	total := info.TotalBytes()
	sizeMB := float64(total) / mib
	var lines []string
	if total < partition.MinPartitionableBytes {
		lines = append(lines, fmt.Sprintf("Capacity: %.0f MB", sizeMB))
	} else {
		lines = append(lines, fmt.Sprintf("Capacity: %.2f GB", sizeMB/1024))
	}

	_, m, err := mbr.ReadSector(dev, 0)
	switch {
	case errors.Is(err, mbr.ErrNoPartitionTable):
		return append(lines, "No MBR found! Wii U Formatted?")
	case err != nil:
		return append(lines, "Failed to read MBR.")
	}
	lines = append(lines, "Existing partitions:")
	for i, e := range m.Entries {
		if e.Type() == mbr.TypeEmpty {
			continue
		}
		partMB := float64(e.Sectors()) * float64(info.SectorSize) / mib
		size := fmt.Sprintf("%.2f GB", partMB/1024)
		if partMB < 1024 {
			size = fmt.Sprintf("%.2f MB", partMB)
		}
		lines = append(lines, fmt.Sprintf("  P%d: %s (%s)", i+1, e.Type(), size))
	}
	return lines
}

func (w *Workflow) showDevice(s *session, extra ...string) {
	lines := append([]string{"Device Info:"}, DeviceSummary(s.dev, s.info)...)
	lines = append(lines, "")
	w.UI.Screen(append(lines, extra...)...)
}
