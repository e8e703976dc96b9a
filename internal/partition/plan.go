// Package partition computes and applies the MBR layouts the installer
// works with: the FAT plus WFS split, the auxiliary WFS carve-out, the
// partition order fix and the partial reformat of partition 1.
//
// The pure functions here operate on decoded tables; the functions in
// disk.go read the table fresh from the device on every call.
package partition

import (
	"errors"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/mbr"
)

const (
	// AlignBytes is the boundary every partition after the first starts on.
	AlignBytes = 64 << 20
	// MinPartitionableBytes is the smallest device offered a FAT plus WFS split.
	MinPartitionableBytes = 2 << 30
	// MinAuxiliaryFreeBytes is the free tail required to add a WFS partition.
	MinAuxiliaryFreeBytes = 4 << 30
	// DefaultFATPercent is where the split slider starts.
	DefaultFATPercent = 80

	smallDeviceBytes = 1 << 30
	maxLBA           = 0xFFFFFFFF
	// auxSlot receives every partition this package adds.
	auxSlot = mbr.NumEntries - 1
)

var (
	// ErrNoSpace is returned when no auxiliary partition fits.
	ErrNoSpace = errors.New("no room for an additional partition")
	// ErrOrderAlreadyOK is returned when no FAT32 partition sits behind slot 0.
	ErrOrderAlreadyOK = errors.New("no FAT32 partition to move to the first slot")
	// ErrNoBackup is returned when sector 1 holds no table.
	ErrNoBackup = errors.New("no backup partition table")
)

// AlignSectors returns the alignment in sectors for the given sector size.
func AlignSectors(sectorSize uint32) uint64 {
	return AlignBytes / uint64(sectorSize)
}

// AlignUp rounds x up to the next multiple of a.
func AlignUp(x, a uint64) uint64 {
	return (x + a - 1) / a * a
}

// SupportsPartitioning reports whether the device is large enough to split.
func SupportsPartitioning(info blockio.Info) bool {
	return info.TotalBytes() >= MinPartitionableBytes
}

// DefaultPercent is the initial FAT share for the split slider.
func DefaultPercent(info blockio.Info) int {
	if info.TotalBytes() < smallDeviceBytes {
		return 100
	}
	return DefaultFATPercent
}

// FATSectors is the requested size of partition 1 for a FAT share of pct.
func FATSectors(info blockio.Info, pct int) uint32 {
	n := info.SizeInSectors * uint64(pct) / 100
	if n > maxLBA {
		n = maxLBA
	}
	return uint32(n)
}

// Survey summarizes the occupied slots of a table.
type Survey struct {
	Count int
	// LastOccupied is the first sector past the highest partition, at least 1.
	LastOccupied uint64
	// HasWFS is set when any slot is tagged 0x07.
	HasWFS bool
	// HasTrailingWFS is set when a slot after the first is tagged 0x07.
	HasTrailingWFS bool
	// FATIndex is the slot of the first FAT32 entry, -1 when absent.
	FATIndex int
	// FreeBytes is the unallocated space behind LastOccupied.
	FreeBytes uint64
}

// Inspect surveys m on a device of the given geometry. A nil table is
// reported as empty.
func Inspect(m *mbr.MBR, info blockio.Info) Survey {
	s := Survey{LastOccupied: 1, FATIndex: -1}
	if m != nil {
		for i, e := range m.Entries {
			if e.IsEmpty() {
				continue
			}
			s.Count++
			if e.Type() == mbr.TypeWFS {
				s.HasWFS = true
				if i > 0 {
					s.HasTrailingWFS = true
				}
			}
			if s.FATIndex < 0 && e.Type().IsFAT32() {
				s.FATIndex = i
			}
			if e.End() > s.LastOccupied {
				s.LastOccupied = e.End()
			}
		}
	}
	if info.SizeInSectors > s.LastOccupied {
		s.FreeBytes = (info.SizeInSectors - s.LastOccupied) * uint64(info.SectorSize)
	}
	return s
}

// CanCreateAuxiliary reports whether an auxiliary WFS partition fits.
func (s Survey) CanCreateAuxiliary() bool {
	return s.FreeBytes > MinAuxiliaryFreeBytes && s.Count > 0 && s.Count < mbr.NumEntries
}

// NeedsOrderFix reports whether a FAT32 partition sits behind slot 0.
func (s Survey) NeedsOrderFix() bool {
	return s.FATIndex > 0
}

// tailEntry builds a WFS entry from the aligned start to the end of device.
func tailEntry(from uint64, info blockio.Info) (mbr.Entry, bool) {
	start := AlignUp(from, AlignSectors(info.SectorSize))
	if start >= info.SizeInSectors || start > maxLBA {
		return mbr.Entry{}, false
	}
	size := info.SizeInSectors - start
	if size > maxLBA {
		size = maxLBA
	}
	return mbr.NewEntry(mbr.TypeWFS, uint32(start), uint32(size)), true
}

// PlanSecondPartition places the WFS partition behind the slot 0 partition
// written by the format routine. It reports false when nothing fits.
func PlanSecondPartition(m *mbr.MBR, info blockio.Info) (mbr.Entry, bool) {
	return tailEntry(m.Entries[0].End(), info)
}

// AddAuxiliary compacts the occupied slots of m towards slot 0, keeping
// their order, and adds a WFS partition behind the highest occupied sector
// in the last slot. The signature is set by the encoder.
func AddAuxiliary(m *mbr.MBR, info blockio.Info) (mbr.Entry, error) {
	s := Inspect(m, info)
	if !s.CanCreateAuxiliary() {
		return mbr.Entry{}, ErrNoSpace
	}
	e, ok := tailEntry(s.LastOccupied, info)
	if !ok {
		return mbr.Entry{}, ErrNoSpace
	}
	compact(m, -1)
	m.Entries[auxSlot] = e
	return e, nil
}

// FixOrder moves the first FAT32 entry to slot 0 followed by the remaining
// occupied entries in their table order; unused slots are zeroed.
func FixOrder(m *mbr.MBR) error {
	s := Inspect(m, blockio.Info{})
	if !s.NeedsOrderFix() {
		return ErrOrderAlreadyOK
	}
	compact(m, s.FATIndex)
	return nil
}

// compact rewrites the table with the occupied entries packed from slot 0.
// When first is a valid slot its entry is placed ahead of the others.
func compact(m *mbr.MBR, first int) {
	var packed []mbr.Entry
	if first >= 0 {
		packed = append(packed, m.Entries[first])
	}
	for i, e := range m.Entries {
		if i == first || e.IsEmpty() {
			continue
		}
		packed = append(packed, e)
	}
	m.ClearTable()
	copy(m.Entries[:], packed)
}

// MergeTrailing copies slots 1 to 3 of backup into fresh, leaving the newly
// formatted slot 0 in place.
func MergeTrailing(fresh, backup *mbr.MBR) {
	for i := 1; i < mbr.NumEntries; i++ {
		fresh.Entries[i] = backup.Entries[i]
	}
}
