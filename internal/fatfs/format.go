package fatfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/mbr"
)

// fat16Limit is the largest partition formatted as FAT16 when the caller does
// not force a type.
const fat16Limit = 2 << 30

// zeroChunk bounds a single zeroing write.
const zeroChunk = 1 << 20

// Options controls FormatDevice.
type Options struct {
	// Sectors is the partition size. Zero uses the rest of the device.
	Sectors uint32
	// Type forces the FAT width. Zero picks FAT16 below 2 GiB, FAT32 above.
	Type     Type
	Label    string
	OEM      string
	VolumeID uint32
	// Progress, when set, is called after every system area write.
	Progress func(done, total uint64)
}

// Result describes the partition FormatDevice created.
type Result struct {
	Type     Type
	Start    uint32
	Sectors  uint32
	Clusters uint32
}

// PartitionStart is where the first partition is placed: a 1 MiB boundary.
func PartitionStart(sectorSize uint32) uint32 {
	return (1 << 20) / sectorSize
}

// FormatDevice replaces the partition table of dev with a single slot 0 FAT
// partition and builds an empty volume in it.
func FormatDevice(dev blockio.Sectors, opts Options) (Result, error) {
	info := dev.Info()
	ss := info.SectorSize
	if ss < 512 || ss > 4096 || ss&(ss-1) != 0 {
		return Result{}, fmt.Errorf("unsupported sector size %d", ss)
	}
	start := PartitionStart(ss)
	if info.SizeInSectors <= uint64(start) {
		return Result{}, fmt.Errorf("device of %d sectors is too small", info.SizeInSectors)
	}
	avail := info.SizeInSectors - uint64(start)
	if avail > 0xFFFFFFFF {
		avail = 0xFFFFFFFF
	}
	sectors := opts.Sectors
	if sectors == 0 || uint64(sectors) > avail {
		sectors = uint32(avail)
	}
	ft := opts.Type
	if ft == 0 {
		ft = FAT32
		if uint64(sectors)*uint64(ss) < fat16Limit {
			ft = FAT16
		}
	}
	label := opts.Label
	if label == "" {
		label = "NO NAME"
	}
	oem := opts.OEM
	if oem == "" {
		oem = defaultOEM
	}
	volID := opts.VolumeID
	if volID == 0 {
		volID = uint32(time.Now().Unix())
	}

	g, l, err := planGeometry(ft, sectors, uint16(ss), start)
	if err != nil {
		return Result{}, err
	}

	table := &mbr.MBR{}
	ptype := mbr.TypeFAT32LBA
	if ft == FAT16 {
		ptype = mbr.TypeFAT16LBA
	}
	table.Entries[0] = mbr.NewEntry(ptype, start, sectors)
	sector0 := make([]byte, ss)
	table.EncodeInto(sector0)
	if err := dev.WriteSectors(0, sector0); err != nil {
		return Result{}, fmt.Errorf("write partition table: %w", err)
	}

	base := uint64(start)
	system := uint64(l.dataStart(g))
	if ft == FAT32 {
		system += uint64(g.SectorsPerCluster)
	}
	if err := zeroSpan(dev, base, system, opts.Progress); err != nil {
		return Result{}, err
	}

	var writes []sectorWrite
	if ft == FAT32 {
		boot := buildBootSector32(g, label, oem, volID)
		fsinfo := buildFSInfo(uint16(ss), l.clusters-1)
		writes = append(writes,
			sectorWrite{base, boot},
			sectorWrite{base + uint64(g.FSInfoSector), fsinfo},
			sectorWrite{base + uint64(g.BackupBootSector), boot},
			sectorWrite{base + uint64(g.BackupBootSector) + 1, fsinfo},
		)
	} else {
		writes = append(writes, sectorWrite{base, buildBootSector16(g, label, oem, volID)})
	}
	fat := firstFATSector(ft, uint16(ss), g.Media)
	for i := uint64(0); i < uint64(g.NumFATs); i++ {
		writes = append(writes, sectorWrite{base + uint64(l.fatStart(g)) + i*uint64(l.fatSectors), fat})
	}
	root := make([]byte, ss)
	copy(root, buildLabelEntry(label))
	if ft == FAT32 {
		writes = append(writes, sectorWrite{base + uint64(l.dataStart(g)), root})
	} else {
		writes = append(writes, sectorWrite{base + uint64(l.rootStart(g)), root})
	}
	for _, w := range writes {
		if err := dev.WriteSectors(w.lba, w.data); err != nil {
			return Result{}, fmt.Errorf("write volume metadata at lba %d: %w", w.lba, err)
		}
	}

	return Result{Type: ft, Start: start, Sectors: sectors, Clusters: l.clusters}, nil
}

type sectorWrite struct {
	lba  uint64
	data []byte
}

func zeroSpan(dev blockio.Sectors, lba, count uint64, progress func(done, total uint64)) error {
	ss := uint64(dev.Info().SectorSize)
	per := uint64(zeroChunk) / ss
	zero := make([]byte, per*ss)
	for done := uint64(0); done < count; {
		n := per
		if count-done < n {
			n = count - done
		}
		if err := dev.WriteSectors(lba+done, zero[:n*ss]); err != nil {
			return fmt.Errorf("zero system area at lba %d: %w", lba+done, err)
		}
		done += n
		if progress != nil {
			progress(done, count)
		}
	}
	return nil
}

// Probe reports whether sector looks like a FAT boot sector and which width
// it declares.
func Probe(sector []byte) (Type, bool) {
	if len(sector) < 512 || sector[510] != 0x55 || sector[511] != 0xAA {
		return 0, false
	}
	if sector[0] != 0xEB && sector[0] != 0xE9 {
		return 0, false
	}
	bps := binary.LittleEndian.Uint16(sector[11:])
	spc := sector[13]
	if bps < 512 || bps > 4096 || bps&(bps-1) != 0 || spc == 0 || spc&(spc-1) != 0 {
		return 0, false
	}
	switch {
	case binary.LittleEndian.Uint16(sector[22:]) == 0 && bytes.HasPrefix(sector[82:], []byte("FAT32")):
		return FAT32, true
	case bytes.HasPrefix(sector[54:], []byte("FAT1")):
		return FAT16, true
	}
	return 0, false
}
