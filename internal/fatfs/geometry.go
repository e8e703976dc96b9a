// Package fatfs lays out a FAT16 or FAT32 volume inside the first partition
// of a device. It is the host side stand-in for the console's native format
// routine: it writes a fresh MBR with a single slot 0 entry and the volume's
// boot sector, FSInfo, FATs and root directory.
package fatfs

import (
	"errors"
	"fmt"
)

// Type is the FAT bit width.
type Type int

const (
	FAT16 Type = 16
	FAT32 Type = 32
)

func (t Type) String() string { return fmt.Sprintf("FAT%d", int(t)) }

type geom struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntries       uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	SectorsPerFAT32   uint32
	RootCluster       uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
}

func (g geom) totalSectors() uint32 {
	if g.TotalSectors16 != 0 {
		return uint32(g.TotalSectors16)
	}
	return g.TotalSectors32
}

// layout is the computed on-disk extent of each region, relative to the
// partition start.
type layout struct {
	fatSectors     uint32
	rootDirSectors uint32
	dataSectors    uint32
	clusters       uint32
}

func (l layout) fatStart(g geom) uint32 { return uint32(g.ReservedSectors) }
func (l layout) rootStart(g geom) uint32 {
	return uint32(g.ReservedSectors) + uint32(g.NumFATs)*l.fatSectors
}
func (l layout) dataStart(g geom) uint32 { return l.rootStart(g) + l.rootDirSectors }

// planGeometry picks BPB values for a partition of the given size. Cluster
// sizes follow the usual FAT sizing table and shrink when a small partition
// would otherwise fall under the cluster count minimum of the type.
func planGeometry(ft Type, sectors uint32, sectorSize uint16, hidden uint32) (geom, layout, error) {
	bytes := uint64(sectors) * uint64(sectorSize)
	g := geom{
		BytesPerSector:  sectorSize,
		ReservedSectors: 1,
		NumFATs:         2,
		Media:           0xF8,
		SectorsPerTrack: 63,
		NumHeads:        255,
		HiddenSectors:   hidden,
	}
	if sectors <= 0xFFFF {
		g.TotalSectors16 = uint16(sectors)
	} else {
		g.TotalSectors32 = sectors
	}

	switch ft {
	case FAT16:
		g.RootEntries = 512
		switch {
		case bytes <= 16<<20:
			g.SectorsPerCluster = 2
		case bytes <= 128<<20:
			g.SectorsPerCluster = 4
		case bytes <= 256<<20:
			g.SectorsPerCluster = 8
		case bytes <= 512<<20:
			g.SectorsPerCluster = 16
		case bytes <= 1<<30:
			g.SectorsPerCluster = 32
		default:
			g.SectorsPerCluster = 64
		}
	case FAT32:
		g.ReservedSectors = 32
		g.FSInfoSector = 1
		g.BackupBootSector = 6
		g.RootCluster = 2
		switch {
		case bytes <= 8<<30:
			g.SectorsPerCluster = 8
		case bytes <= 32<<30:
			g.SectorsPerCluster = 16
		default:
			g.SectorsPerCluster = 64
		}
	default:
		return geom{}, layout{}, fmt.Errorf("unsupported FAT type %d", ft)
	}

	for {
		l, err := computeLayout(ft, &g)
		if err == nil {
			return g, l, nil
		}
		if !errors.Is(err, errTooFewClusters) || g.SectorsPerCluster == 1 {
			return geom{}, layout{}, fmt.Errorf("%s on %d sectors: %w", ft, sectors, err)
		}
		g.SectorsPerCluster /= 2
		g.SectorsPerFAT16, g.SectorsPerFAT32 = 0, 0
	}
}

var (
	errTooFewClusters  = errors.New("too few clusters")
	errTooManyClusters = errors.New("too many clusters")
)

// computeLayout iterates the FAT size until it covers every cluster of the
// data area that remains after it.
func computeLayout(ft Type, g *geom) (layout, error) {
	total := int64(g.totalSectors())
	bps := int64(g.BytesPerSector)
	var l layout
	if ft == FAT16 {
		l.rootDirSectors = uint32((int64(g.RootEntries)*32 + bps - 1) / bps)
	}

	fat := int64(1)
	for i := 0; i < 8; i++ {
		data := total - int64(g.ReservedSectors) - int64(g.NumFATs)*fat - int64(l.rootDirSectors)
		if data <= 0 {
			return layout{}, errTooFewClusters
		}
		clusters := data / int64(g.SectorsPerCluster)
		entryBytes := int64(2)
		if ft == FAT32 {
			entryBytes = 4
		}
		need := ((clusters+2)*entryBytes + bps - 1) / bps
		if need == fat {
			break
		}
		fat = need
	}
	// settle on the last computed size even if the iteration did not converge
	data := total - int64(g.ReservedSectors) - int64(g.NumFATs)*fat - int64(l.rootDirSectors)
	if data <= 0 {
		return layout{}, errTooFewClusters
	}
	l.dataSectors = uint32(data)
	l.clusters = uint32(data / int64(g.SectorsPerCluster))
	l.fatSectors = uint32(fat)
	if ft == FAT32 {
		g.SectorsPerFAT32 = l.fatSectors
	} else {
		g.SectorsPerFAT16 = uint16(l.fatSectors)
	}

	switch {
	case ft == FAT16 && l.clusters < 4085, ft == FAT32 && l.clusters < 65525:
		return layout{}, fmt.Errorf("%w: %d", errTooFewClusters, l.clusters)
	case ft == FAT16 && l.clusters > 65524, ft == FAT32 && l.clusters > 0x0FFFFFF5:
		return layout{}, fmt.Errorf("%w: %d", errTooManyClusters, l.clusters)
	}
	return l, nil
}
