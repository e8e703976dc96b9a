package blockio

import "fmt"

// Memory is a sparse in-memory Sectors implementation. Sectors never written
// read back as zeroes. The Fail hooks, when set, let callers inject faults.
type Memory struct {
	info    Info
	sectors map[uint64][]byte

	FailRead  func(lba uint64) error
	FailWrite func(lba uint64) error
}

// NewMemory returns an empty disk of the given geometry.
func NewMemory(sectorSize uint32, sizeInSectors uint64) *Memory {
	return &Memory{
		info:    Info{SectorSize: sectorSize, SizeInSectors: sizeInSectors},
		sectors: make(map[uint64][]byte),
	}
}

func (m *Memory) Info() Info { return m.info }

func (m *Memory) ReadSectors(lba uint64, count uint32) ([]byte, error) {
	if count == 0 || lba+uint64(count) > m.info.SizeInSectors {
		return nil, fmt.Errorf("%w: lba %d+%d out of range", ErrIO, lba, count)
	}
	ss := int(m.info.SectorSize)
	out := make([]byte, int(count)*ss)
	for i := uint64(0); i < uint64(count); i++ {
		if m.FailRead != nil {
			if err := m.FailRead(lba + i); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrIO, err)
			}
		}
		if s, ok := m.sectors[lba+i]; ok {
			copy(out[int(i)*ss:], s)
		}
	}
	return out, nil
}

func (m *Memory) WriteSectors(lba uint64, data []byte) error {
	ss := int(m.info.SectorSize)
	if len(data) == 0 || len(data)%ss != 0 {
		return fmt.Errorf("%w: write of %d bytes", ErrIO, len(data))
	}
	n := uint64(len(data) / ss)
	if lba+n > m.info.SizeInSectors {
		return fmt.Errorf("%w: lba %d+%d out of range", ErrIO, lba, n)
	}
	for i := uint64(0); i < n; i++ {
		if m.FailWrite != nil {
			if err := m.FailWrite(lba + i); err != nil {
				return fmt.Errorf("%w: %w", ErrIO, err)
			}
		}
	}
	for i := uint64(0); i < n; i++ {
		s := make([]byte, ss)
		copy(s, data[int(i)*ss:])
		m.sectors[lba+i] = s
	}
	return nil
}

// Sector returns a copy of one sector, for assertions.
func (m *Memory) Sector(lba uint64) []byte {
	out := make([]byte, m.info.SectorSize)
	copy(out, m.sectors[lba])
	return out
}
