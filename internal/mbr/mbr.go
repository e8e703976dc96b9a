// Package mbr decodes and encodes the classic 512 byte Master Boot Record.
//
// Entries keep their raw 16 bytes so that slots nobody touches are written
// back byte for byte, including the CHS and status fields this package does
// not interpret.
package mbr

import (
	"errors"
	"fmt"
)

const (
	// Size is the length of the MBR structure at the start of sector 0.
	Size = 512
	// NumEntries is the number of primary partition slots.
	NumEntries = 4

	bootCodeSize = 446
	tableOffset  = 446
	entrySize    = 16
	sigOffset    = 510

	typeOffset    = 4
	startOffset   = 8
	sectorsOffset = 12
)

// ErrNoPartitionTable is returned when the 0x55AA signature is missing.
var ErrNoPartitionTable = errors.New("no partition table")

// Entry is one raw partition table record.
type Entry [entrySize]byte

// NewEntry builds an entry with only type, start and size set.
func NewEntry(t Type, start, sectors uint32) Entry {
	var e Entry
	e.SetType(t)
	e.SetStart(start)
	e.SetSectors(sectors)
	return e
}

func (e Entry) Type() Type { return Type(e[typeOffset]) }
func (e Entry) Start() uint32 { return Read32LE(e[startOffset:]) }
func (e Entry) Sectors() uint32 { return Read32LE(e[sectorsOffset:]) }
func (e Entry) IsEmpty() bool { return e.Type() == TypeEmpty }

// End returns the first sector past the partition.
func (e Entry) End() uint64 { return uint64(e.Start()) + uint64(e.Sectors()) }

func (e *Entry) SetType(t Type) { e[typeOffset] = byte(t) }
func (e *Entry) SetStart(lba uint32) { Write32LE(e[startOffset:], lba) }
func (e *Entry) SetSectors(n uint32) { Write32LE(e[sectorsOffset:], n) }

// MBR is a decoded boot record. BootCode is opaque and passed through.
type MBR struct {
	BootCode [bootCodeSize]byte
	Entries  [NumEntries]Entry
}

// HasSignature reports whether buf ends its first 512 bytes with 0x55AA.
func HasSignature(buf []byte) bool {
	return len(buf) >= Size && buf[sigOffset] == 0x55 && buf[sigOffset+1] == 0xAA
}

// Decode parses buf, returning ErrNoPartitionTable when the signature is
// invalid regardless of what the table bytes hold.
func Decode(buf []byte) (*MBR, error) {
	if len(buf) < Size {
		return nil, fmt.Errorf("mbr: short buffer (%d bytes)", len(buf))
	}
	if !HasSignature(buf) {
		return nil, ErrNoPartitionTable
	}
	return parse(buf), nil
}

func parse(buf []byte) *MBR {
	m := &MBR{}
	copy(m.BootCode[:], buf[:bootCodeSize])
	for i := range m.Entries {
		off := tableOffset + i*entrySize
		copy(m.Entries[i][:], buf[off:off+entrySize])
	}
	return m
}

// Encode serializes m into a fresh 512 byte buffer with the signature set.
func (m *MBR) Encode() []byte {
	buf := make([]byte, Size)
	m.EncodeInto(buf)
	return buf
}

// EncodeInto writes m over the first 512 bytes of sector, which may be a
// larger device sector whose tail is left alone.
func (m *MBR) EncodeInto(sector []byte) {
	copy(sector[:bootCodeSize], m.BootCode[:])
	for i, e := range m.Entries {
		copy(sector[tableOffset+i*entrySize:], e[:])
	}
	SetSignature(sector)
}

// SetSignature stamps 0x55AA at bytes 510 and 511.
func SetSignature(sector []byte) {
	sector[sigOffset] = 0x55
	sector[sigOffset+1] = 0xAA
}

// ClearTable zeroes all four slots.
func (m *MBR) ClearTable() {
	m.Entries = [NumEntries]Entry{}
}

// Count returns the number of non-empty slots.
func (m *MBR) Count() int {
	n := 0
	for _, e := range m.Entries {
		if !e.IsEmpty() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *MBR) Clone() *MBR {
	c := *m
	return &c
}

// Read32LE composes a little-endian u32 one byte at a time.
func Read32LE(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}

// Write32LE stores v little-endian one byte at a time.
func Write32LE(p []byte, v uint32) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
	p[3] = byte(v >> 24)
}
