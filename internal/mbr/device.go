package mbr

import (
	"fmt"

	"github.com/zer00p/wafel-installer/internal/blockio"
)

// ReadSector returns the raw sector at lba together with its decoded MBR.
// The raw sector is returned even when the signature is missing.
func ReadSector(dev blockio.Sectors, lba uint64) ([]byte, *MBR, error) {
	raw, err := dev.ReadSectors(lba, 1)
	if err != nil {
		return nil, nil, err
	}
	m, err := Decode(raw)
	return raw, m, err
}

// Write encodes m over raw and writes the result to lba.
func Write(dev blockio.Sectors, lba uint64, raw []byte, m *MBR) error {
	m.EncodeInto(raw)
	if err := dev.WriteSectors(lba, raw); err != nil {
		return fmt.Errorf("write mbr at lba %d: %w", lba, err)
	}
	return nil
}

// WriteSignatureOnly sets the 0x55AA marker on the sector at lba and leaves
// the rest of its content untouched.
func WriteSignatureOnly(dev blockio.Sectors, lba uint64) error {
	raw, err := dev.ReadSectors(lba, 1)
	if err != nil {
		return fmt.Errorf("read sector %d: %w", lba, err)
	}
	SetSignature(raw)
	if err := dev.WriteSectors(lba, raw); err != nil {
		return fmt.Errorf("write sector %d: %w", lba, err)
	}
	return nil
}

// ZeroSector overwrites the sector at lba with zeroes.
func ZeroSector(dev blockio.Sectors, lba uint64) error {
	if err := dev.WriteSectors(lba, make([]byte, dev.Info().SectorSize)); err != nil {
		return fmt.Errorf("zero sector %d: %w", lba, err)
	}
	return nil
}
