package partition

import (
	"errors"
	"fmt"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/mbr"
)

// BackupLBA is the sector the partial reformat parks the old table in.
const BackupLBA = 1

// ReadTable reads the table from sector 0.
func ReadTable(dev blockio.Sectors) (*mbr.MBR, error) {
	_, m, err := mbr.ReadSector(dev, 0)
	return m, err
}

// AddSecondPartition reads the table the format routine just wrote,
// places the WFS partition behind slot 0 in the last slot and stamps the
// signature on its first sector. ok is false when no space remained.
func AddSecondPartition(dev blockio.Sectors) (entry mbr.Entry, ok bool, err error) {
	raw, m, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return mbr.Entry{}, false, fmt.Errorf("read formatted table: %w", err)
	}
	entry, ok = PlanSecondPartition(m, dev.Info())
	if !ok {
		return mbr.Entry{}, false, nil
	}
	m.Entries[auxSlot] = entry
	if err := mbr.Write(dev, 0, raw, m); err != nil {
		return mbr.Entry{}, false, err
	}
	if err := mbr.WriteSignatureOnly(dev, uint64(entry.Start())); err != nil {
		return entry, true, err
	}
	return entry, true, nil
}

// CreateAuxiliary adds a WFS partition behind the existing ones.
func CreateAuxiliary(dev blockio.Sectors) (mbr.Entry, error) {
	raw, m, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return mbr.Entry{}, err
	}
	entry, err := AddAuxiliary(m, dev.Info())
	if err != nil {
		return mbr.Entry{}, err
	}
	if err := mbr.Write(dev, 0, raw, m); err != nil {
		return mbr.Entry{}, err
	}
	if err := mbr.WriteSignatureOnly(dev, uint64(entry.Start())); err != nil {
		return entry, err
	}
	return entry, nil
}

// FixPartitionOrder applies FixOrder to the table on dev. It returns
// ErrOrderAlreadyOK without writing when there is nothing to move.
func FixPartitionOrder(dev blockio.Sectors) error {
	raw, m, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return err
	}
	if err := FixOrder(m); err != nil {
		return err
	}
	return mbr.Write(dev, 0, raw, m)
}

// BackupTable copies sector 0 verbatim to BackupLBA and returns the table it
// held.
func BackupTable(dev blockio.Sectors) (*mbr.MBR, error) {
	raw, m, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return nil, err
	}
	if err := dev.WriteSectors(BackupLBA, raw); err != nil {
		return nil, fmt.Errorf("write backup table: %w", err)
	}
	return m, nil
}

// RestoreTrailing splices slots 1 to 3 of backup into the freshly written
// table on dev.
func RestoreTrailing(dev blockio.Sectors, backup *mbr.MBR) error {
	raw, fresh, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return fmt.Errorf("read formatted table: %w", err)
	}
	MergeTrailing(fresh, backup)
	return mbr.Write(dev, 0, raw, fresh)
}

// ReadBackup returns the table parked at BackupLBA, or ErrNoBackup.
func ReadBackup(dev blockio.Sectors) (*mbr.MBR, error) {
	_, m, err := mbr.ReadSector(dev, BackupLBA)
	if errors.Is(err, mbr.ErrNoPartitionTable) {
		return nil, ErrNoBackup
	}
	return m, err
}

// RestoreBackup writes the parked sector back to sector 0 and clears the
// backup slot.
func RestoreBackup(dev blockio.Sectors) error {
	raw, err := dev.ReadSectors(BackupLBA, 1)
	if err != nil {
		return err
	}
	if !mbr.HasSignature(raw) {
		return ErrNoBackup
	}
	if err := dev.WriteSectors(0, raw); err != nil {
		return fmt.Errorf("restore table: %w", err)
	}
	return ClearBackup(dev)
}

// ClearBackup zeroes the backup slot.
func ClearBackup(dev blockio.Sectors) error {
	return mbr.ZeroSector(dev, BackupLBA)
}

// DeleteTable zeroes sector 0.
func DeleteTable(dev blockio.Sectors) error {
	return mbr.ZeroSector(dev, 0)
}
