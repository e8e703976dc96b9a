package workflow

import (
	"errors"
	"fmt"

	"github.com/zer00p/wafel-installer/internal/formatter"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

// formatWholeDrive formats the device as one FAT volume sized by the
// format routine.
func (w *Workflow) formatWholeDrive(s *session) ActionResult {
	w.showDevice(s)
	if !prompt.Confirm(w.UI, "WARNING: This will format the whole device and DELETE ALL DATA on it.\nDo you want to continue?") {
		w.transition(StateCancelled)
		return Continue
	}
	r := w.record(s, "format", nil, func() ActionResult {
		return w.retry("Failed to format device!", func() error {
			w.print("Formatting whole %s...", s.path)
			return w.Formatter.Format(s.path, formatter.FilesystemFAT, 0)
		})
	})
	if r != Done {
		return Continue
	}
	s.formatted = true
	w.transition(StateSuccess)
	return Done
}

// partitionDevice splits the device into a FAT32 partition of the chosen
// share and a WFS partition covering the rest.
func (w *Workflow) partitionDevice(s *session) ActionResult {
	pct, ok := w.partitionSlider(s)
	if !ok {
		w.transition(StateCancelled)
		return Continue
	}
	w.showDevice(s)
	if !prompt.Confirm(w.UI, "WARNING: This will RE-PARTITION the whole device and DELETE ALL DATA on it.\nDo you want to continue?") {
		w.transition(StateCancelled)
		return Continue
	}

	p1 := partition.FATSectors(s.info, pct)
	details := map[string]any{"percent": pct, "fat_sectors": p1}
	r := w.record(s, "partition", details, func() ActionResult {
		r := w.retry("Failed to format FAT32 partition!", func() error {
			w.print("Formatting FAT32 partition...")
			return w.Formatter.Format(s.path, formatter.FilesystemFAT, p1)
		})
		if r != Done {
			return r
		}

		w.print("Adding second partition to MBR...")
		entry, added, err := partition.AddSecondPartition(s.dev)
		switch {
		case err != nil && !added:
			w.Log.WithError(err).Error("write second partition")
			prompt.Error(w.UI, "Failed to write second partition to MBR!")
			return Cancel
		case err != nil:
			w.Log.WithError(err).WithField("lba", entry.Start()).Warn("stamp second partition signature")
		case !added:
			w.print("No space left behind the FAT32 partition.")
		default:
			w.Log.WithFields(map[string]any{"lba": entry.Start(), "sectors": entry.Sectors()}).Info("added second partition")
		}
		return Done
	})
	if r != Done {
		return Continue
	}
	s.formatted = true
	w.transition(StateSuccess)
	return Done
}

// formatPartitionOne reformats the first partition and keeps the others.
// The old table is parked in sector 1 until the new one has been merged.
func (w *Workflow) formatPartitionOne(s *session) ActionResult {
	w.showDevice(s)
	if !prompt.Confirm(w.UI, "WARNING: This will format the first partition and DELETE ALL DATA on it.\nOther partitions will be preserved.\nDo you want to continue?") {
		w.transition(StateCancelled)
		return Continue
	}

	w.print("Backing up MBR to sector 1...")
	backup, err := partition.BackupTable(s.dev)
	if err != nil {
		w.Log.WithError(err).Error("backup mbr")
		prompt.Error(w.UI, "Failed to backup MBR!")
		return Continue
	}
	size := backup.Entries[0].Sectors()
	if backup.Entries[0].IsEmpty() || size == 0 {
		_ = partition.ClearBackup(s.dev)
		prompt.Error(w.UI, "Partition 1 is empty!")
		return Continue
	}

	r := w.record(s, "format-p1", map[string]any{"sectors": size}, func() ActionResult {
		r := w.retry("Failed to format Partition 1!", func() error {
			w.print("Formatting Partition 1 (size: %d sectors)...", size)
			return w.Formatter.Format(s.path, formatter.FilesystemFAT, size)
		})
		if r != Done {
			return r
		}

		w.print("Restoring other partitions to MBR...")
		if err := partition.RestoreTrailing(s.dev, backup); err != nil {
			w.Log.WithError(err).Error("merge partition table")
			prompt.Error(w.UI, "Failed to restore other partitions to MBR!\nThe previous MBR is kept at sector 1.")
			return Cancel
		}
		w.print("Clearing backup sector...")
		if err := partition.ClearBackup(s.dev); err != nil {
			w.Log.WithError(err).Warn("clear backup sector")
		}
		return Done
	})
	if r != Done {
		return Continue
	}
	s.formatted = true
	w.transition(StateSuccess)
	return Done
}

// createWiiUPartition adds a WFS partition in the free space at the end.
func (w *Workflow) createWiiUPartition(s *session, label, success string) bool {
	w.print("Adding %s partition to MBR...", label)
	err := w.recordErr(s, "create-wfs", func() error {
		_, err := partition.CreateAuxiliary(s.dev)
		return err
	})
	if err != nil {
		w.Log.WithError(err).Error("create wfs partition")
		if errors.Is(err, partition.ErrNoSpace) {
			prompt.Error(w.UI, "Not enough free space for a new partition!")
		} else {
			prompt.Error(w.UI, "Failed to write MBR!")
		}
		return false
	}
	prompt.Inform(w.UI, success)
	return true
}

// deleteMBR zeroes the partition table.
func (w *Workflow) deleteMBR(s *session) ActionResult {
	w.showDevice(s)
	if !prompt.Confirm(w.UI, "WARNING: This will DELETE the MBR and ALL partition information.\nDo you want to continue?") {
		return Continue
	}
	w.print("Deleting MBR...")
	if err := w.recordErr(s, "delete-mbr", func() error { return partition.DeleteTable(s.dev) }); err != nil {
		w.Log.WithError(err).Error("delete mbr")
		prompt.Error(w.UI, "Failed to delete MBR!")
		return Continue
	}
	prompt.Inform(w.UI, "MBR deleted successfully!")
	return Continue
}

// offerBackupRestore handles a table left in sector 1 by an interrupted
// partial reformat. It returns true when the table was restored.
func (w *Workflow) offerBackupRestore(s *session) bool {
	if _, err := partition.ReadBackup(s.dev); err != nil {
		return false
	}
	w.showDevice(s)
	switch w.UI.Show("Backup MBR found at sector 1. Do you want to restore it?", []string{"Yes", "No"}, 1) {
	case 0:
		w.print("Restoring MBR from backup...")
		if err := w.recordErr(s, "restore-mbr", func() error { return partition.RestoreBackup(s.dev) }); err != nil {
			w.Log.WithError(err).Error("restore mbr")
			prompt.Error(w.UI, "Failed to restore MBR!")
			return false
		}
		prompt.Inform(w.UI, "MBR restored successfully!")
		return true
	case 1:
		w.showDevice(s)
		if prompt.Confirm(w.UI, "Do you want to delete the backup MBR?") {
			w.print("Clearing backup sector...")
			if err := partition.ClearBackup(s.dev); err != nil {
				w.Log.WithError(err).Warn("clear backup sector")
			}
		}
	}
	return false
}

// checkAndFixOrder offers to move a FAT32 partition that is not in slot 0
// to the front. ok is true when the order is fine or was fixed;
// repartitioned is true when the user chose to repartition instead and that
// succeeded.
func (w *Workflow) checkAndFixOrder(s *session) (ok, repartitioned bool) {
	_, m, err := mbr.ReadSector(s.dev, 0)
	if err != nil || !partition.Inspect(m, s.info).NeedsOrderFix() {
		return true, false
	}

	message := "FAT32 partition found but it is not the first partition.\nThis may cause issues with some homebrew.\nDo you want to fix the partition order or repartition?"
	options := []string{"Fix order", "Repartition", "Cancel"}
	// Devices below 2 GB cannot hold a Wii U partition.
	if !partition.SupportsPartitioning(s.info) {
		message = "FAT32 partition found but it is not the first partition.\nThis may cause issues with some homebrew.\nDo you want to fix the partition order?"
		options = []string{"Fix order", "Cancel"}
	}
	w.showDevice(s)
	choice := w.UI.Show(message, options, 0)
	if choice < 0 || choice >= len(options) {
		return false, false
	}
	switch options[choice] {
	case "Fix order":
		w.print("Fixing partition order in MBR...")
		if err := w.recordErr(s, "fix-order", func() error { return partition.FixPartitionOrder(s.dev) }); err != nil {
			w.Log.WithError(err).Error("fix partition order")
			prompt.Error(w.UI, "Failed to fix partition order!")
			return false, false
		}
		prompt.Inform(w.UI, "Partition order fixed successfully!")
		return true, false
	case "Repartition":
		return false, w.partitionDevice(s) == Done
	}
	return false, false
}

// CheckAndFixPartitionOrder runs the partition order check on the device
// attached under the SD path.
func (w *Workflow) CheckAndFixPartitionOrder() (ok, repartitioned bool, err error) {
	s, err := w.openSession()
	if err != nil {
		return false, false, fmt.Errorf("open device: %w", err)
	}
	defer s.close()
	ok, repartitioned = w.checkAndFixOrder(s)
	return ok, repartitioned, nil
}
