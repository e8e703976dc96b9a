package workflow

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/journal"
	"github.com/zer00p/wafel-installer/internal/mbr"
	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

func TestFormatSmallDeviceUsesWholeDrive(t *testing.T) {
	r := newRig(t, 1<<30, 0, "SD card", "OK", "Yes", "OK", "Yes", "No")

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	_, offered := r.ui.Find("What do you want to do?")
	assert.False(t, offered)
	warn, ok := r.ui.Find("format the whole device")
	require.True(t, ok)
	assert.Equal(t, 1, warn.DefaultIndex)

	e := r.table(r.sd).Entries[0]
	assert.Equal(t, mbr.TypeFAT16LBA, e.Type())
	assert.Equal(t, uint32(2048), e.Start())
	assert.True(t, r.mounts.Mounted(fsa.SlotSD))
	assert.Empty(t, r.dl.calls)

	assert.Equal(t, []State{
		StateIdle, StateAwaitingRemoval, StateAwaitingInsertion, StateDeviceDetected,
		StateConfirmed, StateDecidingStrategy, StateExecuting, StateSuccess,
	}, r.states)
}

func TestFormatWithoutTableOffersWholeDriveOnly(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Format whole drive to FAT32", "Yes", "Yes")

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	menu, ok := r.ui.Find("What do you want to do?")
	require.True(t, ok)
	assert.Equal(t, []string{"Format whole drive to FAT32", "Cancel"}, menu.Options)
	assert.Equal(t, 1, menu.DefaultIndex)

	assert.Equal(t, mbr.TypeFAT32LBA, r.table(r.sd).Entries[0].Type())
	assert.Equal(t, []string{"aroma"}, r.dl.calls)
}

func TestFormatCancelOptionLeavesFlow(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Cancel")

	err := r.w.FormatMenu(context.Background())
	assert.True(t, isCancelled(err))
	r.noScriptErrors()
	assert.False(t, mbr.HasSignature(r.sector(r.sd, 0)))
}

func TestFormatMenuOptions(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes")
	r.writeSector(r.sd, 0, tableOf(
		mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 2_097_152),
		mbr.NewEntry(mbr.TypeWFS, 2_228_224, 1_000_000),
	))

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	menu, ok := r.ui.Find("What do you want to do?")
	require.True(t, ok)
	assert.Equal(t, []string{
		"Format whole drive to FAT32",
		"Partition drive (FAT32 + Wii U)",
		"Format only Partition 1 (keep others)",
		"Create Wii U partition in free space",
		"Delete MBR",
		"Cancel",
	}, menu.Options)
	assert.Equal(t, len(menu.Options)-1, menu.DefaultIndex)
}

func TestPartitionDeviceSplit(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Partition drive (FAT32 + Wii U)", "Yes", "No")
	r.writeSector(r.sd, 0, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 1_000_000)))
	r.ui.Press(prompt.ButtonOK)

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	warn, ok := r.ui.Find("RE-PARTITION")
	require.True(t, ok)
	assert.Equal(t, 1, warn.DefaultIndex)

	p1 := uint32(eightGiBLBAs * 80 / 100)
	m := r.table(r.sd)
	assert.Equal(t, mbr.TypeFAT32LBA, m.Entries[0].Type())
	assert.Equal(t, uint32(2048), m.Entries[0].Start())
	assert.Equal(t, p1, m.Entries[0].Sectors())
	assert.True(t, m.Entries[1].IsEmpty())
	assert.True(t, m.Entries[2].IsEmpty())

	p2 := m.Entries[3]
	wantStart := partition.AlignUp(uint64(2048)+uint64(p1), alignedSector)
	assert.Equal(t, mbr.TypeWFS, p2.Type())
	assert.Equal(t, uint32(wantStart), p2.Start())
	assert.Equal(t, uint32(eightGiBLBAs-wantStart), p2.Sectors())
	assert.Zero(t, uint64(p2.Start())%alignedSector)

	stamp := r.sector(r.sd, int64(p2.Start()))
	assert.Equal(t, []byte{0x55, 0xAA}, stamp[510:512])
}

func TestPartitionSliderBackCancels(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Partition drive (FAT32 + Wii U)")
	before := tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 1_000_000))
	r.writeSector(r.sd, 0, before)
	r.ui.Press(prompt.ButtonRight, prompt.ButtonBack)

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	assert.Equal(t, before, r.sector(r.sd, 0))
	assert.Contains(t, r.states, StateCancelled)
}

func TestFormatPartitionOnePreservesOthers(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Format only Partition 1 (keep others)", "Yes", "No")
	wfs := mbr.NewEntry(mbr.TypeWFS, 4_325_376, 8_388_608)
	wfs[1], wfs[2], wfs[3] = 0xFE, 0xFF, 0xFF
	r.writeSector(r.sd, 0, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 4_194_304), wfs))

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	sector0 := r.sector(r.sd, 0)
	m, err := mbr.Decode(sector0)
	require.NoError(t, err)
	assert.Equal(t, mbr.TypeFAT32LBA, m.Entries[0].Type())
	assert.Equal(t, uint32(2048), m.Entries[0].Start())
	assert.Equal(t, uint32(4_194_304), m.Entries[0].Sectors())
	assert.Equal(t, wfs[:], sector0[462:478])
	assert.Equal(t, make([]byte, sectorSize), r.sector(r.sd, partition.BackupLBA))
}

func TestFormatPartitionOneEmptySlot(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Format only Partition 1 (keep others)", "Yes", "OK")
	before := tableOf(mbr.Entry{},
		mbr.NewEntry(mbr.TypeWFS, 131_072, 1_000_000),
		mbr.NewEntry(mbr.TypeWFS, 1_179_648, 1_000_000))
	r.writeSector(r.sd, 0, before)

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	r.noScriptErrors()
	assert.Equal(t, before, r.sector(r.sd, 0))
	assert.False(t, mbr.HasSignature(r.sector(r.sd, partition.BackupLBA)))
	_, shown := r.ui.Find("Partition 1 is empty!")
	assert.True(t, shown)
}

func TestFormatRetryThenSucceed(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Format whole drive to FAT32", "Yes", "Retry", "No")
	flaky := &flakyFormatter{next: r.w.Formatter, fails: 1}
	r.w.Formatter = flaky

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()
	assert.Equal(t, 2, flaky.calls)
	failure, ok := r.ui.Find("Failed to format device!")
	require.True(t, ok)
	assert.Equal(t, []string{"Retry", "Cancel"}, failure.Options)
	assert.Contains(t, r.states, StateRetryableFailure)
	assert.Equal(t, mbr.TypeFAT32LBA, r.table(r.sd).Entries[0].Type())
}

func TestFormatRetryCancelledReturnsToWait(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Format whole drive to FAT32", "Yes", "Retry", "Cancel")
	flaky := &flakyFormatter{next: r.w.Formatter, fails: -1}
	r.w.Formatter = flaky
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	r.w.Journal = j

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	r.noScriptErrors()
	assert.Equal(t, 2, flaky.calls)

	msgs := r.ui.Messages()
	assert.Equal(t, "Remove ALL SD and USB storage devices NOW!", msgs[len(msgs)-1])

	ops, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "format", ops[0].Kind)
	assert.Equal(t, journal.StatusFailed, ops[0].Status)
}

func TestPartitionIsJournaled(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Partition drive (FAT32 + Wii U)", "Yes", "No")
	before := tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 1_000_000))
	r.writeSector(r.sd, 0, before)
	r.ui.Press(prompt.ButtonDown, prompt.ButtonOK)
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	r.w.Journal = j

	require.NoError(t, r.w.FormatMenu(context.Background()))

	ops, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, "partition", op.Kind)
	assert.Equal(t, journal.StatusSucceeded, op.Status)
	assert.Equal(t, fsa.PathSD, op.Device)
	assert.EqualValues(t, 70, op.Details["percent"])

	snap, err := j.SnapshotOf(op.ID, journal.PhaseBefore)
	require.NoError(t, err)
	assert.Equal(t, before, snap.Data)
	snap, err = j.SnapshotOf(op.ID, journal.PhaseAfter)
	require.NoError(t, err)
	assert.Equal(t, r.sector(r.sd, 0), snap.Data)
}

func TestBackupTableRestore(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Yes", "OK")
	backup := tableOf(
		mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 4_194_304),
		mbr.NewEntry(mbr.TypeWFS, 4_325_376, 8_388_608))
	r.writeSector(r.sd, 0, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 1_000)))
	r.writeSector(r.sd, partition.BackupLBA, backup)

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	offer, ok := r.ui.Find("Backup MBR found at sector 1")
	require.True(t, ok)
	assert.Equal(t, 1, offer.DefaultIndex)
	assert.Equal(t, backup, r.sector(r.sd, 0))
	assert.Equal(t, make([]byte, sectorSize), r.sector(r.sd, partition.BackupLBA))
	_, asked := r.ui.Find("Do you want to download Aroma now?")
	assert.False(t, asked)
}

func TestBackupTableDeclinedAndDeleted(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "No", "Yes", "Cancel")
	current := tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 1_000))
	r.writeSector(r.sd, 0, current)
	r.writeSector(r.sd, partition.BackupLBA, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 4_194_304)))

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	r.noScriptErrors()
	assert.Equal(t, current, r.sector(r.sd, 0))
	assert.False(t, mbr.HasSignature(r.sector(r.sd, partition.BackupLBA)))
}

func TestCreateWiiUPartition(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Create Wii U partition in free space", "OK")
	r.writeSector(r.sd, 0, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 2_097_152)))

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	_, ok := r.ui.Find("Wii U partition created successfully!")
	assert.True(t, ok)
	e := r.table(r.sd).Entries[3]
	assert.Equal(t, mbr.TypeWFS, e.Type())
	assert.Equal(t, uint32(2_228_224), e.Start())
	assert.Equal(t, uint32(eightGiBLBAs-2_228_224), e.Sectors())
}

func TestDeleteMBR(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "Yes", "Delete MBR", "Yes", "OK")
	r.writeSector(r.sd, 0, tableOf(mbr.NewEntry(mbr.TypeFAT32LBA, 2048, 2_097_152)))

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	r.noScriptErrors()
	assert.Equal(t, make([]byte, sectorSize), r.sector(r.sd, 0))
	_, ok := r.ui.Find("MBR deleted successfully!")
	assert.True(t, ok)
}

func TestFormatUSBDevice(t *testing.T) {
	r := newRig(t, 0, eightGiB, "USB device", "OK", "Yes", "Format whole drive to FAT32", "Yes", "OK")

	require.NoError(t, r.w.FormatMenu(context.Background()))
	r.noScriptErrors()

	assert.Equal(t, mbr.TypeFAT32LBA, r.table(r.usb).Entries[0].Type())
	_, ok := r.ui.Find("Formatting complete!")
	assert.True(t, ok)
	attached, err := r.kernel.Read32(0x1077eda0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xe3a03006), attached)
}

func TestConfirmDeviceDefaultsToNo(t *testing.T) {
	r := newRig(t, eightGiB, 0, "SD card", "OK", "No")
	before := r.sector(r.sd, 0)

	assert.True(t, isCancelled(r.w.FormatMenu(context.Background())))
	confirm, ok := r.ui.Find("Is this the correct device?")
	require.True(t, ok)
	assert.Equal(t, 1, confirm.DefaultIndex)
	assert.True(t, bytes.Equal(before, r.sector(r.sd, 0)))
}
