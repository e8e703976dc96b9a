package workflow

import (
	"context"

	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

type option struct {
	label string
	run   func() ActionResult
}

func labels(opts []option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.label
	}
	return out
}

// choose shows opts and runs the chosen one. Backing out continues.
func (w *Workflow) choose(message string, opts []option, defaultIndex int) ActionResult {
	i := w.UI.Show(message, labels(opts), defaultIndex)
	if i < 0 || i >= len(opts) {
		return Continue
	}
	return opts[i].run()
}

func cancel() ActionResult { return Cancel }

// FormatMenu formats or partitions the SD card or a USB device.
func (w *Workflow) FormatMenu(ctx context.Context) error {
	w.transition(StateIdle)
	choice := w.UI.Show("Which device do you want to format?", []string{"SD card", "USB device"}, 0)
	if choice < 0 {
		return ErrUserCancelled
	}
	usb := choice == 1
	name := "SD card"
	if usb {
		name = "USB device"
		w.SetUSBAsSD(true)
		defer w.SetUSBAsSD(false)
	}
	w.unmountSD(name)

	r, formatted := w.deviceLoop(name, w.formatStrategy)
	if r == Cancel {
		return ErrUserCancelled
	}
	if !formatted {
		return nil
	}
	if usb {
		prompt.Inform(w.UI, "Formatting complete!")
		return nil
	}
	if prompt.Ask(w.UI, "Device formatted successfully!\nDo you want to download Aroma now?") {
		return w.DownloadAroma(ctx)
	}
	return nil
}

func (w *Workflow) formatStrategy(s *session) ActionResult {
	if !partition.SupportsPartitioning(s.info) {
		w.showDevice(s)
		prompt.Inform(w.UI, "The device is smaller than 2 GB.\nIt will be formatted as a single FAT partition (FAT16 below 2 GB) without a Wii U partition.")
		return w.formatWholeDrive(s)
	}

	m, err := partition.ReadTable(s.dev)
	if err != nil {
		w.Log.WithError(err).Info("no partition table")
		w.showDevice(s)
		return w.choose("What do you want to do?", []option{
			{"Format whole drive to FAT32", func() ActionResult { return w.formatWholeDrive(s) }},
			{"Cancel", cancel},
		}, 1)
	}

	if w.offerBackupRestore(s) {
		return Done
	}

	survey := partition.Inspect(m, s.info)
	opts := []option{
		{"Format whole drive to FAT32", func() ActionResult { return w.formatWholeDrive(s) }},
		{"Partition drive (FAT32 + Wii U)", func() ActionResult { return w.partitionDevice(s) }},
	}
	if survey.Count > 1 {
		opts = append(opts, option{"Format only Partition 1 (keep others)", func() ActionResult { return w.formatPartitionOne(s) }})
	}
	if survey.CanCreateAuxiliary() {
		opts = append(opts, option{"Create Wii U partition in free space", func() ActionResult {
			w.createWiiUPartition(s, "Wii U", "Wii U partition created successfully!")
			return Done
		}})
	}
	opts = append(opts,
		option{"Delete MBR", func() ActionResult { return w.deleteMBR(s) }},
		option{"Cancel", cancel},
	)
	w.showDevice(s)
	return w.choose("What do you want to do?", opts, len(opts)-1)
}
