package workflow

import (
	"context"
	"errors"

	"github.com/zer00p/wafel-installer/internal/partition"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

const (
	pluginUSBPartSD = "5upartsd.ipx"
	pluginUSBPart   = "5usbpart.ipx"
)

var errNoStroopwafel = errors.New("stroopwafel not available")

// PartitionedUSBSetup partitions a USB device into FAT32 and WFS and
// installs the plugin that exposes the partitions to the console.
func (w *Workflow) PartitionedUSBSetup(ctx context.Context) error {
	w.transition(StateIdle)
	emulate := w.UI.Show("Do you want to use the FAT32 partition of the USB device as SD card?\nThis lets you run without an SD card inserted.",
		[]string{"Yes, emulate the SD card", "No, keep using the SD card"}, 0)
	if emulate < 0 {
		return ErrUserCancelled
	}
	plugin := pluginUSBPart
	if emulate == 0 {
		plugin = pluginUSBPartSD
	}

	if err := w.requireStroopwafel(ctx); err != nil {
		return err
	}
	w.print("Downloading %s...", plugin)
	if err := w.Downloads.USBPartitionPlugin(ctx, plugin, w.CFW.PluginPath()); err != nil {
		w.Log.WithError(err).Error("download usb partition plugin")
		prompt.Error(w.UI, "Failed to download the USB partition plugin!")
		return err
	}

	w.SetUSBAsSD(true)
	defer w.SetUSBAsSD(false)
	w.unmountSD("USB device")

	var partitioned bool
	r, _ := w.deviceLoop("USB device", w.layoutPass(&partitioned))
	if r == Cancel {
		return ErrUserCancelled
	}

	if emulate == 0 {
		if prompt.Ask(w.UI, "USB partitioned successfully!\nDo you want to download Aroma to the emulated SD now?") {
			return w.DownloadAroma(ctx)
		}
		return nil
	}
	w.recommendShutdown("USB partitioned successfully!")
	return nil
}

func (w *Workflow) recommendShutdown(message string) {
	if !prompt.Ask(w.UI, message+"\nA shutdown is needed for the plugin to take effect.\nDo you want to shut down now?") {
		w.ShutdownPending = true
		return
	}
	if err := w.CFW.Shutdown(); err != nil {
		w.Log.WithError(err).Error("shutdown")
		w.ShutdownPending = true
	}
}

func (w *Workflow) requireStroopwafel(ctx context.Context) error {
	if w.CFW.StroopwafelAvailable() {
		return nil
	}
	if !prompt.Ask(w.UI, "Stroopwafel is required but was not found.\nDo you want to download it to the SLC now?") {
		return errNoStroopwafel
	}
	w.print("Downloading Stroopwafel...")
	if err := w.Downloads.StroopwafelFiles(ctx, false); err != nil {
		w.Log.WithError(err).Error("download stroopwafel")
		prompt.Error(w.UI, "Failed to download Stroopwafel!")
		return err
	}
	return nil
}

// USBAsSDAction sets up a USB device attached in place of a missing SD
// card. The USB-as-SD patch stays active when this returns without error.
func (w *Workflow) USBAsSDAction(ctx context.Context) (wantsPartitioned bool, err error) {
	w.transition(StateIdle)
	w.SetUSBAsSD(true)
	w.unmountSD("USB device")

	pass := func(s *session) ActionResult {
		m, err := partition.ReadTable(s.dev)
		if err == nil {
			if ok, repartitioned := w.checkAndFixOrder(s); repartitioned {
				wantsPartitioned = true
				return Done
			} else if !ok {
				return Cancel
			}
			m, err = partition.ReadTable(s.dev)
		}
		survey := partition.Inspect(m, s.info)

		var opts []option
		if err == nil && survey.FATIndex == 0 {
			opts = append(opts, option{"Use as is", func() ActionResult {
				wantsPartitioned = hasWiiULayout(s)
				return Done
			}})
		}
		if partition.SupportsPartitioning(s.info) {
			opts = append(opts, option{"Partition drive (FAT32 + Wii U)", func() ActionResult {
				r := w.partitionDevice(s)
				wantsPartitioned = r == Done && hasWiiULayout(s)
				return r
			}})
		}
		opts = append(opts,
			option{"Format whole drive to FAT32", func() ActionResult { return w.formatWholeDrive(s) }},
			option{"Cancel", cancel},
		)
		w.showDevice(s)
		return w.choose("How do you want to use this USB device?", opts, 0)
	}

	if r, _ := w.deviceLoop("USB device", pass); r == Cancel {
		w.SetUSBAsSD(false)
		return false, ErrUserCancelled
	}
	return wantsPartitioned, nil
}
