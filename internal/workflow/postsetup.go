package workflow

import (
	"context"
	"errors"

	"github.com/zer00p/wafel-installer/internal/prompt"
)

// PostSetupChecks offers whatever is still missing once a storage device
// is usable: Aroma, Stroopwafel, the partition plugin matching the layout
// and finally ISFShax. Skipped steps are not errors.
func (w *Workflow) PostSetupChecks(ctx context.Context, usingUSB, wantsPartitioned bool) error {
	if !w.CFW.AromaInstalled() {
		if prompt.Ask(w.UI, "Aroma was not found on the SD card.\nDo you want to download it now?") {
			_ = w.DownloadAroma(ctx)
		}
	}

	if !w.CFW.StroopwafelAvailable() {
		switch where := w.UI.Show("Stroopwafel was not found.\nWhere do you want to install it?", []string{"SLC (recommended)", "SD card", "Skip"}, 0); where {
		case 0, 1:
			toSD := where == 1
			w.print("Downloading Stroopwafel...")
			if err := w.Downloads.StroopwafelFiles(ctx, toSD); err != nil {
				w.Log.WithError(err).Error("download stroopwafel")
				prompt.Error(w.UI, "Failed to download Stroopwafel!")
			}
		}
	}

	if err := w.installPlugin(ctx, usingUSB, wantsPartitioned); err != nil {
		return err
	}

	if !w.CFW.IsfshaxInstalled() {
		if prompt.Ask(w.UI, "ISFShax is not installed.\nDo you want to install it now?") {
			if err := w.InstallIsfshax(ctx); err != nil && !errors.Is(err, ErrUserCancelled) {
				return err
			}
		}
	}
	return nil
}

func (w *Workflow) installPlugin(ctx context.Context, usingUSB, wantsPartitioned bool) error {
	switch {
	case usingUSB:
		dir := w.CFW.PluginPath()
		if dir == "" {
			dir = w.CFW.SLCPluginPath()
		}
		w.print("Downloading %s...", pluginUSBPartSD)
		if err := w.Downloads.USBPartitionPlugin(ctx, pluginUSBPartSD, dir); err != nil {
			w.Log.WithError(err).Error("download usb partition plugin")
			prompt.Error(w.UI, "Failed to download the USB partition plugin!")
			return err
		}
		if wantsPartitioned {
			w.recommendShutdown("USB partition plugin installed.")
		}
	case wantsPartitioned:
		w.print("Downloading SDUSB plugin...")
		if err := w.Downloads.SDUSBPlugin(ctx, true, true); err != nil {
			w.Log.WithError(err).Error("download sdusb plugin")
			prompt.Error(w.UI, "Failed to download the SDUSB plugin!")
			return err
		}
	}
	return nil
}
