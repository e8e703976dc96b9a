package workflow

import (
	"context"

	"github.com/zer00p/wafel-installer/internal/prompt"
)

// DownloadAroma fetches the Aroma environment onto the SD volume.
func (w *Workflow) DownloadAroma(ctx context.Context) error {
	if err := w.MountSD(); err != nil {
		w.Log.WithError(err).Warn("sd not mounted before aroma download")
	}
	w.print("Downloading Aroma...")
	if err := w.Downloads.Aroma(ctx); err != nil {
		w.Log.WithError(err).Error("download aroma")
		prompt.Error(w.UI, "Failed to download Aroma!")
		return err
	}
	prompt.Inform(w.UI, "Aroma downloaded successfully!")
	return nil
}

// RedownloadFiles refreshes Stroopwafel, ISFShax and the installer on the
// SLC.
func (w *Workflow) RedownloadFiles(ctx context.Context) error {
	w.print("Downloading files...")
	if err := w.Downloads.HaxFiles(ctx); err != nil {
		w.Log.WithError(err).Error("download hax files")
		prompt.Error(w.UI, "Failed to download files!")
		return err
	}
	prompt.Inform(w.UI, "Files downloaded successfully!")
	return nil
}

// InstallIsfshax downloads the ISFShax files and reboots into its
// installer.
func (w *Workflow) InstallIsfshax(ctx context.Context) error {
	const warning = "ISFShax modifies the console's NAND boot process.\n" +
		"A failed install can BRICK your console. You use it at your own risk.\n" +
		"Do you want to continue?"
	if !prompt.Confirm(w.UI, warning) {
		return ErrUserCancelled
	}
	w.print("Downloading ISFShax files...")
	if err := w.Downloads.IsfshaxFiles(ctx); err != nil {
		w.Log.WithError(err).Error("download isfshax")
		prompt.Error(w.UI, "Failed to download ISFShax files!")
		return err
	}
	return w.BootInstaller(ctx)
}

// BootInstaller launches the ISFShax installer after a last chance to back
// out. A missing installer image is fetched first.
func (w *Workflow) BootInstaller(ctx context.Context) error {
	for {
		choice := w.UI.Show("The console will now boot the ISFShax installer.\nFollow the instructions on screen there.", []string{"Continue", "Cancel"}, 0)
		if choice == 0 {
			break
		}
		if w.UI.Show("Are you sure you want to cancel?", []string{"Yes, cancel", "No, go back"}, 1) == 0 {
			return ErrUserCancelled
		}
	}

	err := w.CFW.BootInstaller()
	if err != nil {
		w.Log.WithError(err).Warn("installer missing, downloading")
		if derr := w.Downloads.InstallerOnly(ctx); derr != nil {
			w.Log.WithError(derr).Error("download installer")
			prompt.Error(w.UI, "Failed to download the ISFShax installer!")
			return derr
		}
		err = w.CFW.BootInstaller()
	}
	if err != nil {
		w.Log.WithError(err).Error("boot installer")
		prompt.Error(w.UI, "Failed to boot the ISFShax installer!")
		return err
	}
	return nil
}
