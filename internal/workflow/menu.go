package workflow

import (
	"context"
	"errors"

	"github.com/zer00p/wafel-installer/internal/prompt"
)

// MainMenu loops over the top level actions until the user confirms exit.
func (w *Workflow) MainMenu(ctx context.Context) error {
	actions := []struct {
		label string
		run   func(context.Context) error
	}{
		{"Install ISFShax", w.InstallIsfshax},
		{"Redownload files", w.RedownloadFiles},
		{"Boot ISFShax installer", w.BootInstaller},
		{"Download Aroma", w.DownloadAroma},
		{"Format / partition a device", w.FormatMenu},
		{"Set up SDUSB", w.SDUSBSetup},
		{"Set up partitioned USB", w.PartitionedUSBSetup},
	}
	options := make([]string, 0, len(actions)+1)
	for _, a := range actions {
		options = append(options, a.label)
	}
	options = append(options, "Exit")

	selected := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.transition(StateIdle)
		choice := w.UI.Show("Wafel installer\nWhat do you want to do?", options, selected)
		if choice < 0 || choice == len(actions) {
			if prompt.Confirm(w.UI, "Do you want to exit?") {
				return nil
			}
			continue
		}
		selected = choice
		err := actions[choice].run(ctx)
		switch {
		case err == nil, errors.Is(err, ErrUserCancelled):
		case errors.Is(err, context.Canceled):
			return err
		default:
			w.Log.WithError(err).WithField("action", actions[choice].label).Warn("action failed")
		}
		if w.ShutdownPending && prompt.Ask(w.UI, "A shutdown is still pending.\nDo you want to shut down now?") {
			w.ShutdownPending = false
			return w.CFW.Shutdown()
		}
	}
}
