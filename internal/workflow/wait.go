package workflow

import (
	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

// WaitForDevice asks the user to remove every storage device, then polls
// until one is attached under the SD path. It returns false when the user
// cancels.
func (w *Workflow) WaitForDevice(name string) bool {
	w.transition(StateAwaitingRemoval)
	for {
		if w.UI.Show("Remove ALL SD and USB storage devices NOW!", []string{"OK", "Cancel"}, 0) != 0 {
			w.transition(StateCancelled)
			return false
		}
		if _, err := w.Storage.DeviceInfo(fsa.PathSD); err != nil {
			break
		}
	}

	w.transition(StateAwaitingInsertion)
	w.UI.Screen(
		"Plug in ONLY the "+name+" you want to work with.",
		"Plugging in other devices may lead to DATA LOSS!",
		"",
		"Waiting for device...",
		"Press B to cancel",
	)
	for {
		if _, err := w.Storage.DeviceInfo(fsa.PathSD); err == nil {
			w.transition(StateDeviceDetected)
			return true
		}
		if w.UI.Poll() == prompt.ButtonBack {
			w.transition(StateCancelled)
			return false
		}
	}
}

// confirmDevice shows the summary and asks the user to confirm it.
func (w *Workflow) confirmDevice(s *session) bool {
	w.showDevice(s)
	if !prompt.Confirm(w.UI, "Is this the correct device?") {
		w.transition(StateCancelled)
		return false
	}
	w.transition(StateConfirmed)
	return true
}
