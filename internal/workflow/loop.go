package workflow

import (
	"errors"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

// deviceLoop waits for a device, has the user confirm it and runs pass
// with auto-mount blocked. It repeats while pass returns Continue and
// reports the last result along with whether the device was formatted.
func (w *Workflow) deviceLoop(name string, pass func(s *session) ActionResult) (ActionResult, bool) {
	for {
		if !w.WaitForDevice(name) {
			return Cancel, false
		}
		s, err := w.openSession()
		if err != nil {
			w.Log.WithError(err).Error("open device")
			if errors.Is(err, blockio.ErrDeviceUnavailable) || errors.Is(err, blockio.ErrAllocation) {
				prompt.Error(w.UI, "Failed to get device info!")
				w.transition(StateCancelled)
				return Cancel, false
			}
			if !prompt.RetryOrCancel(w.UI, "Failed to get device info!") {
				return Cancel, false
			}
			continue
		}

		r := w.guarded(s, pass)
		formatted := s.formatted
		s.close()
		switch r {
		case Done, Cancel:
			return r, formatted
		}
	}
}

func (w *Workflow) guarded(s *session, pass func(s *session) ActionResult) ActionResult {
	if !w.confirmDevice(s) {
		return Continue
	}
	guard := NewMountGuard(w.Mounts)
	guard.Block()
	defer guard.Release()

	w.transition(StateDecidingStrategy)
	r := pass(s)
	if r == Done {
		guard.Succeeded()
	}
	return r
}
