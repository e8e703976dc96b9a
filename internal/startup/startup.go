// Package startup runs the checks performed when the installer is started
// from the console menu: it makes sure a usable FAT volume is reachable
// under the SD path and offers whatever is missing from the setup.
package startup

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/prompt"
	"github.com/zer00p/wafel-installer/internal/workflow"
)

// Checker runs the startup checks against a workflow.
type Checker struct {
	W   *workflow.Workflow
	Log logrus.FieldLogger
}

func New(w *workflow.Workflow, log logrus.FieldLogger) *Checker {
	return &Checker{W: w, Log: log}
}

// Run performs the checks. It returns workflow.ErrUserCancelled when the
// user aborts.
func (c *Checker) Run(ctx context.Context) error {
	w := c.W
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Storage.DeviceInfo(fsa.PathSD); err == nil {
			if err := w.MountSD(); err == nil {
				c.Log.Info("sd card accessible")
				return c.sdReady(ctx)
			}
			c.Log.Info("sd card present but not mountable")
			return c.setupSD(ctx)
		}

		c.Log.Info("no sd card")
		switch w.UI.Show("No SD card found!\nInsert an SD card or use a USB device in its place.", []string{"Retry SD", "Use USB device", "Abort"}, 0) {
		case 0:
			continue
		case 1:
			wantsPartitioned, err := w.USBAsSDAction(ctx)
			if err != nil {
				return err
			}
			return w.PostSetupChecks(ctx, true, wantsPartitioned)
		default:
			return workflow.ErrUserCancelled
		}
	}
}

func (c *Checker) sdReady(ctx context.Context) error {
	w := c.W
	guard := workflow.NewMountGuard(w.Mounts)
	guard.Block()
	ok, repartitioned, err := w.CheckAndFixPartitionOrder()
	if err == nil {
		guard.Succeeded()
	}
	guard.Release()
	if err != nil {
		return err
	}
	if !ok && !repartitioned {
		c.Log.Warn("partition order left unfixed")
	}
	return w.PostSetupChecks(ctx, false, repartitioned || w.HasWiiULayout())
}

func (c *Checker) setupSD(ctx context.Context) error {
	w := c.W
	if !prompt.Ask(w.UI, "The SD card could not be mounted.\nIt may be Wii U formatted or not use FAT32.\nDo you want to set it up now?") {
		return workflow.ErrUserCancelled
	}
	wantsPartitioned, err := w.SDUSBAction(ctx)
	if err != nil {
		return err
	}
	return w.PostSetupChecks(ctx, false, wantsPartitioned)
}
