// Package workflow drives the interactive device flows: detecting and
// confirming a device, choosing a layout and executing the format and
// partition table changes, with retry and cancel at every destructive step.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/cfw"
	"github.com/zer00p/wafel-installer/internal/firmware"
	"github.com/zer00p/wafel-installer/internal/fsa"
	"github.com/zer00p/wafel-installer/internal/journal"
	"github.com/zer00p/wafel-installer/internal/prompt"
)

// ErrUserCancelled is returned when the user backs out of a flow. It is a
// normal exit, not a fault.
var ErrUserCancelled = errors.New("cancelled by user")

// ActionResult tells the flow loop what to do after a step.
type ActionResult int

const (
	// Continue goes back to waiting for a device.
	Continue ActionResult = iota
	// Retry runs the same step again.
	Retry
	// Cancel leaves the flow.
	Cancel
	// Done leaves the flow after a completed action.
	Done
)

func (r ActionResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Retry:
		return "retry"
	case Cancel:
		return "cancel"
	case Done:
		return "done"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// State is a step of the per device flow.
type State int

const (
	StateIdle State = iota
	StateAwaitingRemoval
	StateAwaitingInsertion
	StateDeviceDetected
	StateConfirmed
	StateDecidingStrategy
	StateExecuting
	StateRetryableFailure
	StateSuccess
	StateCancelled
)

var stateNames = [...]string{
	"idle", "awaiting-removal", "awaiting-insertion", "device-detected", "confirmed",
	"deciding-strategy", "executing", "retryable-failure", "success", "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Device is an open raw handle on the attached device.
type Device interface {
	blockio.Sectors
	Close() error
}

// Storage reaches the device currently attached under a logical path.
type Storage interface {
	DeviceInfo(path string) (blockio.Info, error)
	Open(path string) (Device, error)
}

type clientStorage struct{ c *fsa.Client }

// ClientStorage adapts an FSA client.
func ClientStorage(c *fsa.Client) Storage { return clientStorage{c} }

func (s clientStorage) DeviceInfo(path string) (blockio.Info, error) { return s.c.DeviceInfo(path) }

func (s clientStorage) Open(path string) (Device, error) {
	dev, err := s.c.RawOpen(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Mounter is the FAT mount layer.
type Mounter interface {
	Mount(slot fsa.DriveSlot) error
	Unmount(slot fsa.DriveSlot) error
	Block() (release func())
}

// Formatter runs the native format routine.
type Formatter interface {
	Format(device, filesystem string, customSectors uint32) error
}

// Downloads fetches release artifacts.
type Downloads interface {
	HaxFiles(ctx context.Context) error
	InstallerOnly(ctx context.Context) error
	IsfshaxFiles(ctx context.Context) error
	StroopwafelFiles(ctx context.Context, toSD bool) error
	USBPartitionPlugin(ctx context.Context, name, target string) error
	SDUSBPlugin(ctx context.Context, toSLC, toSD bool) error
	Aroma(ctx context.Context) error
}

// Recorder journals destructive operations.
type Recorder interface {
	Begin(device, kind string, details map[string]any) (string, error)
	Snapshot(id string, phase journal.Phase, lba uint64, data []byte) error
	Finish(id string, status journal.Status) error
}

// Workflow holds the collaborators every flow runs against. Journal and
// OnState may be nil.
type Workflow struct {
	UI        prompt.UI
	Storage   Storage
	Mounts    Mounter
	Formatter Formatter
	Kernel    firmware.Patcher
	Downloads Downloads
	CFW       cfw.Environment
	Journal   Recorder
	Log       logrus.FieldLogger

	DefaultFATPercent int
	OnState           func(State)

	// ShutdownPending is set when the user postponed a recommended shutdown.
	ShutdownPending bool
}

func (w *Workflow) transition(s State) {
	w.Log.WithField("state", s).Debug("workflow")
	if w.OnState != nil {
		w.OnState(s)
	}
}

func (w *Workflow) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	w.Log.Info(line)
	w.UI.Print(line)
}

// SetUSBAsSD attaches USB storage under the SD device path, or restores the
// SD card.
func (w *Workflow) SetUSBAsSD(enable bool) {
	if err := firmware.USBAsSD(w.Kernel, enable); err != nil {
		w.Log.WithError(err).Warn("usb as sd patch failed")
	}
}

func (w *Workflow) unmountSD(name string) {
	w.print("Unmounting %s...", name)
	if err := w.Mounts.Unmount(fsa.SlotSD); err != nil {
		w.print("Unmount failed (%v), ignoring...", err)
	}
}

// MountSD mounts the FAT volume of the SD slot.
func (w *Workflow) MountSD() error {
	err := w.Mounts.Mount(fsa.SlotSD)
	if err != nil {
		w.Log.WithError(err).Debug("sd mount")
	}
	return err
}

// session is one confirmed device, opened fresh for every pass of a flow.
type session struct {
	path string
	info blockio.Info
	dev  Device
	// formatted is set once a format of the device completed.
	formatted bool
}

func (w *Workflow) openSession() (*session, error) {
	dev, err := w.Storage.Open(fsa.PathSD)
	if err != nil {
		return nil, err
	}
	return &session{path: fsa.PathSD, info: dev.Info(), dev: dev}, nil
}

func (s *session) close() {
	_ = s.dev.Close()
}

// attempt runs one destructive step and asks whether to retry on failure.
func (w *Workflow) attempt(failure string, step func() error) ActionResult {
	w.transition(StateExecuting)
	if err := step(); err != nil {
		w.Log.WithError(err).Warn(failure)
		w.print("%s (%v)", failure, err)
		w.transition(StateRetryableFailure)
		if prompt.RetryOrCancel(w.UI, failure) {
			return Retry
		}
		w.transition(StateCancelled)
		return Cancel
	}
	return Done
}

// retry repeats step until it succeeds or the user gives up.
func (w *Workflow) retry(failure string, step func() error) ActionResult {
	for {
		if r := w.attempt(failure, step); r != Retry {
			return r
		}
	}
}

// record journals fn with copies of sector 0 taken before and after.
func (w *Workflow) record(s *session, kind string, details map[string]any, fn func() ActionResult) ActionResult {
	if w.Journal == nil {
		return fn()
	}
	id, err := w.Journal.Begin(s.path, kind, details)
	if err != nil {
		w.Log.WithError(err).Warn("journal unavailable")
		return fn()
	}
	w.snapshot(id, journal.PhaseBefore, s)
	r := fn()
	w.snapshot(id, journal.PhaseAfter, s)

	status := journal.StatusSucceeded
	if r != Done {
		status = journal.StatusFailed
	}
	if err := w.Journal.Finish(id, status); err != nil {
		w.Log.WithError(err).Warn("journal finish")
	}
	return r
}

func (w *Workflow) snapshot(id string, phase journal.Phase, s *session) {
	raw, err := s.dev.ReadSectors(0, 1)
	if err != nil {
		w.Log.WithError(err).WithField("op", id).Warn("snapshot read")
		return
	}
	if err := w.Journal.Snapshot(id, phase, 0, raw); err != nil {
		w.Log.WithError(err).WithField("op", id).Warn("snapshot store")
	}
}

// recordErr is record for single shot steps.
func (w *Workflow) recordErr(s *session, kind string, fn func() error) error {
	var err error
	w.record(s, kind, nil, func() ActionResult {
		if err = fn(); err != nil {
			return Cancel
		}
		return Done
	})
	return err
}
