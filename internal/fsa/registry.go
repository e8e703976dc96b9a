package fsa

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/fatfs"
	"github.com/zer00p/wafel-installer/internal/mbr"
)

// DriveSlot identifies one of the drives the FAT layer can mount.
type DriveSlot int

const (
	SlotSD DriveSlot = iota
	SlotUSB1
	SlotUSB2
	SlotUSB3
)

// Slots lists every drive slot in mount order.
var Slots = []DriveSlot{SlotSD, SlotUSB1, SlotUSB2, SlotUSB3}

// Path returns the logical device path of the slot.
func (s DriveSlot) Path() string {
	switch s {
	case SlotSD:
		return PathSD
	case SlotUSB1:
		return PathUSB1
	case SlotUSB2:
		return PathUSB2
	case SlotUSB3:
		return PathUSB3
	}
	return ""
}

func (s DriveSlot) String() string {
	switch s {
	case SlotSD:
		return "sd"
	case SlotUSB1:
		return "usb1"
	case SlotUSB2:
		return "usb2"
	case SlotUSB3:
		return "usb3"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

var (
	// ErrMountBlocked is returned by Mount while a mount guard is held.
	ErrMountBlocked = errors.New("auto-mount blocked")
	// ErrNotFAT is returned when partition 1 does not carry a FAT volume.
	ErrNotFAT = errors.New("first partition is not a FAT volume")
)

// Entry is the state of one mounted drive.
type Entry struct {
	Slot    DriveSlot
	Path    string
	Client  *Client
	Raw     *blockio.Device
	Mounted bool
	Volume  fatfs.Type
}

// Registry owns the per slot client and raw handle of every mounted drive.
type Registry struct {
	mu      sync.Mutex
	client  *Client
	entries map[DriveSlot]*Entry
	blocked int
	log     logrus.FieldLogger
}

// NewRegistry returns an empty registry whose mounts go through client.
func NewRegistry(client *Client, log logrus.FieldLogger) *Registry {
	return &Registry{client: client, entries: make(map[DriveSlot]*Entry), log: log}
}

// Mount attaches the FAT volume in the first partition of slot. Mounting an
// already mounted slot is a no-op.
func (r *Registry) Mount(slot DriveSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocked > 0 {
		return ErrMountBlocked
	}
	if e, ok := r.entries[slot]; ok && e.Mounted {
		return nil
	}
	dev, err := r.client.RawOpen(slot.Path())
	if err != nil {
		return err
	}
	ft, err := probeVolume(dev)
	if err != nil {
		_ = dev.Close()
		return err
	}
	r.entries[slot] = &Entry{Slot: slot, Path: slot.Path(), Client: r.client, Raw: dev, Mounted: true, Volume: ft}
	r.log.WithFields(logrus.Fields{"slot": slot, "volume": ft}).Info("mounted")
	return nil
}

// Unmount detaches slot and closes its raw handle.
func (r *Registry) Unmount(slot DriveSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unmountLocked(slot)
}

func (r *Registry) unmountLocked(slot DriveSlot) error {
	e, ok := r.entries[slot]
	if !ok {
		return nil
	}
	delete(r.entries, slot)
	r.log.WithField("slot", slot).Info("unmounted")
	if e.Raw != nil {
		return e.Raw.Close()
	}
	return nil
}

// Entry returns a copy of the state of slot.
func (r *Registry) Entry(slot DriveSlot) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[slot]
	if !ok {
		return Entry{Slot: slot, Path: slot.Path()}, false
	}
	return *e, true
}

// Mounted reports whether slot is currently mounted.
func (r *Registry) Mounted(slot DriveSlot) bool {
	_, ok := r.Entry(slot)
	return ok
}

// Block unmounts every slot and keeps Mount failing until the returned
// release function is called. Blocks nest.
func (r *Registry) Block() (release func()) {
	r.mu.Lock()
	r.blocked++
	for _, s := range Slots {
		if err := r.unmountLocked(s); err != nil {
			r.log.WithError(err).WithField("slot", s).Warn("unmount")
		}
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.blocked--
			r.mu.Unlock()
		})
	}
}

// Close unmounts everything.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range Slots {
		_ = r.unmountLocked(s)
	}
}

func probeVolume(dev blockio.Sectors) (fatfs.Type, error) {
	_, table, err := mbr.ReadSector(dev, 0)
	if err != nil {
		return 0, err
	}
	first := table.Entries[0]
	switch first.Type() {
	case mbr.TypeFAT12, mbr.TypeFAT16Small, mbr.TypeFAT16, mbr.TypeFAT16LBA, mbr.TypeFAT32, mbr.TypeFAT32LBA:
	default:
		return 0, fmt.Errorf("%w: partition 1 type %s", ErrNotFAT, first.Type())
	}
	if uint64(first.Start()) >= dev.Info().SizeInSectors {
		return 0, fmt.Errorf("%w: partition 1 starts beyond the device", ErrNotFAT)
	}
	boot, err := dev.ReadSectors(uint64(first.Start()), 1)
	if err != nil {
		return 0, err
	}
	ft, ok := fatfs.Probe(boot)
	if !ok {
		return 0, fmt.Errorf("%w: no boot sector at lba %d", ErrNotFAT, first.Start())
	}
	return ft, nil
}
