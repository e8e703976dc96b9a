package workflow

import "github.com/zer00p/wafel-installer/internal/fsa"

// MountGuard keeps the FAT layer from mounting the device while raw writes
// are in flight. Release lifts the block and, when the guarded work
// succeeded, mounts the SD slot again.
type MountGuard struct {
	mounts  Mounter
	release func()
	ok      bool
}

func NewMountGuard(m Mounter) *MountGuard {
	return &MountGuard{mounts: m}
}

// Block unmounts everything and blocks auto-mount. Blocking twice is a
// no-op.
func (g *MountGuard) Block() {
	if g.release == nil {
		g.release = g.mounts.Block()
	}
}

func (g *MountGuard) Blocked() bool { return g.release != nil }

// Succeeded marks the guarded work as complete.
func (g *MountGuard) Succeeded() { g.ok = true }

func (g *MountGuard) Release() {
	if g.release == nil {
		return
	}
	g.release()
	g.release = nil
	if g.ok {
		_ = g.mounts.Mount(fsa.SlotSD)
	}
}
