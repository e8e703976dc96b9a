//go:build linux

package blockio

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const directFlag = unix.O_DIRECT

// probeGeometry asks the kernel for the logical sector size and byte size of
// a block device, and falls back to seeking for image files.
func probeGeometry(f *os.File, block bool) (Info, error) {
	if !block {
		size, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return Info{}, err
		}
		_, _ = f.Seek(0, io.SeekStart)
		return Info{SectorSize: DefaultSectorSize, SizeInSectors: uint64(size) / DefaultSectorSize}, nil
	}

	ss, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return Info{}, fmt.Errorf("BLKSSZGET: %w", err)
	}
	var sizeBytes uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sizeBytes)))
	if errno != 0 {
		return Info{}, fmt.Errorf("BLKGETSIZE64: %w", errno)
	}
	return Info{SectorSize: uint32(ss), SizeInSectors: sizeBytes / uint64(ss)}, nil
}
