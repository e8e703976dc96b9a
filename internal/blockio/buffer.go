package blockio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BufferAlignment is the DMA alignment the storage stack requires. Anonymous
// mappings are page aligned, which satisfies it.
const BufferAlignment = 0x40

func alignedBuffer(n int) ([]byte, func(), error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("%w: invalid size %d", ErrAllocation, n)
	}
	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d bytes: %w", ErrAllocation, n, err)
	}
	return buf, func() { _ = unix.Munmap(buf) }, nil
}
