// Package blockio provides sector addressed access to raw block devices and
// disk images. Every transfer goes through a freshly allocated aligned buffer
// and nothing read from the device is cached between calls.
package blockio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrDeviceUnavailable is returned when the device cannot be opened or probed.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrIO is returned when a sector read or write fails.
	ErrIO = errors.New("sector i/o failed")
	// ErrAllocation is returned when an aligned transfer buffer cannot be obtained.
	ErrAllocation = errors.New("aligned buffer allocation failed")
)

// DefaultSectorSize is used for image files, which carry no geometry of their own.
const DefaultSectorSize = 512

// Info is an immutable geometry snapshot of an opened device.
type Info struct {
	SectorSize    uint32
	SizeInSectors uint64
}

// TotalBytes returns the device capacity in bytes.
func (i Info) TotalBytes() uint64 {
	return i.SizeInSectors * uint64(i.SectorSize)
}

// Sectors is the sector level contract the partitioning code works against.
type Sectors interface {
	Info() Info
	ReadSectors(lba uint64, count uint32) ([]byte, error)
	WriteSectors(lba uint64, data []byte) error
}

// Device is an open raw handle on a block device or image file.
type Device struct {
	f      *os.File
	path   string
	info   Info
	direct bool
}

// Open opens path for raw sector access. When direct is set and path is a
// block device the handle bypasses the page cache.
func Open(path string, direct bool) (*Device, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
	}
	block := st.Mode()&os.ModeDevice != 0
	flags := os.O_RDWR
	useDirect := direct && block
	if useDirect {
		flags |= directFlag
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
	}
	info, err := probeGeometry(f, block)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
	}
	if info.SectorSize == 0 || info.SizeInSectors == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: empty device", ErrDeviceUnavailable, path)
	}
	return &Device{f: f, path: path, info: info, direct: useDirect}, nil
}

// Path returns the path the device was opened with.
func (d *Device) Path() string { return d.path }

// Info returns the geometry captured at open time.
func (d *Device) Info() Info { return d.info }

// ReadSectors reads count sectors starting at lba.
func (d *Device) ReadSectors(lba uint64, count uint32) ([]byte, error) {
	if err := d.checkRange(lba, uint64(count)); err != nil {
		return nil, err
	}
	n := int(count) * int(d.info.SectorSize)
	buf, release, err := alignedBuffer(n)
	if err != nil {
		return nil, err
	}
	defer release()

	got, err := unix.Pread(int(d.f.Fd()), buf, int64(lba)*int64(d.info.SectorSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read lba %d: %w", ErrIO, lba, err)
	}
	if got != n {
		return nil, fmt.Errorf("%w: short read at lba %d (%d of %d bytes)", ErrIO, lba, got, n)
	}
	out := make([]byte, n)
	copy(out, buf)
	return out, nil
}

// WriteSectors writes data, which must be a whole number of sectors, at lba.
func (d *Device) WriteSectors(lba uint64, data []byte) error {
	ss := int(d.info.SectorSize)
	if len(data) == 0 || len(data)%ss != 0 {
		return fmt.Errorf("%w: write of %d bytes is not a multiple of sector size %d", ErrIO, len(data), ss)
	}
	if err := d.checkRange(lba, uint64(len(data)/ss)); err != nil {
		return err
	}
	buf, release, err := alignedBuffer(len(data))
	if err != nil {
		return err
	}
	defer release()
	copy(buf, data)

	put, err := unix.Pwrite(int(d.f.Fd()), buf, int64(lba)*int64(ss))
	if err != nil {
		return fmt.Errorf("%w: write lba %d: %w", ErrIO, lba, err)
	}
	if put != len(data) {
		return fmt.Errorf("%w: short write at lba %d (%d of %d bytes)", ErrIO, lba, put, len(data))
	}
	return nil
}

// Sync flushes written sectors to the medium.
func (d *Device) Sync() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	return nil
}

// Close releases the handle.
func (d *Device) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) checkRange(lba, count uint64) error {
	if d.f == nil {
		return fmt.Errorf("%w: %s is closed", ErrDeviceUnavailable, d.path)
	}
	if count == 0 {
		return fmt.Errorf("%w: zero sector transfer", ErrIO)
	}
	if lba+count > d.info.SizeInSectors {
		return fmt.Errorf("%w: lba %d+%d beyond end of device (%d sectors)", ErrIO, lba, count, d.info.SizeInSectors)
	}
	return nil
}
