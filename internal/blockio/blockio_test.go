package blockio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openImage(t *testing.T, size int64) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, CreateImage(path, size))
	dev, err := Open(path, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestOpenImageGeometry(t *testing.T) {
	dev := openImage(t, 8<<20)
	info := dev.Info()
	assert.Equal(t, uint32(512), info.SectorSize)
	assert.Equal(t, uint64(16384), info.SizeInSectors)
	assert.Equal(t, uint64(8<<20), info.TotalBytes())
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"), false)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestReadWriteRoundTrip(t *testing.T) {
	dev := openImage(t, 1<<20)
	data := bytes.Repeat([]byte{0xA5, 0x5A}, 512)
	require.NoError(t, dev.WriteSectors(7, data))

	got, err := dev.ReadSectors(7, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	zero, err := dev.ReadSectors(9, 1)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 512), zero)
}

func TestTransferErrors(t *testing.T) {
	dev := openImage(t, 1<<20)
	last := dev.Info().SizeInSectors

	tests := []struct {
		name string
		run  func() error
	}{
		{"read past end", func() error { _, err := dev.ReadSectors(last, 1); return err }},
		{"read zero sectors", func() error { _, err := dev.ReadSectors(0, 0); return err }},
		{"write partial sector", func() error { return dev.WriteSectors(0, make([]byte, 100)) }},
		{"write past end", func() error { return dev.WriteSectors(last-1, make([]byte, 1024)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), ErrIO)
		})
	}
}

func TestClosedDevice(t *testing.T) {
	dev := openImage(t, 1<<20)
	require.NoError(t, dev.Close())
	_, err := dev.ReadSectors(0, 1)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.NoError(t, dev.Close())
}

func TestAlignedBuffer(t *testing.T) {
	buf, release, err := alignedBuffer(512)
	require.NoError(t, err)
	defer release()
	assert.Len(t, buf, 512)

	_, _, err = alignedBuffer(0)
	assert.ErrorIs(t, err, ErrAllocation)
}

func TestMemoryFaults(t *testing.T) {
	mem := NewMemory(512, 64)
	require.NoError(t, mem.WriteSectors(3, bytes.Repeat([]byte{1}, 512)))
	assert.Equal(t, byte(1), mem.Sector(3)[0])

	mem.FailWrite = func(lba uint64) error {
		if lba == 4 {
			return assert.AnError
		}
		return nil
	}
	err := mem.WriteSectors(3, make([]byte, 1024))
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, byte(1), mem.Sector(3)[0], "failed write must not land partially")
}
