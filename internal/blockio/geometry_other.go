//go:build !linux

package blockio

import (
	"io"
	"os"
)

const directFlag = 0

func probeGeometry(f *os.File, _ bool) (Info, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return Info{}, err
	}
	_, _ = f.Seek(0, io.SeekStart)
	return Info{SectorSize: DefaultSectorSize, SizeInSectors: uint64(size) / DefaultSectorSize}, nil
}
