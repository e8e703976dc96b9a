//go:build darwin

package main

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

func bytesToStringDarwin(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func listMounted() []mountedVol {
	var out []mountedVol
	n, err := unix.Getfsstat(nil, unix.MNT_NOWAIT)
	if err != nil || n <= 0 {
		return out
	}
	buf := make([]unix.Statfs_t, n)
	if _, err := unix.Getfsstat(buf, unix.MNT_NOWAIT); err != nil {
		return out
	}
	for _, st := range buf {
		out = append(out, mountedVol{
			MountPoint: filepath.Clean(bytesToStringDarwin(st.Mntonname[:])),
			Device:     bytesToStringDarwin(st.Mntfromname[:]),
			FSType:     bytesToStringDarwin(st.Fstypename[:]),
		})
	}
	return out
}
