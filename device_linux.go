//go:build linux

package main

import (
	"os"
	"path/filepath"
	"strings"
)

// listMounted parses /proc/self/mounts and keeps the /dev backed entries.
func listMounted() []mountedVol {
	b, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return nil
	}
	return parseMounts(string(b))
}

func parseMounts(s string) []mountedVol {
	var out []mountedVol
	for _, ln := range strings.Split(s, "\n") {
		// format: <src> <target> <fstype> <opts> ...
		fields := strings.Fields(ln)
		if len(fields) < 3 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		out = append(out, mountedVol{MountPoint: filepath.Clean(fields[1]), Device: fields[0], FSType: fields[2]})
	}
	return out
}
