// Package fsa talks to the filesystem server: device info, raw handles and the
// native format ioctl.
package fsa

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Format ioctl layout.
const (
	CmdFormat          = 0x69
	FormatRequestSize  = 0x520
	FormatResponseSize = 0x293
	// IPCAlignment is the alignment the IPC buffer must be allocated with.
	IPCAlignment = 0x40

	deviceFieldSize     = 0x280
	filesystemFieldSize = 8

	offDevice     = 4
	offFilesystem = offDevice + deviceFieldSize
	offFlags      = offFilesystem + filesystemFieldSize
	offParam5     = offFlags + 4
	offParam6     = offParam5 + 4
)

// FormatRequest is the packed input of the format ioctl. The three trailing
// words are reserved and zero at every current call site.
type FormatRequest struct {
	Device     string
	Filesystem string
	Flags      uint32
	Param5     uint32
	Param6     uint32
}

// MarshalBinary encodes the request into the 0x520 byte input buffer.
// Strings are NUL terminated and must leave room for the terminator.
func (r FormatRequest) MarshalBinary() ([]byte, error) {
	if len(r.Device) >= deviceFieldSize {
		return nil, fmt.Errorf("device path %q exceeds %d bytes", r.Device, deviceFieldSize-1)
	}
	if len(r.Filesystem) >= filesystemFieldSize {
		return nil, fmt.Errorf("filesystem tag %q exceeds %d bytes", r.Filesystem, filesystemFieldSize-1)
	}
	buf := make([]byte, FormatRequestSize)
	copy(buf[offDevice:], r.Device)
	copy(buf[offFilesystem:], r.Filesystem)
	binary.BigEndian.PutUint32(buf[offFlags:], r.Flags)
	binary.BigEndian.PutUint32(buf[offParam5:], r.Param5)
	binary.BigEndian.PutUint32(buf[offParam6:], r.Param6)
	return buf, nil
}

// UnmarshalBinary decodes an input buffer produced by MarshalBinary.
func (r *FormatRequest) UnmarshalBinary(buf []byte) error {
	if len(buf) < offParam6+4 {
		return fmt.Errorf("format request too short: %d bytes", len(buf))
	}
	r.Device = cString(buf[offDevice : offDevice+deviceFieldSize])
	r.Filesystem = cString(buf[offFilesystem : offFilesystem+filesystemFieldSize])
	r.Flags = binary.BigEndian.Uint32(buf[offFlags:])
	r.Param5 = binary.BigEndian.Uint32(buf[offParam5:])
	r.Param6 = binary.BigEndian.Uint32(buf[offParam6:])
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
