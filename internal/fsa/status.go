package fsa

import "fmt"

// Status is a filesystem server result code.
type Status int32

const (
	StatusOK             Status = 0
	StatusNotFound       Status = -6
	StatusAccessError    Status = -9
	StatusStorageFull    Status = -12
	StatusUnsupportedCmd Status = -14
	StatusMediaNotReady  Status = -15
	StatusMediaError     Status = -17
	StatusCorrupted      Status = -18
	StatusFatalError     Status = -0x400
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusAccessError:
		return "ACCESS_ERROR"
	case StatusStorageFull:
		return "STORAGE_FULL"
	case StatusUnsupportedCmd:
		return "UNSUPPORTED_CMD"
	case StatusMediaNotReady:
		return "MEDIA_NOT_READY"
	case StatusMediaError:
		return "MEDIA_ERROR"
	case StatusCorrupted:
		return "CORRUPTED"
	case StatusFatalError:
		return "FATAL_ERROR"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}
