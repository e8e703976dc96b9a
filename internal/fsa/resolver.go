package fsa

import (
	"fmt"
	"os"

	"github.com/zer00p/wafel-installer/internal/blockio"
	"github.com/zer00p/wafel-installer/internal/firmware"
)

// Resolver maps a logical device path to the node that backs it.
type Resolver interface {
	Resolve(logical string) (string, error)
}

// HostResolver backs the logical devices with host block devices or image
// files. While the USB-as-SD patch is active, newly attached USB storage is
// reported under the SD path.
type HostResolver struct {
	Kernel firmware.Patcher
	SD     string
	USB    string
}

func (r HostResolver) Resolve(logical string) (string, error) {
	var backing string
	switch logical {
	case PathSD:
		backing = r.SD
		if usb, err := firmware.USBAttachedAsSD(r.Kernel); err == nil && usb {
			backing = r.USB
		}
	case PathUSB1:
		backing = r.USB
	default:
		return "", fmt.Errorf("%w: unknown device %s", blockio.ErrDeviceUnavailable, logical)
	}
	if backing == "" {
		return "", fmt.Errorf("%w: no backing device configured for %s", blockio.ErrDeviceUnavailable, logical)
	}
	if _, err := os.Stat(backing); err != nil {
		return "", fmt.Errorf("%w: %s not inserted", blockio.ErrDeviceUnavailable, logical)
	}
	return backing, nil
}
