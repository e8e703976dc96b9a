// Package firmware applies the IOSU kernel patches that unlock custom format
// sizes and attach USB mass storage under the SD device type.
package firmware

import "fmt"

// Patcher writes and reads 32-bit kernel words.
type Patcher interface {
	Write32(addr, value uint32) error
	Read32(addr uint32) (uint32, error)
}

// Kernel addresses and instruction words of the FAT format and device
// attach routines.
const (
	AddrDeviceType     uint32 = 0x1077eda0
	AddrFormatSizeGate uint32 = 0x1078e354
	AddrFormatStore    uint32 = 0x1078e358
	AddrFormatStoreHi  uint32 = 0x1078e35c
	AddrFormatBranch   uint32 = 0x1078e360
	AddrFormatSize     uint32 = 0x1078e36c
	AddrSDGeometryMax  uint32 = 0x1080bf20

	InsnDeviceTypeSD  uint32 = 0xe3a03006 // mov r3,#0x6
	InsnDeviceTypeUSB uint32 = 0xe3a03011 // mov r3,#0x11

	InsnSkipSizeCheck uint32 = 0xEA000075 // b 0x1078e530
	InsnLoadSize      uint32 = 0xE59F4010 // ldr r4,[pc,#0x10]
	InsnStoreSize     uint32 = 0xE5824014 // str r4,[r2,#0x14]
	InsnStoreSizeHi   uint32 = 0xE58D4088 // str r4,[sp,#0x88]
	InsnBranchFAT32   uint32 = 0xEA000072 // b 0x1078e530

	GeometryUnlimited uint32 = 0xffffffff
)

// UnlockCustomFormatSize patches the native format routine. With sectors == 0
// the 32GB ceiling is skipped and the routine picks its own size; otherwise
// it formats exactly that many sectors as FAT32.
func UnlockCustomFormatSize(p Patcher, sectors uint32) error {
	var writes [][2]uint32
	if sectors == 0 {
		writes = append(writes, [2]uint32{AddrFormatSizeGate, InsnSkipSizeCheck})
	} else {
		writes = append(writes,
			[2]uint32{AddrFormatSizeGate, InsnLoadSize},
			[2]uint32{AddrFormatStore, InsnStoreSize},
			[2]uint32{AddrFormatStoreHi, InsnStoreSizeHi},
			[2]uint32{AddrFormatBranch, InsnBranchFAT32},
			[2]uint32{AddrFormatSize, sectors},
		)
	}
	writes = append(writes, [2]uint32{AddrSDGeometryMax, GeometryUnlimited})
	return apply(p, writes)
}

// USBAsSD switches the device type reported for newly attached USB storage
// between SD (so it shows up as /dev/sdcard01) and plain USB.
func USBAsSD(p Patcher, enable bool) error {
	insn := InsnDeviceTypeUSB
	if enable {
		insn = InsnDeviceTypeSD
	}
	return apply(p, [][2]uint32{{AddrDeviceType, insn}})
}

func apply(p Patcher, writes [][2]uint32) error {
	for _, w := range writes {
		if err := p.Write32(w[0], w[1]); err != nil {
			return fmt.Errorf("kernel write 0x%08x=0x%08x: %w", w[0], w[1], err)
		}
	}
	return nil
}

// FormatPolicy is how the patched format routine will size the next format.
type FormatPolicy struct {
	// SizeCheckRemoved is set once either patch variant has been applied.
	SizeCheckRemoved bool
	// CustomSectors is the forced sector count, zero when the routine sizes itself.
	CustomSectors uint32
}

// ReadFormatPolicy decodes the current patch state of the format routine.
func ReadFormatPolicy(p Patcher) (FormatPolicy, error) {
	gate, err := p.Read32(AddrFormatSizeGate)
	if err != nil {
		return FormatPolicy{}, err
	}
	switch gate {
	case InsnSkipSizeCheck:
		return FormatPolicy{SizeCheckRemoved: true}, nil
	case InsnLoadSize:
		size, err := p.Read32(AddrFormatSize)
		if err != nil {
			return FormatPolicy{}, err
		}
		return FormatPolicy{SizeCheckRemoved: true, CustomSectors: size}, nil
	default:
		return FormatPolicy{}, nil
	}
}

// USBAttachedAsSD reports whether the device type patch is active.
func USBAttachedAsSD(p Patcher) (bool, error) {
	v, err := p.Read32(AddrDeviceType)
	if err != nil {
		return false, err
	}
	return v == InsnDeviceTypeSD, nil
}
