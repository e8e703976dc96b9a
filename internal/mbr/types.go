package mbr

// Type is the partition type byte of an entry.
type Type uint8

const (
	TypeEmpty         Type = 0x00
	TypeFAT12         Type = 0x01
	TypeFAT16Small    Type = 0x04
	TypeFAT16         Type = 0x06
	TypeNTFS          Type = 0x07 // NTFS, exFAT and WFS share the tag
	TypeFAT32         Type = 0x0B
	TypeFAT32LBA      Type = 0x0C
	TypeFAT16LBA      Type = 0x0E
	TypeExtendedLBA   Type = 0x0F
	TypeLinuxSwap     Type = 0x82
	TypeLinux         Type = 0x83
	TypeGPTProtective Type = 0xEE
)

// TypeWFS is the tag used for the Wii U storage partition.
const TypeWFS = TypeNTFS

// IsFAT32 reports whether t is one of the two FAT32 tags.
func (t Type) IsFAT32() bool {
	return t == TypeFAT32 || t == TypeFAT32LBA
}

func (t Type) String() string {
	switch t {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16Small:
		return "FAT16 <32M"
	case TypeFAT16:
		return "FAT16"
	case TypeFAT32:
		return "FAT32"
	case TypeFAT32LBA:
		return "FAT32 (LBA)"
	case TypeNTFS:
		return "NTFS/exFAT/WFS"
	case TypeFAT16LBA:
		return "FAT16 (LBA)"
	case TypeExtendedLBA:
		return "Extended (LBA)"
	case TypeLinuxSwap:
		return "Linux Swap"
	case TypeLinux:
		return "Linux"
	case TypeGPTProtective:
		return "GPT/EFI"
	default:
		return "Unknown"
	}
}
