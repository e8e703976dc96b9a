package fatfs

import "encoding/binary"

const defaultOEM = "WAFELFMT"

func padRight(s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	b := make([]byte, n)
	copy(b, s)
	for i := len(s); i < n; i++ {
		b[i] = ' '
	}
	return b
}

// bootStub prints the message at msgAddr through int 0x10, waits for a key
// and reboots, like any non-system disk.
func bootStub(msgAddr uint16) []byte {
	return []byte{
		0x0E, 0x1F,
		0xBE, byte(msgAddr), byte(msgAddr >> 8),
		0xAC, 0x22, 0xC0, 0x74, 0x0B,
		0x56, 0xB4, 0x0E, 0xBB, 0x07, 0x00, 0xCD, 0x10, 0x5E,
		0xEB, 0xF0,
		0x32, 0xE4, 0xCD, 0x16, 0xCD, 0x19,
		0xEB, 0xFE,
	}
}

const bootMessage = "Non-system disk or disk error\r\nReplace and press any key when ready\r\n\x00"

func putCommonBPB(sec []byte, g geom, oem string) {
	copy(sec[3:11], padRight(oem, 8))
	binary.LittleEndian.PutUint16(sec[11:], g.BytesPerSector)
	sec[13] = g.SectorsPerCluster
	binary.LittleEndian.PutUint16(sec[14:], g.ReservedSectors)
	sec[16] = g.NumFATs
	binary.LittleEndian.PutUint16(sec[17:], g.RootEntries)
	binary.LittleEndian.PutUint16(sec[19:], g.TotalSectors16)
	sec[21] = g.Media
	binary.LittleEndian.PutUint16(sec[24:], g.SectorsPerTrack)
	binary.LittleEndian.PutUint16(sec[26:], g.NumHeads)
	binary.LittleEndian.PutUint32(sec[28:], g.HiddenSectors)
	binary.LittleEndian.PutUint32(sec[32:], g.TotalSectors32)
}

func buildBootSector16(g geom, label, oem string, volID uint32) []byte {
	sec := make([]byte, g.BytesPerSector)
	sec[0], sec[1], sec[2] = 0xEB, 0x3C, 0x90
	putCommonBPB(sec, g, oem)
	binary.LittleEndian.PutUint16(sec[22:], g.SectorsPerFAT16)
	sec[36], sec[37], sec[38] = 0x80, 0x00, 0x29
	binary.LittleEndian.PutUint32(sec[39:], volID)
	copy(sec[43:54], padRight(label, 11))
	copy(sec[54:62], "FAT16   ")
	copy(sec[62:], bootStub(0x7C77))
	copy(sec[119:], bootMessage)
	sec[510], sec[511] = 0x55, 0xAA
	return sec
}

func buildBootSector32(g geom, label, oem string, volID uint32) []byte {
	sec := make([]byte, g.BytesPerSector)
	sec[0], sec[1], sec[2] = 0xEB, 0x58, 0x90
	putCommonBPB(sec, g, oem)
	binary.LittleEndian.PutUint32(sec[36:], g.SectorsPerFAT32)
	binary.LittleEndian.PutUint32(sec[44:], g.RootCluster)
	binary.LittleEndian.PutUint16(sec[48:], g.FSInfoSector)
	binary.LittleEndian.PutUint16(sec[50:], g.BackupBootSector)
	sec[64], sec[65], sec[66] = 0x80, 0x00, 0x29
	binary.LittleEndian.PutUint32(sec[67:], volID)
	copy(sec[71:82], padRight(label, 11))
	copy(sec[82:90], "FAT32   ")
	copy(sec[90:], bootStub(0x7CA3))
	copy(sec[163:], bootMessage)
	sec[510], sec[511] = 0x55, 0xAA
	return sec
}

func buildFSInfo(sectorSize uint16, freeClusters uint32) []byte {
	fs := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(fs[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fs[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fs[488:], freeClusters)
	binary.LittleEndian.PutUint32(fs[492:], 0x00000003)
	binary.LittleEndian.PutUint32(fs[508:], 0xAA550000)
	return fs
}

func buildLabelEntry(label string) []byte {
	e := make([]byte, 32)
	copy(e[0:11], padRight(label, 11))
	e[11] = 0x08
	return e
}

// firstFATSector returns sector 0 of a FAT with the reserved entries set.
func firstFATSector(ft Type, sectorSize uint16, media byte) []byte {
	b := make([]byte, sectorSize)
	if ft == FAT16 {
		b[0], b[1], b[2], b[3] = media, 0xFF, 0xFF, 0xFF
		return b
	}
	binary.LittleEndian.PutUint32(b[0:], 0x0FFFFF00|uint32(media))
	binary.LittleEndian.PutUint32(b[4:], 0x0FFFFFFF)
	// root directory cluster, end of chain
	binary.LittleEndian.PutUint32(b[8:], 0x0FFFFFFF)
	return b
}
