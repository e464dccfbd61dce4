package util

import (
	"hash/crc32"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func Extend(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, crcTable, data)
}

func Value(data []byte) uint32 {
	return Extend(0, data)
}

// kMaskDelta is used to invert the low order bits of the checksum so that
// the checksum computed for a string that contains an embedded checksum is
// different than the string that has the same checksum stored somewhere
// else in the data.
const kMaskDelta = 0xa282ead8

// MaskChecksum returns a masked representation of crc.
func MaskChecksum(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + kMaskDelta
}

// UnmaskChecksum returns the crc whose masked representation is maskedCrc.
func UnmaskChecksum(maskedCrc uint32) uint32 {
	rot := maskedCrc - kMaskDelta
	return (rot >> 17) | (rot << 15)
}

func ChecksumValue(data []byte) uint32 {
	return Value(data)
}

func ChecksumExtend(crc uint32, data []byte) uint32 {
	return Extend(crc, data)
}
