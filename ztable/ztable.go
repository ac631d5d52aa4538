// Package ztable implements the Z-Machine's table opcodes:
// scan_table, copy_table, and print_table.
package ztable

import (
	"strings"

	"github.com/tholian/zinc/zcore"
)

// PrintTable renders a width x height rectangle of ASCII text starting
// at baddr, skipping skip bytes at the end of each row, joining rows
// with '\n'. height defaults to 1 and skip to 0 at the call site (the
// opcode's optional operands), not here.
func PrintTable(core *zcore.Core, baddr uint32, width uint16, height uint16, skip uint16) string {
	var s strings.Builder

	stride := uint32(width) + uint32(skip)
	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}
		rowStart := baddr + uint32(row)*stride
		for col := uint16(0); col < width; col++ {
			s.WriteByte(core.ReadByte(rowStart + uint32(col)))
		}
	}

	return s.String()
}

// ScanTable searches length fields of form's byte width starting at
// baddr for the value test, returning the address of the first match
// or 0. form's top bit selects 2-byte fields over 1-byte fields; the
// low 7 bits are the field size in bytes (the value compared always
// occupies the first 2 bytes of a wider field).
func ScanTable(core *zcore.Core, test uint16, baddr uint32, length uint16, form uint16) uint32 {
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0
	}

	ptr := baddr
	for i := uint16(0); i < length; i++ {
		if checkWord {
			if core.ReadHalfWord(ptr) == test {
				return ptr
			}
		} else if uint16(core.ReadByte(ptr)) == test {
			return ptr
		}
		ptr += uint32(fieldSize)
	}

	return 0
}

// CopyTable copies sizeAbs bytes from first to second. second == 0
// zeroes the first table instead of copying. A positive size copies
// through an intermediate buffer so overlapping ranges see the
// original source values; a negative size copies byte-by-byte
// forwards, permitting the in-place shift Standard S15 describes for
// `copy_table`.
func CopyTable(core *zcore.Core, first uint32, second uint32, size int16) {
	sizeAbs := uint32(size)
	if size < 0 {
		sizeAbs = uint32(-int32(size))
	}

	switch {
	case second == 0:
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(first+i, 0)
		}

	case size >= 0:
		tmp := make([]uint8, sizeAbs)
		for i := uint32(0); i < sizeAbs; i++ {
			tmp[i] = core.ReadByte(first + i)
		}
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(second+i, tmp[i])
		}

	default:
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(second+i, core.ReadByte(first+i))
		}
	}
}
