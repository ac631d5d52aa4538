package zstring

import "github.com/tholian/zinc/zcore"

// AbbreviationAddress returns the byte address of the Z-string for
// abbreviation table shift z (1-3) and index x (0-31), per spec.md S3:
// abbrev_base + 2*((shift-1)*32 + index).
func AbbreviationAddress(core *zcore.Core, z uint8, x uint8) uint32 {
	entryAddr := uint32(core.AbbreviationTableBase) + 2*uint32((uint16(z)-1)*32+uint16(x))
	return 2 * uint32(core.ReadHalfWord(entryAddr))
}
