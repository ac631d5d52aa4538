// Package zstring implements the Z-Machine text subsystem: packed
// Z-string decoding (three alphabets, single-shot shifts, abbreviation
// expansion, 10-bit ZSCII escapes) and the encoder used to build
// dictionary lookup keys.
package zstring

import (
	"strings"

	"github.com/tholian/zinc/zcore"
)

// Alphabets holds the three 26-entry ZSCII character tables a Z-string
// decodes through. Index i corresponds to Z-character (i+6); for A2,
// index 0 is the unused slot reserved for the escape code (Z-char 6)
// and is never looked up.
type Alphabets struct {
	A0 [26]uint8
	A1 [26]uint8
	A2 [26]uint8
}

var defaultA0 = [26]uint8{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var defaultA1 = [26]uint8{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}

// defaultA2[0] is the unused escape slot (Z-char 6); index 1 onward is
// Z-char 7 ('\n') through Z-char 31 (')').
var defaultA2 = [26]uint8{0, '\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

// DefaultAlphabets returns the standard A0/A1/A2 tables used when a
// story declares no custom alphabet table.
func DefaultAlphabets() *Alphabets {
	return &Alphabets{A0: defaultA0, A1: defaultA1, A2: defaultA2}
}

// LoadAlphabets returns the default alphabets, or the story's custom
// 78-byte alphabet table (v5+, S3.5.5.1 of the Standard) when the
// header declares one.
func LoadAlphabets(core *zcore.Core) *Alphabets {
	alphabets := DefaultAlphabets()

	if core.Version >= 5 && core.AlternativeCharSetBaseAddress != 0 {
		base := uint32(core.AlternativeCharSetBaseAddress)
		for i := 0; i < 26; i++ {
			alphabets.A0[i] = core.ReadByte(base + uint32(i))
			alphabets.A1[i] = core.ReadByte(base + 26 + uint32(i))
			alphabets.A2[i] = core.ReadByte(base + 52 + uint32(i))
		}
	}

	return alphabets
}

const (
	shiftA1 = 4
	shiftA2 = 5
	zscii6  = 6 // Z-char 6 in alphabet A2: opens a 10-bit ZSCII escape
)

// Decode reads a packed Z-string starting at addr, returning the
// decoded text and the number of bytes consumed. allowAbbrev controls
// whether abbreviation references (Z-chars 1-3) are expanded; Decode
// always passes false when expanding an abbreviation itself, since
// abbreviations may only nest one level deep.
func Decode(core *zcore.Core, alphabets *Alphabets, addr uint32, allowAbbrev bool) (string, uint32) {
	var zchars []uint8
	bytesRead := uint32(0)

	for {
		word := core.ReadHalfWord(addr + bytesRead)
		bytesRead += 2
		zchars = append(zchars,
			uint8((word>>10)&0b1_1111),
			uint8((word>>5)&0b1_1111),
			uint8(word&0b1_1111),
		)
		if word&0x8000 != 0 {
			break
		}
	}

	var out strings.Builder
	alphabet := 0 // 0=A0, 1=A1, 2=A2 -- single-shot, reverts to A0 after one character

	for i := 0; i < len(zchars); i++ {
		zchr := zchars[i]
		current := alphabet
		alphabet = 0

		switch {
		case zchr == 0:
			out.WriteByte(' ')

		case zchr >= 1 && zchr <= 3:
			if !allowAbbrev {
				// Nested abbreviation reference during an expansion: the shift
				// and its index Z-character are consumed as a pair and produce
				// no text rather than being expanded again, to bound recursion
				// to one level (spec.md S4.2).
				if i+1 < len(zchars) {
					i++
				}
				continue
			}
			if i+1 >= len(zchars) {
				break
			}
			index := zchars[i+1]
			i++
			strAddr := AbbreviationAddress(core, zchr, index)
			expansion, _ := Decode(core, alphabets, strAddr, false)
			out.WriteString(expansion)

		case zchr == shiftA1:
			alphabet = 1

		case zchr == shiftA2:
			alphabet = 2

		case current == 2 && zchr == zscii6:
			if i+2 >= len(zchars) {
				break
			}
			code := zchars[i+1]<<5 | zchars[i+2]
			i += 2
			out.WriteRune(zsciiToRune(code, core))

		default:
			var table [26]uint8
			switch current {
			case 0:
				table = alphabets.A0
			case 1:
				table = alphabets.A1
			default:
				table = alphabets.A2
			}
			out.WriteRune(zsciiToRune(table[zchr-6], core))
		}
	}

	return out.String(), bytesRead
}

// Encode converts runes into a dictionary-ready packed Z-string: padded
// or truncated to the version's encoded word length (6 Z-chars in v3,
// 9 in v4+), right-padded with Z-character 5, terminated by setting the
// top bit of the final word.
func Encode(runes []rune, core *zcore.Core, alphabets *Alphabets) []uint8 {
	targetZchars := 6
	if core.Version > 3 {
		targetZchars = 9
	}

	zchars := make([]uint8, 0, targetZchars)
	for _, r := range runes {
		if len(zchars) >= targetZchars {
			break
		}
		zchars = appendEncodedRune(zchars, r, core, alphabets)
	}
	if len(zchars) > targetZchars {
		zchars = zchars[:targetZchars]
	}
	for len(zchars) < targetZchars {
		zchars = append(zchars, 5)
	}

	out := make([]uint8, targetZchars/3*2)
	for w := 0; w < targetZchars/3; w++ {
		word := uint16(zchars[w*3])<<10 | uint16(zchars[w*3+1])<<5 | uint16(zchars[w*3+2])
		if w == targetZchars/3-1 {
			word |= 0x8000
		}
		out[w*2] = uint8(word >> 8)
		out[w*2+1] = uint8(word)
	}
	return out
}

func appendEncodedRune(zchars []uint8, r rune, core *zcore.Core, alphabets *Alphabets) []uint8 {
	if r == ' ' {
		return append(zchars, 0)
	}
	if idx, ok := indexOf(alphabets.A0, uint8(r)); ok {
		return append(zchars, uint8(idx+6))
	}
	if idx, ok := indexOf(alphabets.A1, uint8(r)); ok {
		return append(zchars, shiftA1, uint8(idx+6))
	}
	if idx, ok := indexOf(alphabets.A2, uint8(r)); ok && idx != 0 {
		return append(zchars, shiftA2, uint8(idx+6))
	}
	if zscii, ok := unicodeToZscii(r, core); ok {
		return append(zchars, shiftA2, zscii6, zscii>>5, zscii&0b1_1111)
	}
	// Unrepresentable character: spec.md S4.2 says this becomes Z-character 5.
	return append(zchars, 5)
}

func indexOf(table [26]uint8, b uint8) (int, bool) {
	for i, v := range table {
		if v == b {
			return i, true
		}
	}
	return 0, false
}

func zsciiToRune(code uint8, core *zcore.Core) rune {
	if code >= 155 && code <= 251 {
		if r, ok := ZsciiToUnicode(code, core); ok {
			return r
		}
	}
	return rune(code)
}
