package zstring

import (
	"testing"

	"github.com/tholian/zinc/zcore"
)

// newTestCore builds a minimal, valid story image of the given version
// and size, with the static/high memory boundary placed at the end of
// the image so every address is writable during a test.
func newTestCore(t *testing.T, version uint8, size int) *zcore.Core {
	t.Helper()
	raw := make([]uint8, size)
	raw[0x00] = version
	raw[0x0e] = uint8(size >> 8)
	raw[0x0f] = uint8(size)
	raw[0x04] = uint8(size >> 8)
	raw[0x05] = uint8(size)

	core, err := zcore.Load(raw)
	if err != nil {
		t.Fatalf("failed to build test core: %v", err)
	}
	return core
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tt := []struct {
		name    string
		text    string
		version uint8
	}{
		{"short v3 word", "go", 3},
		{"exact length v3 word", "mailbo", 3},
		{"padded v4 word", "yes", 5},
		{"with space", "hi there", 5},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			core := newTestCore(t, tc.version, 0x200)
			alphabets := DefaultAlphabets()

			packed := Encode([]rune(tc.text), core, alphabets)
			expectedLen := 4
			if tc.version > 3 {
				expectedLen = 6
			}
			if len(packed) != expectedLen {
				t.Fatalf("Encode produced %d bytes, want %d", len(packed), expectedLen)
			}

			addr := uint32(0x100)
			for i, b := range packed {
				core.WriteByte(addr+uint32(i), b)
			}

			decoded, bytesRead := Decode(core, alphabets, addr, true)
			if bytesRead != uint32(len(packed)) {
				t.Fatalf("bytesRead = %d, want %d", bytesRead, len(packed))
			}

			maxChars := 6
			if tc.version > 3 {
				maxChars = 9
			}
			want := tc.text
			if len(want) > maxChars {
				want = want[:maxChars]
			}
			if decoded != want {
				t.Fatalf("decoded %q, want %q", decoded, want)
			}
		})
	}
}

func TestDecodeAbbreviation(t *testing.T) {
	core := newTestCore(t, 3, 0x400)
	alphabets := DefaultAlphabets()

	// Place the abbreviation's expansion text ("hi") at 0x200, and its
	// word address (0x200/2) into abbreviation table slot (z=1, x=0).
	expansion := Encode([]rune("hi"), core, alphabets)
	expansionAddr := uint32(0x200)
	for i, b := range expansion {
		core.WriteByte(expansionAddr+uint32(i), b)
	}

	abbrevTableBase := uint32(0x80)
	core.AbbreviationTableBase = uint16(abbrevTableBase)
	core.WriteHalfWord(abbrevTableBase, uint16(expansionAddr/2))

	// A string whose only content is a reference to abbreviation (z=1, x=0).
	zchars := [3]uint8{1, 0, 5} // 5 pads the final triple
	word := uint16(zchars[0])<<10 | uint16(zchars[1])<<5 | uint16(zchars[2])
	word |= 0x8000

	addr := uint32(0x300)
	core.WriteByte(addr, uint8(word>>8))
	core.WriteByte(addr+1, uint8(word))

	out, bytesRead := Decode(core, alphabets, addr, true)
	if out != "hi" {
		t.Fatalf("decoded %q, want %q", out, "hi")
	}
	if bytesRead != 2 {
		t.Fatalf("bytesRead = %d, want 2", bytesRead)
	}
}

func TestDecodeAbbreviationDoesNotNest(t *testing.T) {
	core := newTestCore(t, 3, 0x400)
	alphabets := DefaultAlphabets()

	// An abbreviation's own expansion text references another
	// abbreviation (z=1, x=0); per spec.md S4.2 abbreviations expand
	// only one level deep, so the nested reference must be left
	// untouched rather than recursively expanded.
	nestedZchars := [3]uint8{1, 0, 5}
	nestedWord := uint16(nestedZchars[0])<<10 | uint16(nestedZchars[1])<<5 | uint16(nestedZchars[2])
	nestedWord |= 0x8000
	nestedAddr := uint32(0x200)
	core.WriteByte(nestedAddr, uint8(nestedWord>>8))
	core.WriteByte(nestedAddr+1, uint8(nestedWord))

	abbrevTableBase := uint32(0x80)
	core.AbbreviationTableBase = uint16(abbrevTableBase)
	core.WriteHalfWord(abbrevTableBase, uint16(nestedAddr/2))

	topZchars := [3]uint8{1, 0, 5}
	topWord := uint16(topZchars[0])<<10 | uint16(topZchars[1])<<5 | uint16(topZchars[2])
	topWord |= 0x8000
	topAddr := uint32(0x300)
	core.WriteByte(topAddr, uint8(topWord>>8))
	core.WriteByte(topAddr+1, uint8(topWord))

	out, _ := Decode(core, alphabets, topAddr, true)
	if out != "" {
		t.Fatalf("nested abbreviation reference should not expand, got %q", out)
	}
}

func TestDecodeZsciiEscape(t *testing.T) {
	core := newTestCore(t, 3, 0x200)
	alphabets := DefaultAlphabets()

	// Shift to A2 (Z-char 5), escape (Z-char 6), then the 10-bit ZSCII
	// code for 'ä' (155 = 0b0_00100_11011) split into two 5-bit halves.
	code := uint8(155)
	zchars := [6]uint8{shiftA2, zscii6, code >> 5, code & 0b1_1111, 5, 5}
	word0 := uint16(zchars[0])<<10 | uint16(zchars[1])<<5 | uint16(zchars[2])
	word1 := uint16(zchars[3])<<10 | uint16(zchars[4])<<5 | uint16(zchars[5])
	word1 |= 0x8000

	addr := uint32(0x100)
	core.WriteByte(addr, uint8(word0>>8))
	core.WriteByte(addr+1, uint8(word0))
	core.WriteByte(addr+2, uint8(word1>>8))
	core.WriteByte(addr+3, uint8(word1))

	out, bytesRead := Decode(core, alphabets, addr, true)
	if out != "ä" {
		t.Fatalf("decoded %q, want %q", out, "ä")
	}
	if bytesRead != 4 {
		t.Fatalf("bytesRead = %d, want 4", bytesRead)
	}
}

func TestLoadAlphabetsCustomTable(t *testing.T) {
	core := newTestCore(t, 5, 0x200)
	core.AlternativeCharSetBaseAddress = 0x100

	custom := make([]uint8, 78)
	for i := range custom {
		custom[i] = 'x'
	}
	for i, b := range custom {
		core.WriteByte(0x100+uint32(i), b)
	}

	alphabets := LoadAlphabets(core)
	for _, b := range alphabets.A0 {
		if b != 'x' {
			t.Fatalf("custom A0 not loaded, got %v", alphabets.A0)
		}
	}
}

func TestLoadAlphabetsDefaultsBelowV5(t *testing.T) {
	core := newTestCore(t, 3, 0x200)
	alphabets := LoadAlphabets(core)
	if alphabets.A0 != defaultA0 {
		t.Fatalf("v3 story should use default alphabets regardless of header fields")
	}
}

func TestZsciiRoundTrip(t *testing.T) {
	core := newTestCore(t, 5, 0x200)

	r, ok := ZsciiToUnicode(155, core)
	if !ok || r != 'ä' {
		t.Fatalf("ZsciiToUnicode(155) = %q, %v, want 'ä', true", r, ok)
	}

	code, ok := unicodeToZscii('ä', core)
	if !ok || code != 155 {
		t.Fatalf("unicodeToZscii('ä') = %d, %v, want 155, true", code, ok)
	}
}

func TestAbbreviationAddress(t *testing.T) {
	core := newTestCore(t, 3, 0x200)
	core.AbbreviationTableBase = 0x80
	core.WriteHalfWord(0x80+2*uint32((2-1)*32+5), 0x123)

	got := AbbreviationAddress(core, 2, 5)
	if got != 0x246 {
		t.Fatalf("AbbreviationAddress(z=2, x=5) = %#x, want %#x", got, 0x246)
	}
}
