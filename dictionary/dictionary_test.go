package dictionary

import (
	"testing"

	"github.com/tholian/zinc/zcore"
	"github.com/tholian/zinc/zstring"
)

func newTestCore(t *testing.T, version uint8) *zcore.Core {
	t.Helper()
	size := 0x400
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

// writeDictionary lays out a minimal v3 dictionary with no input
// codes at base, containing words in ascending encoded-byte order.
func writeDictionary(t *testing.T, core *zcore.Core, base uint32, words []string, alphabets *zstring.Alphabets) {
	t.Helper()
	core.WriteByte(base, 0) // zero input codes
	core.WriteByte(base+1, 7)
	core.WriteHalfWord(base+2, uint16(len(words)))

	entryPtr := base + 4
	for _, w := range words {
		packed := zstring.Encode([]rune(w), core, alphabets)
		for i, b := range packed {
			core.WriteByte(entryPtr+uint32(i), b)
		}
		entryPtr += 7
	}
}

func TestParseAndFindSorted(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	// Encoded order must be ascending for binary search; "go" < "north" < "west"
	// once packed, matching their natural alphabetic order under A0.
	words := []string{"go", "north", "west"}
	writeDictionary(t, core, 0x100, words, alphabets)

	dict := ParseDictionary(core, 0x100, alphabets)
	if len(dict.Entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(dict.Entries))
	}

	for _, w := range words {
		key := zstring.Encode([]rune(w), core, alphabets)[:4]
		addr := dict.Find(key)
		if addr == 0 {
			t.Errorf("word %q not found", w)
		}
	}

	missing := zstring.Encode([]rune("xyzzy"), core, alphabets)[:4]
	if addr := dict.Find(missing); addr != 0 {
		t.Errorf("unexpected match for missing word, addr=%#x", addr)
	}
}

func TestFindUnsortedLinearFallback(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	// Deliberately out-of-order words with a negative count, as a
	// custom `tokenise` dictionary may be.
	core.WriteByte(0x100, 0)
	core.WriteByte(0x101, 7)
	negativeCount := int16(-2)
	core.WriteHalfWord(0x102, uint16(negativeCount))

	entryPtr := uint32(0x104)
	for _, w := range []string{"zebra", "apple"} {
		packed := zstring.Encode([]rune(w), core, alphabets)
		for i, b := range packed {
			core.WriteByte(entryPtr+uint32(i), b)
		}
		entryPtr += 7
	}

	dict := ParseDictionary(core, 0x100, alphabets)
	if dict.Header.Count != -2 {
		t.Fatalf("Count = %d, want -2", dict.Header.Count)
	}

	key := zstring.Encode([]rune("apple"), core, alphabets)[:4]
	if addr := dict.Find(key); addr == 0 {
		t.Error("apple should be found via linear fallback despite being out of sorted order")
	}
}
