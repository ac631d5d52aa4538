// Package dictionary implements the Z-Machine dictionary: header
// parsing and a lookup keyed on the encoded word bytes (binary search,
// or a linear scan for an unsorted table). Lookup keys are built by
// zstring.Encode.
package dictionary

import (
	"bytes"

	"github.com/tholian/zinc/zcore"
	"github.com/tholian/zinc/zstring"
)

// DictionaryHeader is the fixed-layout prefix of a dictionary table:
// the input-code ("word separator") list, the byte length of each
// entry, and the entry count. A negative count means the entries are
// not sorted and must be searched linearly rather than by bisection.
type DictionaryHeader struct {
	InputCodes []uint8
	EntryLen   uint8
	Count      int16
}

// DictionaryEntry is one decoded word in the table.
type DictionaryEntry struct {
	Address     uint16
	EncodedWord []uint8
	DecodedWord string
	Data        []uint8
}

// Dictionary is a fully-parsed dictionary table, ready for lookup.
type Dictionary struct {
	Header  DictionaryHeader
	Entries []DictionaryEntry
}

// ParseDictionary reads the dictionary table at baseAddress.
func ParseDictionary(core *zcore.Core, baseAddress uint32, alphabets *zstring.Alphabets) *Dictionary {
	numInputCodes := core.ReadByte(baseAddress)
	inputCodes := make([]uint8, numInputCodes)
	for i := range inputCodes {
		inputCodes[i] = core.ReadByte(baseAddress + 1 + uint32(i))
	}

	entryLen := core.ReadByte(baseAddress + 1 + uint32(numInputCodes))
	count := int16(core.ReadHalfWord(baseAddress + 2 + uint32(numInputCodes)))

	header := DictionaryHeader{
		InputCodes: inputCodes,
		EntryLen:   entryLen,
		Count:      count,
	}

	entryPtr := baseAddress + 4 + uint32(numInputCodes)

	encodedWordLength := uint32(4)
	if core.Version > 3 {
		encodedWordLength = 6
	}

	absCount := int(count)
	if absCount < 0 {
		absCount = -absCount
	}

	entries := make([]DictionaryEntry, absCount)
	for ix := 0; ix < absCount; ix++ {
		encodedWord := core.ReadSlice(entryPtr, entryPtr+encodedWordLength)
		decodedWord, _ := zstring.Decode(core, alphabets, entryPtr, true)

		entries[ix] = DictionaryEntry{
			Address:     uint16(entryPtr),
			EncodedWord: append([]uint8(nil), encodedWord...),
			DecodedWord: decodedWord,
			Data:        core.ReadSlice(entryPtr+encodedWordLength, entryPtr+uint32(header.EntryLen)),
		}

		entryPtr += uint32(header.EntryLen)
	}

	return &Dictionary{
		Header:  header,
		Entries: entries,
	}
}

// Find looks up the address of the dictionary entry whose encoded
// bytes equal zstr, or 0 when the word is not in the dictionary.
// Entries are stored in ascending byte order when Header.Count is
// positive, so lookup bisects; a negative count (an unsorted custom
// dictionary built by `tokenise`) falls back to a linear scan.
func (d *Dictionary) Find(zstr []uint8) uint16 {
	if d.Header.Count < 0 {
		for _, entry := range d.Entries {
			if bytes.Equal(entry.EncodedWord, zstr) {
				return entry.Address
			}
		}
		return 0
	}

	lo, hi := 0, len(d.Entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(d.Entries[mid].EncodedWord, zstr)
		switch {
		case cmp == 0:
			return d.Entries[mid].Address
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0
}
