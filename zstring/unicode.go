package zstring

import "github.com/tholian/zinc/zcore"

// DefaultUnicodeTranslationTable maps the extra characters a standard
// Z-machine interpreter supports (ZSCII 155-251) to Unicode runes, per
// the default Unicode translation table in the Z-Machine Standard.
var DefaultUnicodeTranslationTable = map[uint8]rune{
	155: 'ä', 156: 'ö', 157: 'ü', 158: 'Ä', 159: 'Ö', 160: 'Ü', 161: 'ß',
	162: '»', 163: '«', 164: 'ë', 165: 'ï', 166: 'ÿ', 167: 'Ë', 168: 'Ï',
	169: 'á', 170: 'é', 171: 'í', 172: 'ó', 173: 'ú', 174: 'ý', 175: 'Á',
	176: 'É', 177: 'Í', 178: 'Ó', 179: 'Ú', 180: 'Ý', 181: 'à', 182: 'è',
	183: 'ì', 184: 'ò', 185: 'ù', 186: 'À', 187: 'È', 188: 'Ì', 189: 'Ò',
	190: 'Ù', 191: 'â', 192: 'ê', 193: 'î', 194: 'ô', 195: 'û', 196: 'Â',
	197: 'Ê', 198: 'Î', 199: 'Ô', 200: 'Û', 201: 'å', 202: 'Å', 203: 'ø',
	204: 'Ø', 205: 'ã', 206: 'ñ', 207: 'õ', 208: 'Ã', 209: 'Ñ', 210: 'Õ',
	211: 'æ', 212: 'Æ', 213: 'ç', 214: 'Ç', 215: 'þ', 216: 'ð', 217: 'Þ',
	218: 'Ð', 219: '£', 220: 'œ', 221: 'Œ', 222: '¡', 223: '¿',
}

// ZsciiToUnicode translates an extended ZSCII code (155-251) to a
// Unicode rune, preferring the story's custom Unicode extension table
// (read via the header extension table) over the default table.
func ZsciiToUnicode(zchr uint8, core *zcore.Core) (rune, bool) {
	if table := parseUnicodeTranslationTable(core); table != nil {
		if r, ok := table[zchr]; ok {
			return r, true
		}
	}
	r, ok := DefaultUnicodeTranslationTable[zchr]
	return r, ok
}

// unicodeToZscii is the inverse of ZsciiToUnicode, used by the encoder
// when a rune isn't representable in any of the three standard
// alphabets and must be escaped through a ZSCII code instead.
func unicodeToZscii(r rune, core *zcore.Core) (uint8, bool) {
	if table := parseUnicodeTranslationTable(core); table != nil {
		for code, candidate := range table {
			if candidate == r {
				return code, true
			}
		}
	}
	for code, candidate := range DefaultUnicodeTranslationTable {
		if candidate == r {
			return code, true
		}
	}
	return 0, false
}

// parseUnicodeTranslationTable reads a story's custom Unicode table, if
// the header declares one: a count byte followed by that many 16-bit
// Unicode code points, assigned to ZSCII codes 155, 156, ... in order.
// Returns nil when no custom table is present.
func parseUnicodeTranslationTable(core *zcore.Core) map[uint8]rune {
	if core.UnicodeExtensionTableBaseAddress == 0 {
		return nil
	}
	base := uint32(core.UnicodeExtensionTableBaseAddress)
	count := core.ReadByte(base)
	if count == 0 {
		return nil
	}
	table := make(map[uint8]rune, count)
	for i := 0; i < int(count); i++ {
		table[uint8(155+i)] = rune(core.ReadHalfWord(base + 1 + uint32(i)*2))
	}
	return table
}
