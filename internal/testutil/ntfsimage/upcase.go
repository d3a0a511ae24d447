package ntfsimage

import (
	"encoding/binary"
	"unicode"
	"unicode/utf16"

	textunicode "golang.org/x/text/encoding/unicode"
)

var utf16le = textunicode.UTF16(textunicode.LittleEndian, textunicode.IgnoreBOM)

func encodeName(name string) ([]byte, error) {
	return utf16le.NewEncoder().Bytes([]byte(name))
}

// encodeUnits writes code units as stored, including unpaired surrogates
func encodeUnits(units []uint16) []byte {
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// upcaseUnit maps one UTF-16 code unit to upper case, leaving surrogates and
// characters whose upper case leaves the BMP unchanged
func upcaseUnit(u uint16) uint16 {
	if utf16.IsSurrogate(rune(u)) {
		return u
	}
	upper := unicode.ToUpper(rune(u))
	if upper > 0xFFFF {
		return u
	}
	return uint16(upper)
}

// upcaseTable renders the 128KB $UpCase table
func upcaseTable() []byte {
	table := make([]byte, 0x10000*2)
	for i := 0; i < 0x10000; i++ {
		binary.LittleEndian.PutUint16(table[i*2:], upcaseUnit(uint16(i)))
	}
	return table
}

// collate orders names the way the $I30 collation does: by upper-cased code
// units, falling back to the raw units
func collate(ua, ub []uint16) int {
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if x, y := upcaseUnit(ua[i]), upcaseUnit(ub[i]); x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	if len(ua) != len(ub) {
		if len(ua) < len(ub) {
			return -1
		}
		return 1
	}
	for i := range ua {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
