package records

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeName decodes a UTF-16LE name
func DecodeName(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("odd UTF-16 name length %d", len(data))
	}
	decoded, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode UTF-16 name: %w", err)
	}
	return string(decoded), nil
}

// DecodeNameUnits returns the UTF-16LE code units of a name unchanged
func DecodeNameUnits(data []byte) []uint16 {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return units
}

// EncodeName encodes a name as UTF-16LE
func EncodeName(name string) ([]byte, error) {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to encode UTF-16 name: %w", err)
	}
	return encoded, nil
}
