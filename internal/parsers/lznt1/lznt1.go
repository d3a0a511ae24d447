// Package lznt1 decodes the LZNT1 compression used by NTFS compressed attributes.
package lznt1

import (
	"encoding/binary"
	"fmt"
)

const (
	// ChunkSize is the uncompressed size of one chunk
	ChunkSize = 4096

	chunkCompressed = 0x8000
	chunkSizeMask   = 0x0FFF
)

// Decompress decodes a sequence of LZNT1 chunks, producing at most limit bytes.
// A chunk that decodes to fewer than ChunkSize bytes and is followed by another
// chunk is zero-padded to ChunkSize.
func Decompress(src []byte, limit int) ([]byte, error) {
	out := make([]byte, 0, limit)

	for pos := 0; pos+2 <= len(src) && len(out) < limit; {
		header := binary.LittleEndian.Uint16(src[pos:])
		if header == 0 {
			break
		}
		size := int(header&chunkSizeMask) + 1
		pos += 2
		if pos+size > len(src) {
			return nil, fmt.Errorf("chunk at offset %d truncated: needs %d bytes, %d left", pos-2, size, len(src)-pos)
		}
		chunk := src[pos : pos+size]
		pos += size

		start := len(out)
		if header&chunkCompressed == 0 {
			out = append(out, chunk...)
		} else {
			var err error
			if out, err = decompressChunk(out, chunk); err != nil {
				return nil, fmt.Errorf("chunk at offset %d: %w", pos-size-2, err)
			}
		}

		if produced := len(out) - start; produced < ChunkSize && pos+2 <= len(src) && binary.LittleEndian.Uint16(src[pos:]) != 0 {
			out = append(out, make([]byte, ChunkSize-produced)...)
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// decompressChunk appends the decoded chunk to out
func decompressChunk(out, chunk []byte) ([]byte, error) {
	base := len(out)

	for i := 0; i < len(chunk); {
		flags := chunk[i]
		i++
		for bit := 0; bit < 8 && i < len(chunk); bit++ {
			if flags&(1<<bit) == 0 {
				out = append(out, chunk[i])
				i++
				continue
			}

			if i+2 > len(chunk) {
				return nil, fmt.Errorf("truncated back-reference at %d", i)
			}
			token := binary.LittleEndian.Uint16(chunk[i:])
			i += 2

			pos := len(out) - base
			if pos == 0 {
				return nil, fmt.Errorf("back-reference before any literal")
			}
			lengthBits := LengthBits(pos)
			displacement := int(token>>lengthBits) + 1
			length := int(token&(1<<lengthBits-1)) + 3
			if displacement > pos {
				return nil, fmt.Errorf("back-reference displacement %d beyond %d decoded bytes", displacement, pos)
			}
			if pos+length > ChunkSize {
				return nil, fmt.Errorf("back-reference overruns chunk at %d", pos)
			}
			for k := 0; k < length; k++ {
				out = append(out, out[len(out)-displacement])
			}
		}
	}
	return out, nil
}

// LengthBits returns how many low bits of a back-reference token hold the
// match length when pos bytes of the chunk have been decoded. The split moves
// towards the displacement as the chunk fills up.
func LengthBits(pos int) uint {
	bits := uint(12)
	for p := pos - 1; p >= 0x10; p >>= 1 {
		bits--
	}
	return bits
}
