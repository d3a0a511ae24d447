package ntfsimage

import "encoding/binary"

const (
	lznt1ChunkSize = 4096
	// maxSearch bounds the match search window to keep test images fast to build
	maxSearch = 1024
)

// CompressLZNT1 encodes data as a sequence of LZNT1 chunks. Chunks that do not
// shrink are stored uncompressed.
func CompressLZNT1(data []byte) []byte {
	var out []byte
	for start := 0; start < len(data); start += lznt1ChunkSize {
		end := start + lznt1ChunkSize
		if end > len(data) {
			end = len(data)
		}
		out = append(out, compressChunk(data[start:end])...)
	}
	return out
}

func compressChunk(chunk []byte) []byte {
	var body []byte
	for pos := 0; pos < len(chunk); {
		flagIndex := len(body)
		body = append(body, 0)
		for bit := 0; bit < 8 && pos < len(chunk); bit++ {
			lengthBits := tokenLengthBits(pos)
			maxLength := 1<<lengthBits - 1 + 3
			maxDisplacement := 1 << (16 - lengthBits)
			if maxDisplacement > maxSearch {
				maxDisplacement = maxSearch
			}

			bestLength, bestDisplacement := 0, 0
			for displacement := 1; displacement <= pos && displacement <= maxDisplacement; displacement++ {
				length := 0
				for length < maxLength && pos+length < len(chunk) && chunk[pos+length] == chunk[pos+length-displacement] {
					length++
				}
				if length > bestLength {
					bestLength, bestDisplacement = length, displacement
				}
			}

			if bestLength < 3 {
				body = append(body, chunk[pos])
				pos++
				continue
			}
			token := uint16((bestDisplacement-1)<<lengthBits | (bestLength - 3))
			body[flagIndex] |= 1 << bit
			body = binary.LittleEndian.AppendUint16(body, token)
			pos += bestLength
		}
	}

	if len(body) < len(chunk) {
		out := binary.LittleEndian.AppendUint16(nil, 0xB000|uint16(len(body)-1))
		return append(out, body...)
	}
	out := binary.LittleEndian.AppendUint16(nil, 0x3000|uint16(len(chunk)-1))
	return append(out, chunk...)
}

func tokenLengthBits(pos int) uint {
	bits := uint(12)
	for p := pos - 1; p >= 0x10; p >>= 1 {
		bits--
	}
	return bits
}
