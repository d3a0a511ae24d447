package runs

import (
	"fmt"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// DecodeRunList decodes the mapping pairs of a non-resident attribute. Each run
// starts with a header byte whose low nibble is the size of the cluster count
// field and whose high nibble is the size of the signed LCN delta field; a zero
// delta size marks a sparse run. A zero header byte ends the list.
func DecodeRunList(data []byte) (types.DataRunList, error) {
	var list types.DataRunList

	for i := 0; i < len(data); {
		header := data[i]
		if header == 0 {
			return list, nil
		}
		lengthSize := int(header & 0x0F)
		offsetSize := int(header >> 4)
		if lengthSize == 0 || lengthSize > 8 || offsetSize > 8 {
			return nil, fmt.Errorf("invalid run header 0x%02X at offset %d", header, i)
		}
		i++
		if i+lengthSize+offsetSize > len(data) {
			return nil, fmt.Errorf("run at offset %d truncated: needs %d bytes, %d left", i-1, lengthSize+offsetSize, len(data)-i)
		}

		count := readUnsigned(data[i : i+lengthSize])
		i += lengthSize
		if count == 0 {
			return nil, fmt.Errorf("run %d has zero length", len(list))
		}

		run := types.DataRun{ClusterCount: count}
		if offsetSize == 0 {
			run.Sparse = true
		} else {
			run.LCNDelta = readSigned(data[i : i+offsetSize])
			i += offsetSize
		}
		list = append(list, run)
	}

	return list, nil
}

// EncodeRunList encodes a run list as mapping pairs, terminated by a zero byte
func EncodeRunList(list types.DataRunList) []byte {
	var out []byte
	for _, run := range list {
		count := unsignedBytes(run.ClusterCount)
		var delta []byte
		if !run.Sparse {
			delta = signedBytes(run.LCNDelta)
		}
		out = append(out, byte(len(delta)<<4|len(count)))
		out = append(out, count...)
		out = append(out, delta...)
	}
	return append(out, 0)
}

func readUnsigned(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func readSigned(b []byte) int64 {
	v := readUnsigned(b)
	shift := uint(64 - 8*len(b))
	return int64(v<<shift) >> shift
}

func unsignedBytes(v uint64) []byte {
	out := []byte{byte(v)}
	for v >>= 8; v != 0; v >>= 8 {
		out = append(out, byte(v))
	}
	return out
}

func signedBytes(v int64) []byte {
	var out []byte
	for {
		b := byte(v)
		out = append(out, b)
		v >>= 8
		if (v == 0 && b&0x80 == 0) || (v == -1 && b&0x80 != 0) {
			return out
		}
	}
}
