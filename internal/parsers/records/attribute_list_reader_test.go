package records

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

func attributeListEntry(attrType types.AttributeType, name string, lowestVCN uint64, ref types.FileReference) []byte {
	encoded, _ := EncodeName(name)
	length := (0x1A + len(encoded) + 7) &^ 7
	entry := make([]byte, length)
	binary.LittleEndian.PutUint32(entry[0x00:], uint32(attrType))
	binary.LittleEndian.PutUint16(entry[0x04:], uint16(length))
	entry[0x06] = uint8(len(encoded) / 2)
	entry[0x07] = 0x1A
	binary.LittleEndian.PutUint64(entry[0x08:], lowestVCN)
	binary.LittleEndian.PutUint64(entry[0x10:], uint64(ref))
	copy(entry[0x1A:], encoded)
	return entry
}

func TestParseAttributeList(t *testing.T) {
	var data []byte
	data = append(data, attributeListEntry(types.AttrStandardInformation, "", 0, types.NewFileReference(40, 2))...)
	data = append(data, attributeListEntry(types.AttrData, "", 0, types.NewFileReference(41, 1))...)
	data = append(data, attributeListEntry(types.AttrData, "", 512, types.NewFileReference(42, 1))...)
	data = append(data, attributeListEntry(types.AttrData, "backup", 0, types.NewFileReference(40, 2))...)

	entries, err := ParseAttributeList(data)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, types.AttrStandardInformation, entries[0].Type)
	assert.Equal(t, uint64(41), entries[1].Reference.SegmentNumber())
	assert.Equal(t, uint64(512), entries[2].LowestVCN)
	assert.Equal(t, uint64(42), entries[2].Reference.SegmentNumber())
	assert.Equal(t, "backup", entries[3].Name)
	assert.Equal(t, uint16(2), entries[3].Reference.SequenceNumber())
}

func TestParseAttributeListErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(data []byte) []byte
		errorMsg string
	}{
		{
			name: "zero length entry",
			mutate: func(data []byte) []byte {
				binary.LittleEndian.PutUint16(data[0x04:], 0)
				return data
			},
			errorMsg: "invalid length",
		},
		{
			name: "entry longer than value",
			mutate: func(data []byte) []byte {
				binary.LittleEndian.PutUint16(data[0x04:], 0x400)
				return data
			},
			errorMsg: "invalid length",
		},
		{
			name: "name outside entry",
			mutate: func(data []byte) []byte {
				data[0x06] = 40
				return data
			},
			errorMsg: "name outside entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(attributeListEntry(types.AttrData, "s", 0, types.NewFileReference(20, 1)))
			_, err := ParseAttributeList(data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
