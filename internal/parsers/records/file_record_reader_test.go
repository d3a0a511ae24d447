package records

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/testutil/ntfsimage"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// recordBytes builds a volume holding a single file and returns a copy of its record
func recordBytes(t *testing.T, setup func(b *ntfsimage.Builder) types.FileReference) ([]byte, types.FileReference) {
	t.Helper()
	b := ntfsimage.New(ntfsimage.Options{})
	ref := setup(b)
	image := b.Build()
	offset := b.RecordOffset(ref.SegmentNumber())
	return append([]byte(nil), image[offset:offset+ntfsimage.DefaultRecordSize]...), ref
}

func TestParseFileRecord(t *testing.T) {
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	raw, ref := recordBytes(t, func(b *ntfsimage.Builder) types.FileReference {
		return b.AddFile(b.Root(), "report.txt",
			ntfsimage.WithData(payload),
			ntfsimage.WithStream("Zone.Identifier", []byte("[ZoneTransfer]\r\nZoneId=3\r\n")),
		)
	})

	record, err := ParseFileRecord(types.NewByteBuffer(raw), ref.SegmentNumber())
	require.NoError(t, err)

	assert.Equal(t, ref, record.Reference)
	assert.True(t, record.InUse())
	assert.False(t, record.IsDirectory())
	assert.True(t, record.IsBaseRecord())
	assert.Equal(t, uint32(ref.SegmentNumber()), record.Header.RecordNumber)

	fn, ok := record.FindAttribute(types.AttrFileName, "")
	require.True(t, ok)
	name, err := ParseFileName(fn.Content.(*types.ResidentContent).Data)
	require.NoError(t, err)
	assert.Equal(t, "report.txt", name.Name)
	assert.Equal(t, uint64(len(payload)), name.RealSize)

	data, ok := record.FindAttribute(types.AttrData, "")
	require.True(t, ok)
	nonResident, ok := data.NonResident()
	require.True(t, ok)
	assert.Equal(t, uint64(len(payload)), nonResident.RealSize)
	assert.Equal(t, uint64(3), nonResident.Runs.TotalClusters())

	stream, ok := record.FindAttribute(types.AttrData, "zone.identifier")
	require.True(t, ok, "stream names match case-insensitively")
	resident, ok := stream.Resident()
	require.True(t, ok)
	assert.Contains(t, string(resident.Data), "ZoneId=3")
}

func TestParseFileRecordResidentContent(t *testing.T) {
	content := []byte("thirty-seven bytes of resident data!!")
	require.Len(t, content, 37)
	raw, ref := recordBytes(t, func(b *ntfsimage.Builder) types.FileReference {
		return b.AddFile(b.Root(), "file.txt", ntfsimage.WithResidentData(content))
	})

	record, err := ParseFileRecord(types.NewByteBuffer(raw), ref.SegmentNumber())
	require.NoError(t, err)
	data, ok := record.FindAttribute(types.AttrData, "")
	require.True(t, ok)
	assert.True(t, data.IsResident())
	assert.Equal(t, uint64(37), data.Size())
	assert.Equal(t, content, data.Content.(*types.ResidentContent).Data)
}

func TestParseFileRecordErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(b *ntfsimage.Builder, ref types.FileReference)
		mutate func(raw []byte)
		kind   error
	}{
		{
			name:  "BAAD signature",
			setup: func(b *ntfsimage.Builder, ref types.FileReference) { b.MarkBad(ref) },
			kind:  types.ErrRecordDamaged,
		},
		{
			name:  "torn write",
			setup: func(b *ntfsimage.Builder, ref types.FileReference) { b.DamageRecord(ref) },
			kind:  types.ErrRecordDamaged,
		},
		{
			name: "update sequence array skips last stride",
			mutate: func(raw []byte) {
				binary.LittleEndian.PutUint16(raw[types.OffsetRecordUSACount:], 2)
				raw[len(raw)-1] ^= 0xFF
			},
			kind: types.ErrMalformedRecord,
		},
		{
			name:   "unknown signature",
			mutate: func(raw []byte) { copy(raw, "XXXX") },
			kind:   types.ErrMalformedRecord,
		},
		{
			name: "attribute length past used size",
			mutate: func(raw []byte) {
				attrOffset := binary.LittleEndian.Uint16(raw[types.OffsetRecordAttrOffset:])
				binary.LittleEndian.PutUint32(raw[int(attrOffset)+types.OffsetAttrLength:], 0x300)
			},
			kind: types.ErrMalformedRecord,
		},
		{
			name: "used size beyond record",
			mutate: func(raw []byte) {
				binary.LittleEndian.PutUint32(raw[types.OffsetRecordBytesInUse:], 0x800)
			},
			kind: types.ErrMalformedRecord,
		},
		{
			name: "attribute offset beyond used size",
			mutate: func(raw []byte) {
				binary.LittleEndian.PutUint16(raw[types.OffsetRecordAttrOffset:], 0x3F0)
			},
			kind: types.ErrMalformedRecord,
		},
		{
			name: "terminator missing",
			mutate: func(raw []byte) {
				attrOffset := binary.LittleEndian.Uint16(raw[types.OffsetRecordAttrOffset:])
				length := binary.LittleEndian.Uint32(raw[int(attrOffset)+types.OffsetAttrLength:])
				binary.LittleEndian.PutUint32(raw[types.OffsetRecordBytesInUse:], uint32(attrOffset)+length)
			},
			kind: types.ErrMalformedRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ref := recordBytes(t, func(b *ntfsimage.Builder) types.FileReference {
				ref := b.AddFile(b.Root(), "victim.bin", ntfsimage.WithResidentData([]byte("data")))
				if tt.setup != nil {
					tt.setup(b, ref)
				}
				return ref
			})
			if tt.mutate != nil {
				tt.mutate(raw)
			}

			_, err := ParseFileRecord(types.NewByteBuffer(raw), ref.SegmentNumber())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var ntfsErr *types.NTFSError
			require.ErrorAs(t, err, &ntfsErr)
			require.NotNil(t, ntfsErr.Record)
			assert.Equal(t, ref.SegmentNumber(), *ntfsErr.Record)
		})
	}
}

func TestParseFileRecordDirectory(t *testing.T) {
	raw, ref := recordBytes(t, func(b *ntfsimage.Builder) types.FileReference {
		dir := b.AddDirectory(b.Root(), "dir1")
		b.AddFile(dir, "a.txt")
		return dir
	})

	record, err := ParseFileRecord(types.NewByteBuffer(raw), ref.SegmentNumber())
	require.NoError(t, err)
	assert.True(t, record.IsDirectory())
	root, ok := record.FindAttribute(types.AttrIndexRoot, types.DirectoryIndexName)
	require.True(t, ok)
	assert.True(t, root.IsResident())
}
