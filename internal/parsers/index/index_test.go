package index

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/testutil/ntfsimage"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

type directoryImage struct {
	image  []byte
	record *types.FileRecord
	b      *ntfsimage.Builder
}

func buildDirectory(t *testing.T, files int, opts ...ntfsimage.FileOption) directoryImage {
	t.Helper()
	b := ntfsimage.New(ntfsimage.Options{})
	dir := b.AddDirectory(b.Root(), "logs", opts...)
	for i := 0; i < files; i++ {
		b.AddFile(dir, fmt.Sprintf("file-%03d.log", i))
	}
	image := b.Build()

	offset := b.RecordOffset(dir.SegmentNumber())
	raw := append([]byte(nil), image[offset:offset+ntfsimage.DefaultRecordSize]...)
	record, err := records.ParseFileRecord(types.NewByteBuffer(raw), dir.SegmentNumber())
	require.NoError(t, err)
	return directoryImage{image: image, record: record, b: b}
}

func (d directoryImage) root(t *testing.T) *types.IndexRoot {
	t.Helper()
	attr, ok := d.record.FindAttribute(types.AttrIndexRoot, types.DirectoryIndexName)
	require.True(t, ok)
	root, err := ParseIndexRoot(attr.Content.(*types.ResidentContent).Data)
	require.NoError(t, err)
	return root
}

// block returns a copy of the INDX block at vcn, assuming blocks of one cluster
func (d directoryImage) block(t *testing.T, vcn uint64) []byte {
	t.Helper()
	attr, ok := d.record.FindAttribute(types.AttrIndexAllocation, types.DirectoryIndexName)
	require.True(t, ok)
	extents, err := attr.Content.(*types.NonResidentContent).Runs.Extents()
	require.NoError(t, err)
	clusterSize := d.b.ClusterSize()
	offset := (extents[0].LCN + vcn) * clusterSize
	return append([]byte(nil), d.image[offset:offset+ntfsimage.DefaultIndexBlockSize]...)
}

func TestParseIndexRootResident(t *testing.T) {
	d := buildDirectory(t, 3)
	root := d.root(t)

	assert.Equal(t, types.AttrFileName, root.IndexedType)
	assert.Equal(t, types.CollationFileName, root.CollationRule)
	assert.Equal(t, uint32(ntfsimage.DefaultIndexBlockSize), root.IndexBlockSize)
	assert.False(t, root.Node.HasChildren())

	require.Len(t, root.Entries, 4)
	assert.Equal(t, "file-000.log", root.Entries[0].Name)
	assert.Equal(t, "file-002.log", root.Entries[2].Name)
	assert.True(t, root.Entries[3].IsLast)
	assert.Nil(t, root.Entries[3].FileName)
	for _, entry := range root.Entries[:3] {
		assert.False(t, entry.IsSubnode)
		assert.NotZero(t, entry.Reference.SegmentNumber())
	}
}

func TestParseIndexBlocks(t *testing.T) {
	d := buildDirectory(t, 12, ntfsimage.WithIndexBlocks(0, 4))
	root := d.root(t)

	assert.True(t, root.Node.HasChildren())
	require.NotEmpty(t, root.Entries)
	last := root.Entries[len(root.Entries)-1]
	assert.True(t, last.IsLast)
	assert.True(t, last.IsSubnode)

	var names []string
	var walk func(vcn uint64)
	walk = func(vcn uint64) {
		block, err := ParseIndexBlock(d.block(t, vcn), ntfsimage.DefaultIndexBlockSize)
		require.NoError(t, err)
		assert.Equal(t, vcn, block.VCN)
		for _, entry := range block.Entries {
			if entry.IsSubnode {
				walk(entry.ChildVCN)
			}
			if !entry.IsLast {
				names = append(names, entry.Name)
			}
		}
	}
	walk(last.ChildVCN)
	assert.Len(t, names, 12)
	assert.IsIncreasing(t, names)
}

func TestParseIndexBlockErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(block []byte) []byte
	}{
		{
			name:   "bad signature",
			mutate: func(block []byte) []byte { copy(block, "FILE"); return block },
		},
		{
			name: "torn write",
			mutate: func(block []byte) []byte {
				block[1022] ^= 0xFF
				return block
			},
		},
		{
			name:   "short block",
			mutate: func(block []byte) []byte { return block[:1024] },
		},
		{
			name: "index length past block",
			mutate: func(block []byte) []byte {
				binary.LittleEndian.PutUint32(block[types.IndexBlockHeaderSize+4:], 0x2000)
				return block
			},
		},
		{
			name: "entry length zero",
			mutate: func(block []byte) []byte {
				start := types.IndexBlockHeaderSize + int(binary.LittleEndian.Uint32(block[types.IndexBlockHeaderSize:]))
				binary.LittleEndian.PutUint16(block[start+8:], 0)
				return block
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := buildDirectory(t, 6, ntfsimage.WithIndexBlocks(0, 8))
			block := tt.mutate(d.block(t, 0))
			_, err := ParseIndexBlock(block, ntfsimage.DefaultIndexBlockSize)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrIndexCorrupt)
		})
	}
}

func TestParseIndexRootErrors(t *testing.T) {
	d := buildDirectory(t, 2)
	attr, _ := d.record.FindAttribute(types.AttrIndexRoot, types.DirectoryIndexName)
	data := attr.Content.(*types.ResidentContent).Data

	_, err := ParseIndexRoot(data[:0x18])
	assert.ErrorIs(t, err, types.ErrIndexCorrupt)

	truncated := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(truncated[types.IndexRootHeaderSize+4:], uint32(len(data)))
	_, err = ParseIndexRoot(truncated)
	assert.ErrorIs(t, err, types.ErrIndexCorrupt)

	noTerminator := append([]byte(nil), data...)
	entries := types.IndexRootHeaderSize + int(binary.LittleEndian.Uint32(noTerminator[types.IndexRootHeaderSize:]))
	binary.LittleEndian.PutUint32(noTerminator[types.IndexRootHeaderSize+4:], uint32(entries+types.IndexEntryHeaderSize-types.IndexRootHeaderSize))
	_, err = ParseIndexRoot(noTerminator)
	assert.ErrorIs(t, err, types.ErrIndexCorrupt)
}
