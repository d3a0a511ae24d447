package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/testutil/ntfsimage"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

func TestExtractResidentFile(t *testing.T) {
	content := []byte("thirty-seven bytes of resident data!!")
	require.Len(t, content, 37)

	b := ntfsimage.New(ntfsimage.Options{})
	dir := b.AddDirectory(b.Root(), "dir1")
	ref := b.AddFile(dir, "file.txt", ntfsimage.WithResidentData(content))
	v := openImage(t, b)

	processor := v.NewExtractionProcessor(ExtractionOptions{})
	assert.Equal(t, types.StateResolving, processor.State())

	var out chunkWriter
	result, err := processor.Extract(context.Background(), types.ExtractionTarget{Path: "/dir1/file.txt"}, &out)
	require.NoError(t, err)

	assert.Equal(t, content, out.buf.Bytes())
	assert.Equal(t, []int{37}, out.chunks)
	assert.Equal(t, types.StateDone, processor.State())
	assert.Equal(t, ref, result.Reference)
	assert.True(t, result.Resident)
	assert.Equal(t, uint64(37), result.BytesExtracted)
	assert.Equal(t, "$DATA", result.Attribute)
	require.NotNil(t, result.Standard)
	assert.True(t, ntfsimage.DefaultTimestamp.Equal(result.Standard.Modified), "modified %s", result.Standard.Modified)
}

// TestExtractSignedRunDeltas covers runs (10, +50), (5, -3): clusters 50..59
// followed by clusters 47..51, truncated at a real size of 61000 bytes
func TestExtractSignedRunDeltas(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	b.WriteClusters(50, pattern(10*clusterSize, 100))
	b.WriteClusters(47, pattern(5*clusterSize, 200))
	b.AddFile(b.Root(), "runs.bin", ntfsimage.WithRuns(types.DataRunList{
		{ClusterCount: 10, LCNDelta: 50},
		{ClusterCount: 5, LCNDelta: -3},
	}, 61000))
	v := openImage(t, b)

	want := make([]byte, 0, 15*clusterSize)
	want = append(want, v.image[50*clusterSize:60*clusterSize]...)
	want = append(want, v.image[47*clusterSize:52*clusterSize]...)
	want = want[:61000]

	v.mem.ResetReads()
	var out chunkWriter
	result, err := v.NewExtractionProcessor(ExtractionOptions{}).Extract(context.Background(), types.ExtractionTarget{Path: "/runs.bin"}, &out)
	require.NoError(t, err)

	assert.Equal(t, 61000, out.buf.Len())
	assert.Equal(t, want, out.buf.Bytes())
	assert.Equal(t, uint64(61000), result.BytesExtracted)

	var data []int64
	for _, read := range v.mem.Reads() {
		if read.Offset >= 47*clusterSize && read.Offset < 60*clusterSize {
			data = append(data, read.Offset/clusterSize)
		}
	}
	assert.Equal(t, []int64{50, 47}, data, "one device read per run, in run order")
}

func TestExtractSparseFile(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	b.AddFile(b.Root(), "sparse.vhd",
		ntfsimage.WithRuns(types.DataRunList{{ClusterCount: 32, Sparse: true}}, 32*clusterSize-5),
		ntfsimage.WithAttributeFlags(types.AttrFlagSparse),
	)
	v := openImage(t, b)
	processor := v.NewExtractionProcessor(ExtractionOptions{})

	var out chunkWriter
	_, err := processor.Extract(context.Background(), types.ExtractionTarget{Path: "/sparse.vhd"}, &bytes.Buffer{})
	require.NoError(t, err)

	v.mem.ResetReads()
	target := types.ExtractionTarget{Record: refPtr(types.NewFileReference(types.MftFirstUserRecord, 0))}
	result, err := processor.Extract(context.Background(), target, &out)
	require.NoError(t, err)

	assert.Equal(t, make([]byte, 32*clusterSize-5), out.buf.Bytes())
	assert.Equal(t, uint64(32*clusterSize-5), result.SparseBytes)
	for _, read := range v.mem.Reads() {
		assert.Less(t, read.Offset, int64(ntfsimage.DefaultMftCluster+16)*clusterSize, "only MFT reads expected")
	}
}

func TestExtractStreams(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	primary := pattern(5*clusterSize, 1)
	ads := pattern(2*clusterSize+5, 2)
	b.AddFile(b.Root(), "doc.txt",
		ntfsimage.WithData(primary),
		ntfsimage.WithStream("Zone.Identifier", []byte("ZoneId=3")),
		ntfsimage.WithNonResidentStream("payload", ads),
	)
	v := openImage(t, b)

	tests := []struct {
		stream string
		want   []byte
	}{
		{stream: "", want: primary},
		{stream: "Zone.Identifier", want: []byte("ZoneId=3")},
		{stream: "zone.identifier", want: []byte("ZoneId=3")},
		{stream: "payload", want: ads},
	}

	for _, tt := range tests {
		t.Run(tt.stream, func(t *testing.T) {
			var out bytes.Buffer
			_, err := v.NewExtractionProcessor(ExtractionOptions{}).Extract(context.Background(),
				types.ExtractionTarget{Path: "/doc.txt", StreamName: tt.stream}, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Bytes())
		})
	}

	_, err := v.NewExtractionProcessor(ExtractionOptions{}).Extract(context.Background(),
		types.ExtractionTarget{Path: "/doc.txt", StreamName: "missing"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrAttributeNotFound)
}

func TestExtractAttributeTypes(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	dir := b.AddDirectory(b.Root(), "indexed", ntfsimage.WithIndexBlocks(0, 2))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		b.AddFile(dir, name)
	}
	b.AddFile(b.Root(), "reparse", ntfsimage.WithAttribute(types.AttrReparsePoint, "", []byte{0x03, 0x00, 0x00, 0xA0}))
	v := openImage(t, b)
	processor := v.NewExtractionProcessor(ExtractionOptions{})

	tests := []struct {
		name     string
		target   types.ExtractionTarget
		wantSize uint64
		kind     error
	}{
		{name: "index allocation", target: types.ExtractionTarget{Path: "/indexed", AttributeType: types.AttrIndexAllocation}},
		{name: "index root", target: types.ExtractionTarget{Path: "/indexed", AttributeType: types.AttrIndexRoot}},
		{name: "reparse point", target: types.ExtractionTarget{Path: "/reparse", AttributeType: types.AttrReparsePoint}, wantSize: 4},
		{name: "directory has no data", target: types.ExtractionTarget{Path: "/indexed"}, kind: types.ErrAttributeNotFound},
		{name: "MFT by record", target: types.ExtractionTarget{Record: refPtr(types.NewFileReference(types.MftRecordMFT, 0))},
			wantSize: ntfsimage.DefaultMftRecords * ntfsimage.DefaultRecordSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			result, err := processor.Extract(context.Background(), tt.target, &out)
			if tt.kind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.kind)
				assert.Equal(t, types.StateFailed, processor.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(out.Len()), result.BytesExtracted)
			assert.NotZero(t, out.Len())
			if tt.wantSize != 0 {
				assert.Equal(t, tt.wantSize, result.BytesExtracted)
			}
		})
	}
}

func TestExtractEncrypted(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	ciphertext := pattern(clusterSize+10, 77)
	b.AddFile(b.Root(), "secret.efs",
		ntfsimage.WithData(ciphertext),
		ntfsimage.WithAttributeFlags(types.AttrFlagEncrypted),
	)
	v := openImage(t, b)
	target := types.ExtractionTarget{Path: "/secret.efs"}

	var out bytes.Buffer
	_, err := v.NewExtractionProcessor(ExtractionOptions{}).Extract(context.Background(), target, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedAttribute)
	assert.Zero(t, out.Len())

	result, err := v.NewExtractionProcessor(ExtractionOptions{AllowEncrypted: true}).Extract(context.Background(), target, &out)
	require.NoError(t, err)
	assert.True(t, result.Encrypted)
	assert.Equal(t, ciphertext, out.Bytes())
}

func TestExtractVerifySequence(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	ref := b.AddFile(b.Root(), "f.txt", ntfsimage.WithResidentData([]byte("x")), ntfsimage.WithSequence(7))
	v := openImage(t, b)
	processor := v.NewExtractionProcessor(ExtractionOptions{})

	wrong := types.NewFileReference(ref.SegmentNumber(), 6)
	_, err := processor.Extract(context.Background(), types.ExtractionTarget{Record: &wrong, VerifySequence: true}, &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrStaleReference)

	_, err = processor.Extract(context.Background(), types.ExtractionTarget{Record: &wrong}, &bytes.Buffer{})
	assert.NoError(t, err, "sequence is only checked when requested")

	_, err = processor.Extract(context.Background(), types.ExtractionTarget{Record: &ref, VerifySequence: true}, &bytes.Buffer{})
	assert.NoError(t, err)
}

type failingWriter struct {
	after int
	short bool
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		if w.short {
			return len(p) / 2, nil
		}
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestExtractFailures(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	b.AddFile(b.Root(), "big.bin", ntfsimage.WithData(pattern(8*clusterSize, 3)))
	v := openImageWith(t, b, VolumeOptions{ReadChunkSize: clusterSize})
	target := types.ExtractionTarget{Path: "/big.bin"}

	t.Run("sink error", func(t *testing.T) {
		processor := v.NewExtractionProcessor(ExtractionOptions{})
		_, err := processor.Extract(context.Background(), target, &failingWriter{after: 2})
		assert.EqualError(t, err, "disk full")
		assert.Equal(t, types.StateFailed, processor.State())
	})

	t.Run("short write", func(t *testing.T) {
		processor := v.NewExtractionProcessor(ExtractionOptions{})
		_, err := processor.Extract(context.Background(), target, &failingWriter{after: 1, short: true})
		assert.Error(t, err)
		assert.Equal(t, types.StateFailed, processor.State())
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var out bytes.Buffer
		processor := v.NewExtractionProcessor(ExtractionOptions{})
		_, err := processor.Extract(ctx, target, &out)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, out.Len())
		assert.Equal(t, types.StateFailed, processor.State())
	})

	t.Run("device failure", func(t *testing.T) {
		processor := v.NewExtractionProcessor(ExtractionOptions{})
		v.mem.FailReads(errors.New("medium error"))
		defer v.mem.FailReads(nil)
		_, err := processor.Extract(context.Background(), target, &bytes.Buffer{})
		assert.ErrorIs(t, err, types.ErrIoFault)
		assert.Equal(t, types.StateFailed, processor.State())
	})

	t.Run("path not found", func(t *testing.T) {
		processor := v.NewExtractionProcessor(ExtractionOptions{})
		_, err := processor.Extract(context.Background(), types.ExtractionTarget{Path: "/nope"}, &bytes.Buffer{})
		assert.ErrorIs(t, err, types.ErrPathNotFound)
		assert.Equal(t, types.StateFailed, processor.State())
	})
}

func TestExtractChunksFollowOffsets(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	lcn := b.AllocateClusters(3)
	b.WriteClusters(lcn, pattern(3*clusterSize, 9))
	b.AddFile(b.Root(), "holes.bin", ntfsimage.WithRuns(types.DataRunList{
		{ClusterCount: 1, LCNDelta: int64(lcn)},
		{ClusterCount: 2, Sparse: true},
		{ClusterCount: 2, LCNDelta: 1},
	}, 5*clusterSize))
	v := openImageWith(t, b, VolumeOptions{ReadChunkSize: 2 * clusterSize})

	var out chunkWriter
	_, err := v.NewExtractionProcessor(ExtractionOptions{}).Extract(context.Background(), types.ExtractionTarget{Path: "/holes.bin"}, &out)
	require.NoError(t, err)

	assert.Equal(t, []int{clusterSize, 2 * clusterSize, 2 * clusterSize}, out.chunks)
	assert.Equal(t, pattern(3*clusterSize, 9)[:clusterSize], out.buf.Bytes()[:clusterSize])
	assert.Equal(t, make([]byte, 2*clusterSize), out.buf.Bytes()[clusterSize:3*clusterSize])
	assert.Equal(t, pattern(3*clusterSize, 9)[clusterSize:], out.buf.Bytes()[3*clusterSize:])
}

func TestSelectAttribute(t *testing.T) {
	record := &types.FileRecord{
		Reference: types.NewFileReference(40, 1),
		Attributes: []*types.Attribute{
			{Type: types.AttrData, Content: &types.ResidentContent{}},
			{Type: types.AttrData, Name: "ads", Content: &types.ResidentContent{}},
			{Type: types.AttrBitmap, Name: types.DirectoryIndexName, Content: &types.ResidentContent{}},
		},
	}

	attr, err := SelectAttribute(record, types.AttrData, "")
	require.NoError(t, err)
	assert.Equal(t, "", attr.Name)

	attr, err = SelectAttribute(record, types.AttrData, "ADS")
	require.NoError(t, err)
	assert.Equal(t, "ads", attr.Name)

	attr, err = SelectAttribute(record, types.AttrBitmap, "")
	require.NoError(t, err)
	assert.Equal(t, types.DirectoryIndexName, attr.Name)

	_, err = SelectAttribute(record, types.AttrEA, "")
	assert.ErrorIs(t, err, types.ErrAttributeNotFound)

	assert.Equal(t, []string{"", "ads"}, DataStreams(record))
}

func refPtr(ref types.FileReference) *types.FileReference {
	return &ref
}

func TestOpenReadsIncrementally(t *testing.T) {
	resident := []byte("inline value")
	physical := pattern(3*clusterSize+123, 9)

	b := ntfsimage.New(ntfsimage.Options{})
	b.AddFile(b.Root(), "small.txt", ntfsimage.WithResidentData(resident))
	b.AddFile(b.Root(), "large.bin", ntfsimage.WithData(physical))
	v := openImage(t, b)

	tests := []struct {
		name  string
		path  string
		chunk int
		want  []byte
	}{
		{name: "resident", path: "/small.txt", chunk: 5, want: resident},
		{name: "non-resident", path: "/large.bin", chunk: 1000, want: physical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := v.NewExtractionProcessor(ExtractionOptions{})
			opened, err := processor.Open(context.Background(), types.ExtractionTarget{Path: tt.path})
			require.NoError(t, err)
			assert.Equal(t, types.StateExtracting, processor.State())
			assert.Equal(t, uint64(len(tt.want)), opened.Size())

			var got []byte
			buf := make([]byte, tt.chunk)
			for {
				n, err := opened.Read(buf)
				require.LessOrEqual(t, n, tt.chunk)
				got = append(got, buf[:n]...)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, uint64(len(tt.want)), opened.Result.BytesExtracted)
		})
	}
}

func TestOpenFailureMovesToFailed(t *testing.T) {
	b := ntfsimage.New(ntfsimage.Options{})
	v := openImage(t, b)

	processor := v.NewExtractionProcessor(ExtractionOptions{})
	opened, err := processor.Open(context.Background(), types.ExtractionTarget{Path: "/absent"})
	require.Error(t, err)
	assert.Nil(t, opened)
	assert.ErrorIs(t, err, types.ErrPathNotFound)
	assert.Equal(t, types.StateFailed, processor.State())
}
