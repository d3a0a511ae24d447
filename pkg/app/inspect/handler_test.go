package inspect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/testutil/ntfsimage"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

type fixture struct {
	path    string
	file    types.FileReference
	deleted types.FileReference
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := ntfsimage.New(ntfsimage.Options{VolumeLabel: "EVIDENCE", FragmentMFT: true})
	f := &fixture{}
	f.file = b.AddFile(b.Root(), "hiberfil.sys",
		ntfsimage.WithData(bytes.Repeat([]byte{0xAB}, 3*4096)),
		ntfsimage.WithStream("meta", []byte("resident stream")))
	f.deleted = b.AddFile(b.Root(), "gone.tmp", ntfsimage.WithResidentData([]byte("deleted")))
	b.MarkNotInUse(f.deleted)

	f.path = filepath.Join(t.TempDir(), "volume.img")
	require.NoError(t, os.WriteFile(f.path, b.Build(), 0o644))
	return f
}

func newContext() *app.Context {
	ctx := app.NewContext()
	ctx.Stdout = io.Discard
	ctx.Stderr = io.Discard
	return ctx
}

func TestHandleVolume(t *testing.T) {
	f := newFixture(t)

	resp, err := Handle(newContext(), &Request{Source: app.VolumeSource{Path: f.path}})
	require.NoError(t, err)

	v := resp.Volume
	assert.Equal(t, "EVIDENCE", v.Label)
	assert.Equal(t, "3.1", v.Version)
	assert.Equal(t, uint64(4096), v.ClusterSize)
	assert.Equal(t, uint16(512), v.BytesPerSector)
	assert.Equal(t, uint64(ntfsimage.DefaultMftCluster), v.MftCluster)
	assert.Equal(t, uint32(ntfsimage.DefaultRecordSize), v.RecordSize)
	assert.Equal(t, uint64(ntfsimage.DefaultMftRecords), v.MftRecords)
	assert.Len(t, v.MftExtents, 2)
	assert.Equal(t, "$UpCase", v.UpCaseSource)
	assert.Len(t, v.SerialNumber, 16)
	assert.Nil(t, resp.Record)
}

func TestHandleRecord(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		record   string
		validate func(t *testing.T, r *RecordResult)
	}{
		{
			name:   "file with streams",
			record: f.file.String(),
			validate: func(t *testing.T, r *RecordResult) {
				assert.True(t, r.InUse)
				assert.False(t, r.Directory)
				assert.Equal(t, []string{"hiberfil.sys"}, r.Names)

				var data []AttributeResult
				for _, a := range r.Attributes {
					if a.Type == "$DATA" {
						data = append(data, a)
					}
				}
				require.Len(t, data, 2)
				for _, a := range data {
					if a.Name == "" {
						assert.False(t, a.Resident)
						assert.Equal(t, uint64(3*4096), a.Size)
						assert.NotEmpty(t, a.Extents)
					} else {
						assert.Equal(t, "meta", a.Name)
						assert.True(t, a.Resident)
					}
				}
			},
		},
		{
			name:   "freed record",
			record: fmt.Sprint(f.deleted.SegmentNumber()),
			validate: func(t *testing.T, r *RecordResult) {
				assert.False(t, r.InUse)
				assert.Equal(t, []string{"gone.tmp"}, r.Names)
			},
		},
		{
			name:   "mft",
			record: "0",
			validate: func(t *testing.T, r *RecordResult) {
				assert.Equal(t, []string{"$MFT"}, r.Names)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Handle(newContext(), &Request{Source: app.VolumeSource{Path: f.path}, Record: tt.record})
			require.NoError(t, err)
			require.NotNil(t, resp.Record)
			tt.validate(t, resp.Record)
		})
	}
}

func TestHandleFailures(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		request  *Request
		wantCode string
		wantKind error
	}{
		{name: "no volume", request: &Request{}, wantCode: app.ErrCodeInvalidInput},
		{name: "bad record", request: &Request{Source: app.VolumeSource{Path: f.path}, Record: "abc"}, wantCode: app.ErrCodeInvalidInput},
		{name: "out of range", request: &Request{Source: app.VolumeSource{Path: f.path}, Record: "100000"}, wantCode: app.ErrCodeOperationFailed, wantKind: types.ErrRecordOutOfRange},
		{name: "stale", request: &Request{Source: app.VolumeSource{Path: f.path}, Record: types.NewFileReference(f.file.SegmentNumber(), f.file.SequenceNumber()+1).String()}, wantCode: app.ErrCodeOperationFailed, wantKind: types.ErrStaleReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Handle(newContext(), tt.request)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, app.ErrorCode(err))
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			}
		})
	}
}

func TestFormatOutput(t *testing.T) {
	f := newFixture(t)
	resp, err := Handle(newContext(), &Request{Source: app.VolumeSource{Path: f.path}, Record: f.file.String()})
	require.NoError(t, err)

	var table bytes.Buffer
	require.NoError(t, FormatOutput(&table, resp, "table"))
	s := table.String()
	assert.Contains(t, s, "EVIDENCE")
	assert.Contains(t, s, "NTFS version:")
	assert.Contains(t, s, "$MFT run list:")
	assert.Contains(t, s, "name: hiberfil.sys")
	assert.Contains(t, s, "$STANDARD_INFORMATION")

	var out bytes.Buffer
	require.NoError(t, FormatOutput(&out, resp, "json"))
	var decoded Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, resp.Volume, decoded.Volume)
	require.NotNil(t, decoded.Record)
	assert.Equal(t, resp.Record.Names, decoded.Record.Names)

	out.Reset()
	require.NoError(t, FormatOutput(&out, resp, "yaml"))
	assert.Contains(t, out.String(), "label: EVIDENCE")

	assert.Error(t, FormatOutput(&out, resp, "xml"))
}
