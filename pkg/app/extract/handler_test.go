package extract

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
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
	report  types.FileReference
	content []byte
	stream  []byte
	large   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		content: []byte("quarterly figures, do not distribute"),
		stream:  []byte("[ZoneTransfer]\r\nZoneId=3\r\n"),
		large:   bytes.Repeat([]byte("0123456789abcdef"), 2048),
	}

	b := ntfsimage.New(ntfsimage.Options{})
	docs := b.AddDirectory(b.Root(), "Docs")
	f.report = b.AddFile(docs, "report.txt",
		ntfsimage.WithResidentData(f.content),
		ntfsimage.WithStream("Zone.Identifier", f.stream))
	b.AddFile(docs, "large.bin", ntfsimage.WithData(f.large))

	f.path = filepath.Join(t.TempDir(), "volume.img")
	require.NoError(t, os.WriteFile(f.path, b.Build(), 0o644))
	return f
}

func newContext() (*app.Context, *bytes.Buffer) {
	ctx := app.NewContext()
	var stdout bytes.Buffer
	ctx.Stdout = &stdout
	ctx.Stderr = io.Discard
	return ctx, &stdout
}

func TestHandle(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		request  func(dest string) *Request
		validate func(t *testing.T, dest string, resp *Response, stdout []byte)
	}{
		{
			name: "resident file into directory",
			request: func(dest string) *Request {
				return &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt", Destination: dest + "/"}
			},
			validate: func(t *testing.T, dest string, resp *Response, _ []byte) {
				require.Len(t, resp.Files, 1)
				file := resp.Files[0]
				assert.Equal(t, filepath.Join(dest, "report.txt"), file.Destination)
				assert.Equal(t, f.report.String(), file.Record)
				assert.True(t, file.Resident)
				assert.Equal(t, uint64(len(f.content)), resp.TotalBytes)
				assert.NotEmpty(t, resp.JobID)

				data, err := os.ReadFile(file.Destination)
				require.NoError(t, err)
				assert.Equal(t, f.content, data)
			},
		},
		{
			name: "non-resident file to stdout",
			request: func(string) *Request {
				return &Request{Source: app.VolumeSource{Path: f.path}, Path: `\docs\LARGE.BIN`, Destination: StdoutDestination}
			},
			validate: func(t *testing.T, _ string, resp *Response, stdout []byte) {
				require.Len(t, resp.Files, 1)
				assert.Equal(t, StdoutDestination, resp.Files[0].Destination)
				assert.False(t, resp.Files[0].Resident)
				assert.Equal(t, f.large, stdout)
				assert.Greater(t, resp.DeviceIO.Reads, uint64(0))
			},
		},
		{
			name: "stream by path syntax",
			request: func(dest string) *Request {
				return &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt:Zone.Identifier", Destination: dest + "/"}
			},
			validate: func(t *testing.T, dest string, resp *Response, _ []byte) {
				require.Len(t, resp.Files, 1)
				assert.Equal(t, "Zone.Identifier", resp.Files[0].Stream)
				data, err := os.ReadFile(filepath.Join(dest, "report.txt_Zone.Identifier"))
				require.NoError(t, err)
				assert.Equal(t, f.stream, data)
			},
		},
		{
			name: "all streams by record",
			request: func(dest string) *Request {
				return &Request{Source: app.VolumeSource{Path: f.path}, Record: f.report.String(), AllStreams: true, Destination: dest}
			},
			validate: func(t *testing.T, dest string, resp *Response, _ []byte) {
				require.Len(t, resp.Files, 2)
				var destinations []string
				for _, file := range resp.Files {
					destinations = append(destinations, file.Destination)
				}
				assert.ElementsMatch(t, []string{
					filepath.Join(dest, "report.txt"),
					filepath.Join(dest, "report.txt_Zone.Identifier"),
				}, destinations)

				data, err := os.ReadFile(filepath.Join(dest, "report.txt_Zone.Identifier"))
				require.NoError(t, err)
				assert.Equal(t, f.stream, data)
			},
		},
		{
			name: "gzip with digest",
			request: func(dest string) *Request {
				return &Request{
					Source:      app.VolumeSource{Path: f.path},
					Path:        "/Docs/large.bin",
					Destination: dest + "/",
					Compression: "gzip",
					Hash:        "sha256",
				}
			},
			validate: func(t *testing.T, dest string, resp *Response, _ []byte) {
				require.Len(t, resp.Files, 1)
				file := resp.Files[0]
				assert.Equal(t, filepath.Join(dest, "large.bin.gz"), file.Destination)

				sum := sha256.Sum256(f.large)
				assert.Equal(t, hex.EncodeToString(sum[:]), file.Hash)
				assert.Equal(t, "sha256", file.HashAlgorithm)

				compressed, err := os.Open(file.Destination)
				require.NoError(t, err)
				defer compressed.Close()
				r, err := gzip.NewReader(compressed)
				require.NoError(t, err)
				data, err := io.ReadAll(r)
				require.NoError(t, err)
				assert.Equal(t, f.large, data)
			},
		},
		{
			name: "preserved timestamps",
			request: func(dest string) *Request {
				return &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt", Destination: filepath.Join(dest, "copy.txt"), PreserveTimes: true}
			},
			validate: func(t *testing.T, dest string, resp *Response, _ []byte) {
				require.Len(t, resp.Files, 1)
				assert.True(t, ntfsimage.DefaultTimestamp.Equal(resp.Files[0].Modified))

				info, err := os.Stat(filepath.Join(dest, "copy.txt"))
				require.NoError(t, err)
				assert.True(t, info.ModTime().Equal(ntfsimage.DefaultTimestamp), "mtime %s", info.ModTime())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			ctx, stdout := newContext()

			resp, err := Handle(ctx, tt.request(dest))
			require.NoError(t, err)
			tt.validate(t, dest, resp, stdout.Bytes())
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
		{
			name:     "missing file",
			request:  &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/absent.txt"},
			wantCode: app.ErrCodeOperationFailed,
			wantKind: types.ErrPathNotFound,
		},
		{
			name:     "missing stream",
			request:  &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt", Stream: "nope"},
			wantCode: app.ErrCodeOperationFailed,
			wantKind: types.ErrAttributeNotFound,
		},
		{
			name:     "stale record",
			request:  &Request{Source: app.VolumeSource{Path: f.path}, Record: types.NewFileReference(f.report.SegmentNumber(), f.report.SequenceNumber()+1).String()},
			wantCode: app.ErrCodeOperationFailed,
			wantKind: types.ErrStaleReference,
		},
		{
			name:     "unreadable volume",
			request:  &Request{Source: app.VolumeSource{Path: filepath.Join(t.TempDir(), "absent.img")}, Path: "/x"},
			wantCode: app.ErrCodeDeviceAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			tt.request.Destination = dest + "/"
			ctx, _ := newContext()

			resp, err := Handle(ctx, tt.request)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantCode, app.ErrorCode(err))
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			}

			entries, err := os.ReadDir(dest)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed extraction leaves no output")
		})
	}
}

func TestHandleRefusesOverwrite(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(dest, []byte("keep"), 0o644))

	ctx, _ := newContext()
	_, err := Handle(ctx, &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt", Destination: dest})
	require.Error(t, err)
	assert.Equal(t, app.ExitOperationFailed, app.ExitCode(err))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	_, err = Handle(ctx, &Request{Source: app.VolumeSource{Path: f.path}, Path: "/Docs/report.txt", Destination: dest, Overwrite: true})
	require.NoError(t, err)
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, f.content, data)
}

func TestOutputName(t *testing.T) {
	ref := types.NewFileReference(5, 5)
	tests := []struct {
		name   string
		base   string
		target types.ExtractionTarget
		want   string
	}{
		{name: "data", base: "file.txt", target: types.ExtractionTarget{Path: "/file.txt"}, want: "file.txt"},
		{name: "stream", base: "file.txt", target: types.ExtractionTarget{StreamName: "ads"}, want: "file.txt_ads"},
		{name: "index", base: "dir", target: types.ExtractionTarget{AttributeType: types.AttrIndexAllocation}, want: "dir_INDEX_ALLOCATION"},
		{name: "root", base: "/", target: types.ExtractionTarget{Record: &ref}, want: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputName(tt.base, tt.target))
		})
	}
}
