package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/config"
	"github.com/deploymenttheory/go-rawcopy/internal/device"
	"github.com/deploymenttheory/go-rawcopy/internal/output"
	"github.com/deploymenttheory/go-rawcopy/internal/testutil/ntfsimage"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

var fileContent = []byte("evidence collected from a locked volume")

func buildImage(t *testing.T) []byte {
	t.Helper()
	b := ntfsimage.New(ntfsimage.Options{})
	dir := b.AddDirectory(b.Root(), "Windows")
	b.AddFile(dir, "notes.txt", ntfsimage.WithResidentData(fileContent))
	return b.Build()
}

func writeImage(t *testing.T, prefix, image []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.img")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, prefix...), image...), 0o644))
	return path
}

func TestSetupAndPerform(t *testing.T) {
	image := buildImage(t)

	tests := []struct {
		name   string
		prefix []byte
		source func(path string) VolumeSource
	}{
		{
			name:   "bare volume image",
			source: func(path string) VolumeSource { return VolumeSource{Path: path} },
		},
		{
			name:   "explicit image offset",
			prefix: make([]byte, 1<<20),
			source: func(path string) VolumeSource { return VolumeSource{Path: path, ImageOffset: 1 << 20} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeImage(t, tt.prefix, image)

			ec, err := Setup(tt.source(path), config.Default())
			require.NoError(t, err)
			defer ec.Close()
			assert.NotEmpty(t, ec.ID)
			assert.Equal(t, path, ec.Source().Path)

			sink := output.NewMemorySink()
			job := ec.NewJob(types.ExtractionTarget{Path: "/windows/NOTES.TXT"}, sink)
			require.NoError(t, ec.PerformOperation(context.Background(), job))

			assert.Equal(t, fileContent, sink.Bytes())
			assert.Equal(t, uint64(len(fileContent)), job.BytesExtracted)
			require.NotNil(t, job.Result)
			assert.True(t, job.Result.Resident)
			assert.NotEqual(t, ec.ID, job.ID)
		})
	}
}

func TestSetupFailures(t *testing.T) {
	notNTFS := writeImage(t, nil, make([]byte, 1<<16))

	tests := []struct {
		name     string
		source   VolumeSource
		wantCode string
		wantKind error
	}{
		{name: "empty path", source: VolumeSource{}, wantCode: ErrCodeInvalidInput},
		{name: "offset and partition", source: VolumeSource{Path: notNTFS, ImageOffset: 512, Partition: 1}, wantCode: ErrCodeInvalidInput},
		{name: "missing device", source: VolumeSource{Path: filepath.Join(t.TempDir(), "absent.img")}, wantCode: ErrCodeDeviceAccess},
		{name: "not ntfs", source: VolumeSource{Path: notNTFS}, wantCode: ErrCodeSetupFailed, wantKind: types.ErrNotNtfs},
		{name: "partition without table", source: VolumeSource{Path: notNTFS, Partition: 1}, wantCode: ErrCodeSetupFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec, err := Setup(tt.source, config.Default())
			require.Error(t, err)
			assert.Nil(t, ec)
			assert.Equal(t, tt.wantCode, ErrorCode(err))
			assert.Equal(t, ExitSetupFailure, ExitCode(err))
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			}
			assert.NoError(t, ec.Close(), "Close must be safe after a failed setup")
		})
	}
}

func TestSetupDeviceClosesOnFailure(t *testing.T) {
	mem := device.NewMemoryDevice(make([]byte, 1<<16), 512)
	ec, err := SetupDevice(mem, nil)
	require.Error(t, err)
	assert.Nil(t, ec)
	assert.True(t, mem.Closed())
}

func TestPerformOperationFailureAbortsSink(t *testing.T) {
	mem := device.NewMemoryDevice(buildImage(t), 512)
	ec, err := SetupDevice(mem, config.Default())
	require.NoError(t, err)
	defer ec.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	sink, err := output.NewFileSink(path, output.FileSinkOptions{})
	require.NoError(t, err)

	job := ec.NewJob(types.ExtractionTarget{Path: "/Windows/missing.txt"}, sink)
	err = ec.PerformOperation(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPathNotFound)
	assert.Equal(t, ErrCodeOperationFailed, ErrorCode(err))
	assert.Equal(t, ExitOperationFailed, ExitCode(err))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial output")
}

func TestCloseIsIdempotent(t *testing.T) {
	mem := device.NewMemoryDevice(buildImage(t), 512)
	ec, err := SetupDevice(mem, config.Default())
	require.NoError(t, err)

	require.NoError(t, ec.Close())
	require.NoError(t, ec.Close())
	assert.True(t, mem.Closed())

	_, err = ec.Volume()
	assert.ErrorIs(t, err, ErrContextClosed)

	job := ec.NewJob(types.ExtractionTarget{Path: "/Windows/notes.txt"}, output.NewMemorySink())
	err = ec.PerformOperation(context.Background(), job)
	assert.ErrorIs(t, err, ErrContextClosed)

	var nilContext *ExecutionContext
	assert.NoError(t, nilContext.Close())
}

func TestRunReleasesVolume(t *testing.T) {
	path := writeImage(t, nil, buildImage(t))

	var seen *ExecutionContext
	err := Run(VolumeSource{Path: path}, config.Default(), func(ec *ExecutionContext) error {
		seen = ec
		return errors.New("operation failed")
	})
	require.EqualError(t, err, "operation failed")
	require.NotNil(t, seen)

	_, err = seen.Volume()
	assert.ErrorIs(t, err, ErrContextClosed)
}
