package volumes

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/device"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

func quietContext() *app.Context {
	ctx := app.NewContext()
	ctx.Quiet = true
	ctx.Stderr = &bytes.Buffer{}
	return ctx
}

// writeDiskImage writes an MBR image with one partition at LBA 64 carrying an NTFS OEM id
func writeDiskImage(t *testing.T) string {
	t.Helper()
	image := make([]byte, (64+1024)*512)
	entry := image[0x1BE : 0x1BE+16]
	entry[4] = 0x07
	binary.LittleEndian.PutUint32(entry[8:12], 64)
	binary.LittleEndian.PutUint32(entry[12:16], 1024)
	image[510], image[511] = 0x55, 0xAA
	copy(image[64*512+3:], "NTFS    ")

	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path
}

func stubHost(t *testing.T, volumes []device.HostVolume, err error) {
	t.Helper()
	previous := listHostVolumes
	listHostVolumes = func() ([]device.HostVolume, error) { return volumes, err }
	t.Cleanup(func() { listHostVolumes = previous })
}

func TestHandleImage(t *testing.T) {
	path := writeDiskImage(t)

	response, err := Handle(quietContext(), &Request{Image: path})
	require.NoError(t, err)
	assert.Equal(t, path, response.Source)
	require.Len(t, response.Partitions, 1)
	assert.Equal(t, 1, response.Partitions[0].Index)
	assert.Equal(t, int64(64*512), response.Partitions[0].Start)
	assert.True(t, response.Partitions[0].IsNTFS)
	assert.Empty(t, response.Host)

	var out bytes.Buffer
	require.NoError(t, FormatOutput(&out, response, "table"))
	assert.Contains(t, out.String(), "PARTITION")
	assert.Contains(t, out.String(), "32768")
	assert.Contains(t, out.String(), "yes")
}

func TestHandleHost(t *testing.T) {
	tests := []struct {
		name     string
		volumes  []device.HostVolume
		err      error
		wantCode string
		wantText string
	}{
		{
			name:     "mounted volumes",
			volumes:  []device.HostVolume{{Device: "/dev/sdb1", Mountpoint: "/mnt/evidence", Fstype: "ntfs3", RawPath: "/dev/sdb1"}},
			wantText: "/mnt/evidence",
		},
		{
			name:     "no volumes",
			wantText: "No NTFS volumes found (host).",
		},
		{
			name:     "enumeration failure",
			err:      errors.New("permission denied"),
			wantCode: app.ErrCodeDeviceAccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubHost(t, tt.volumes, tt.err)

			response, err := Handle(quietContext(), &Request{})
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, app.ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.volumes), response.Count())

			var out bytes.Buffer
			require.NoError(t, FormatOutput(&out, response, "table"))
			assert.Contains(t, out.String(), tt.wantText)
		})
	}
}

func TestHandleImageFailures(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.img")
	require.NoError(t, os.WriteFile(garbage, make([]byte, 4096), 0o600))

	tests := []struct {
		name     string
		image    string
		wantCode string
	}{
		{name: "missing image", image: filepath.Join(t.TempDir(), "absent.img"), wantCode: app.ErrCodeInvalidInput},
		{name: "no partition table", image: garbage, wantCode: app.ErrCodeSetupFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Handle(quietContext(), &Request{Image: tt.image})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, app.ErrorCode(err))
		})
	}
}

func TestFormatOutputJSON(t *testing.T) {
	response := &Response{
		Source: hostSource,
		Host:   []device.HostVolume{{Device: `\\.\C:`, Mountpoint: `C:\`, Fstype: "NTFS", RawPath: `\\.\C:`}},
	}

	var out bytes.Buffer
	require.NoError(t, FormatOutput(&out, response, "json"))

	var decoded Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, response.Host, decoded.Host)

	assert.Error(t, FormatOutput(&out, response, "xml"))
}
