package records

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

func fileNameValue(parent types.FileReference, name string, namespace uint8, flags uint32, size uint64, when time.Time) []byte {
	encoded, _ := EncodeName(name)
	data := make([]byte, types.FileNameHeaderSize+len(encoded))
	binary.LittleEndian.PutUint64(data[types.OffsetFileNameParent:], uint64(parent))
	for _, offset := range []int{types.OffsetFileNameCreated, types.OffsetFileNameModified, types.OffsetFileNameMFTChange, types.OffsetFileNameAccessed} {
		binary.LittleEndian.PutUint64(data[offset:], types.TimeToFiletime(when))
	}
	binary.LittleEndian.PutUint64(data[types.OffsetFileNameAllocSize:], (size+4095)&^4095)
	binary.LittleEndian.PutUint64(data[types.OffsetFileNameRealSize:], size)
	binary.LittleEndian.PutUint32(data[types.OffsetFileNameFlags:], flags)
	data[types.OffsetFileNameLength] = uint8(len(encoded) / 2)
	data[types.OffsetFileNameNamespace] = namespace
	copy(data[types.FileNameHeaderSize:], encoded)
	return data
}

func TestParseFileName(t *testing.T) {
	when := time.Date(2023, time.November, 2, 17, 45, 12, 500, time.UTC).Truncate(100 * time.Nanosecond)
	tests := []struct {
		name      string
		fileName  string
		namespace uint8
		flags     uint32
		isDir     bool
		dosOnly   bool
	}{
		{name: "win32 and dos", fileName: "README.TXT", namespace: types.NamespaceWin32AndDOS},
		{name: "long unicode name", fileName: "Résumé – 履歴書.docx", namespace: types.NamespaceWin32},
		{name: "short alias", fileName: "RSUM~1.DOC", namespace: types.NamespaceDOS, dosOnly: true},
		{name: "directory", fileName: "Windows", namespace: types.NamespaceWin32AndDOS, flags: types.FileAttrDirectory, isDir: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := types.NewFileReference(types.MftRecordRoot, 5)
			data := fileNameValue(parent, tt.fileName, tt.namespace, tt.flags, 1234, when)

			fn, err := ParseFileName(data)
			require.NoError(t, err)
			assert.Equal(t, tt.fileName, fn.Name)
			assert.Equal(t, parent, fn.Parent)
			assert.Equal(t, tt.namespace, fn.Namespace)
			assert.Equal(t, uint64(1234), fn.RealSize)
			assert.Equal(t, uint64(4096), fn.AllocatedSize)
			assert.Equal(t, tt.isDir, fn.IsDirectory())
			assert.Equal(t, tt.dosOnly, fn.IsDOSOnly())
			assert.True(t, when.Equal(fn.Modified))
		})
	}
}

func TestParseFileNameTruncated(t *testing.T) {
	data := fileNameValue(0, "truncated-name.txt", types.NamespaceWin32, 0, 0, time.Time{})

	_, err := ParseFileName(data[:len(data)-4])
	assert.Error(t, err)

	_, err = ParseFileName(data[:0x20])
	assert.Error(t, err)
}

func TestParseStandardInformation(t *testing.T) {
	when := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	data := make([]byte, 0x48)
	binary.LittleEndian.PutUint64(data[0x00:], types.TimeToFiletime(when))
	binary.LittleEndian.PutUint64(data[0x08:], types.TimeToFiletime(when.Add(time.Hour)))
	binary.LittleEndian.PutUint32(data[0x20:], types.FileAttrArchive|types.FileAttrHidden)

	si, err := ParseStandardInformation(data)
	require.NoError(t, err)
	assert.True(t, when.Equal(si.Created))
	assert.True(t, when.Add(time.Hour).Equal(si.Modified))
	assert.True(t, si.Accessed.IsZero())
	assert.Equal(t, types.FileAttrArchive|types.FileAttrHidden, si.FileAttributes)

	_, err = ParseStandardInformation(data[:0x20])
	assert.Error(t, err)
}

func TestParseVolumeInformation(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0, 0, 0, 0, 3, 1, 0x01, 0x00}
	vi, err := ParseVolumeInformation(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), vi.MajorVersion)
	assert.Equal(t, uint8(1), vi.MinorVersion)
	assert.Equal(t, uint16(1), vi.Flags)
}

func TestNameRoundTrip(t *testing.T) {
	for _, name := range []string{"", "a", "$MFT", "файл.txt", "😀.png"} {
		encoded, err := EncodeName(name)
		require.NoError(t, err)
		decoded, err := DecodeName(encoded)
		require.NoError(t, err)
		assert.Equal(t, name, decoded)
	}

	_, err := DecodeName([]byte{0x41})
	assert.Error(t, err)
}
