package records

import (
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const standardInformationMinSize = 0x24

// ParseStandardInformation decodes the timestamps and attribute flags of a
// $STANDARD_INFORMATION value
func ParseStandardInformation(data []byte) (*types.StandardInformation, error) {
	if len(data) < standardInformationMinSize {
		return nil, errShort(len(data), standardInformationMinSize)
	}
	buf := types.NewByteBuffer(data)

	si := &types.StandardInformation{
		Created:    filetimeAt(buf, 0x00),
		Modified:   filetimeAt(buf, 0x08),
		MFTChanged: filetimeAt(buf, 0x10),
		Accessed:   filetimeAt(buf, 0x18),
	}
	si.FileAttributes, _ = buf.Uint32At(0x20)
	return si, nil
}

// ParseVolumeInformation decodes a $VOLUME_INFORMATION value
func ParseVolumeInformation(data []byte) (*types.VolumeInformation, error) {
	if len(data) < 0x0C {
		return nil, errShort(len(data), 0x0C)
	}
	buf := types.NewByteBuffer(data)
	vi := &types.VolumeInformation{}
	vi.MajorVersion, _ = buf.Uint8At(0x08)
	vi.MinorVersion, _ = buf.Uint8At(0x09)
	vi.Flags, _ = buf.Uint16At(0x0A)
	return vi, nil
}

func filetimeAt(buf *types.ByteBuffer, offset int) time.Time {
	v, _ := buf.Uint64At(offset)
	return types.FiletimeToTime(v)
}
