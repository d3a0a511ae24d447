package boot

import (
	"bytes"
	"fmt"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const component = "VolumeDescriptor"

// volumeDescriptor implements the VolumeDescriptor interface
type volumeDescriptor struct {
	info *types.BootSectorInfo
}

var _ interfaces.VolumeDescriptor = (*volumeDescriptor)(nil)

// NewVolumeDescriptor parses a boot sector into a VolumeDescriptor
func NewVolumeDescriptor(buf *types.ByteBuffer) (interfaces.VolumeDescriptor, error) {
	info, err := ParseBootSector(buf)
	if err != nil {
		return nil, err
	}
	return &volumeDescriptor{info: info}, nil
}

// Info returns the decoded boot sector
func (v *volumeDescriptor) Info() *types.BootSectorInfo {
	return v.info
}

// ClusterSize returns the cluster size in bytes
func (v *volumeDescriptor) ClusterSize() uint64 {
	return v.info.ClusterSize()
}

// ClusterToByteOffset converts an LCN to a byte offset
func (v *volumeDescriptor) ClusterToByteOffset(lcn uint64) uint64 {
	return v.info.ClusterToByteOffset(lcn)
}

// ParseBootSector decodes the BIOS parameter block of an NTFS boot sector
func ParseBootSector(buf *types.ByteBuffer) (*types.BootSectorInfo, error) {
	if buf.Len() < types.BootSectorSize {
		return nil, types.NewError(types.ErrNotNtfs, component,
			"data too small for boot sector: %d bytes", buf.Len())
	}
	data := buf.Bytes()

	if oem := data[0x03:0x0B]; !bytes.Equal(oem, []byte(types.NTFSOEMID)) {
		return nil, types.NewError(types.ErrNotNtfs, component, "invalid OEM identifier %q", oem)
	}

	bytesPerSector, _ := buf.Uint16At(0x0B)
	if !isPowerOfTwo(uint64(bytesPerSector)) {
		return nil, types.NewError(types.ErrNotNtfs, component, "invalid bytes per sector %d", bytesPerSector)
	}

	sectorsPerCluster := decodeSectorsPerCluster(data[0x0D])
	if !isPowerOfTwo(uint64(sectorsPerCluster)) {
		return nil, types.NewError(types.ErrNotNtfs, component, "invalid sectors per cluster %d", sectorsPerCluster)
	}

	info := &types.BootSectorInfo{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		MediaDescriptor:   data[0x15],
	}
	info.TotalSectors, _ = buf.Uint64At(0x28)
	info.MftStartCluster, _ = buf.Uint64At(0x30)
	info.MftMirrorCluster, _ = buf.Uint64At(0x38)
	info.SerialNumber, _ = buf.Uint64At(0x48)

	clusterSize := info.ClusterSize()
	recordSize, err := bytesOrClusters(int8(data[0x40]), clusterSize)
	if err != nil {
		return nil, types.NewError(types.ErrNotNtfs, component, "invalid file record size: %v", err)
	}
	if recordSize < types.FixupStride || recordSize%types.FixupStride != 0 {
		return nil, types.NewError(types.ErrNotNtfs, component, "file record size %d is not a multiple of %d", recordSize, types.FixupStride)
	}
	info.BytesPerFileRecordSegment = recordSize

	indexSize, err := bytesOrClusters(int8(data[0x44]), clusterSize)
	if err != nil {
		return nil, types.NewError(types.ErrNotNtfs, component, "invalid index block size: %v", err)
	}
	info.BytesPerIndexBlock = indexSize

	if info.TotalSectors == 0 {
		return nil, types.NewError(types.ErrNotNtfs, component, "volume has no sectors")
	}
	if info.MftStartCluster >= info.TotalClusters() {
		return nil, types.NewError(types.ErrNotNtfs, component,
			"MFT cluster %d outside volume of %d clusters", info.MftStartCluster, info.TotalClusters())
	}

	return info, nil
}

// decodeSectorsPerCluster handles the 2^(256-n) encoding used for clusters above 64KB
func decodeSectorsPerCluster(raw uint8) uint32 {
	if raw <= 0x80 {
		return uint32(raw)
	}
	shift := 256 - uint32(raw)
	if shift > 31 {
		return 0
	}
	return 1 << shift
}

// bytesOrClusters decodes the record and index block size fields: a positive
// value counts clusters, a negative value n means 2^-n bytes
func bytesOrClusters(raw int8, clusterSize uint64) (uint32, error) {
	switch {
	case raw > 0:
		size := uint64(raw) * clusterSize
		if size > 1<<31 {
			return 0, fmt.Errorf("%d clusters of %d bytes is too large", raw, clusterSize)
		}
		return uint32(size), nil
	case raw < 0 && raw >= -31:
		return 1 << uint(-raw), nil
	default:
		return 0, fmt.Errorf("raw value %d", raw)
	}
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
