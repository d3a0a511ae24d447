package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// SectorReader is the raw device read primitive below DiskAccessor. Callers
// only ever pass sector-aligned offsets and lengths.
type SectorReader interface {
	io.ReaderAt
	io.Closer

	// Size returns the device size in bytes
	Size() int64

	// SectorSize returns the physical sector size in bytes
	SectorSize() int
}

// DiskAccessor reads arbitrary byte ranges of a volume
type DiskAccessor interface {
	// ReadBytes returns length bytes at offset, aligning the device read to sector boundaries
	ReadBytes(offset uint64, length uint32) (*types.ByteBuffer, error)

	// SectorSize returns the physical sector size used for alignment
	SectorSize() int

	// Size returns the addressable size of the volume in bytes
	Size() uint64
}

// VolumeDescriptor exposes the geometry decoded from the boot sector
type VolumeDescriptor interface {
	// Info returns the decoded boot sector
	Info() *types.BootSectorInfo

	// ClusterSize returns the cluster size in bytes
	ClusterSize() uint64

	// ClusterToByteOffset converts an LCN to a volume byte offset
	ClusterToByteOffset(lcn uint64) uint64
}
