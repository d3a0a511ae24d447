package device

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentDiskAccessor = "DiskAccessor"

// AccessorStatistics counts device activity
type AccessorStatistics struct {
	Reads     uint64
	BytesRead uint64
	Retries   uint64
}

// DiskAccessor reads arbitrary byte ranges, aligning every device read to sector boundaries
type DiskAccessor struct {
	dev        interfaces.SectorReader
	sectorSize int
	retries    int
	stats      AccessorStatistics
	log        *zap.SugaredLogger
}

var _ interfaces.DiskAccessor = (*DiskAccessor)(nil)

// AccessorOptions configures a DiskAccessor
type AccessorOptions struct {
	// SectorSize overrides the device's sector size when non-zero
	SectorSize int
	// ShortReadRetries is how many times a short read is retried before IoFault
	ShortReadRetries int
}

// DefaultAccessorOptions retries a short read once
func DefaultAccessorOptions() AccessorOptions {
	return AccessorOptions{ShortReadRetries: 1}
}

// NewDiskAccessor wraps a sector reader
func NewDiskAccessor(dev interfaces.SectorReader, opts AccessorOptions) *DiskAccessor {
	sectorSize := opts.SectorSize
	if sectorSize <= 0 {
		sectorSize = dev.SectorSize()
	}
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	return &DiskAccessor{
		dev:        dev,
		sectorSize: sectorSize,
		retries:    opts.ShortReadRetries,
		log:        logger.Component(componentDiskAccessor),
	}
}

// ReadBytes returns length bytes at offset
func (a *DiskAccessor) ReadBytes(offset uint64, length uint32) (*types.ByteBuffer, error) {
	if length == 0 {
		return types.NewByteBuffer(nil), nil
	}

	size := a.Size()
	end := offset + uint64(length)
	if offset >= size || end > size || end < offset {
		return nil, types.NewError(types.ErrIoFault, componentDiskAccessor,
			"read of %d bytes beyond device size %d", length, size).WithOffset(offset)
	}

	sector := uint64(a.sectorSize)
	alignedStart := offset / sector * sector
	alignedEnd := (end + sector - 1) / sector * sector
	if alignedEnd > size {
		alignedEnd = size
	}

	buf := make([]byte, alignedEnd-alignedStart)
	if err := a.readFull(buf, alignedStart); err != nil {
		return nil, err
	}

	head := offset - alignedStart
	return types.NewByteBuffer(buf[head : head+uint64(length)]), nil
}

func (a *DiskAccessor) readFull(buf []byte, offset uint64) error {
	for attempt := 0; ; attempt++ {
		n, err := a.dev.ReadAt(buf, int64(offset))
		a.stats.Reads++
		a.stats.BytesRead += uint64(n)

		if n == len(buf) {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return types.NewError(types.ErrIoFault, componentDiskAccessor,
				"device read of %d bytes failed", len(buf)).WithOffset(offset).WithCause(err)
		}
		if attempt >= a.retries {
			return types.NewError(types.ErrIoFault, componentDiskAccessor,
				"short read: got %d of %d bytes", n, len(buf)).WithOffset(offset)
		}

		a.stats.Retries++
		a.log.Warnw("short read, retrying", "offset", offset, "length", len(buf), "got", n)
	}
}

// SectorSize returns the alignment unit
func (a *DiskAccessor) SectorSize() int {
	return a.sectorSize
}

// Size returns the volume size
func (a *DiskAccessor) Size() uint64 {
	size := a.dev.Size()
	if size < 0 {
		return 0
	}
	return uint64(size)
}

// Statistics returns the accumulated counters
func (a *DiskAccessor) Statistics() AccessorStatistics {
	return a.stats
}

// String describes the accessor for logs
func (a *DiskAccessor) String() string {
	return fmt.Sprintf("DiskAccessor(size=%d, sector=%d)", a.Size(), a.sectorSize)
}
