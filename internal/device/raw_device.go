package device

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultSectorSize is used when the device does not report one
const DefaultSectorSize = 512

// RawDevice provides read-only access to a raw volume, a disk or an image file
type RawDevice struct {
	file       *os.File
	path       string
	size       int64
	offset     int64 // Offset of the NTFS volume within the device
	sectorSize int
	closeOnce  sync.Once
	closeErr   error
}

// OpenOptions configures how a device is opened
type OpenOptions struct {
	// Offset is the byte offset of the volume within the device or image
	Offset int64
	// SectorSize overrides the detected sector size when non-zero
	SectorSize int
}

// Open opens a raw volume (\\.\C:, /dev/sdb1) or an image file for reading.
// The handle is opened with full sharing so locked volumes stay readable.
func Open(path string, opts OpenOptions) (*RawDevice, error) {
	if path == "" {
		return nil, fmt.Errorf("device path cannot be empty")
	}

	file, err := openRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}

	size, sectorSize, err := queryGeometry(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to query device %s: %w", path, err)
	}
	if opts.SectorSize != 0 {
		sectorSize = opts.SectorSize
	}
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}

	if opts.Offset < 0 || opts.Offset >= size {
		file.Close()
		return nil, fmt.Errorf("volume offset %d outside device of %d bytes", opts.Offset, size)
	}
	if opts.Offset%int64(sectorSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("volume offset %d is not aligned to %d-byte sectors", opts.Offset, sectorSize)
	}

	return &RawDevice{
		file:       file,
		path:       path,
		size:       size,
		offset:     opts.Offset,
		sectorSize: sectorSize,
	}, nil
}

// ReadAt implements io.ReaderAt relative to the start of the volume
func (d *RawDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= d.Size() {
		return 0, io.EOF
	}
	return d.file.ReadAt(p, d.offset+off)
}

// Size returns the size of the volume in bytes
func (d *RawDevice) Size() int64 {
	return d.size - d.offset
}

// SectorSize returns the physical sector size
func (d *RawDevice) SectorSize() int {
	return d.sectorSize
}

// Path returns the path the device was opened from
func (d *RawDevice) Path() string {
	return d.path
}

// Offset returns the offset of the volume within the device
func (d *RawDevice) Offset() int64 {
	return d.offset
}

// Close closes the device handle. Subsequent calls return the first result.
func (d *RawDevice) Close() error {
	d.closeOnce.Do(func() {
		if d.file != nil {
			d.closeErr = d.file.Close()
		}
	})
	return d.closeErr
}

// statSize returns the size reported by stat, falling back to seeking to the end
func statSize(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode().IsRegular() {
		return info.Size(), nil
	}
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}
