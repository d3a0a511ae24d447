package device

import (
	"fmt"
	"io"
	"sync"
)

// MemoryDevice serves a volume image held in memory. It records every read so
// callers can assert which ranges touched the device.
type MemoryDevice struct {
	mu         sync.Mutex
	data       []byte
	sectorSize int
	reads      []ReadRecord
	shortReads int
	failErr    error
	closed     bool
}

// ReadRecord describes one ReadAt call
type ReadRecord struct {
	Offset int64
	Length int
}

// NewMemoryDevice wraps an image; sectorSize 0 selects DefaultSectorSize
func NewMemoryDevice(data []byte, sectorSize int) *MemoryDevice {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	return &MemoryDevice{data: data, sectorSize: sectorSize}
}

// ReadAt implements io.ReaderAt
func (m *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads = append(m.reads, ReadRecord{Offset: off, Length: len(p)})
	if m.closed {
		return 0, fmt.Errorf("device closed")
	}
	if m.failErr != nil {
		return 0, m.failErr
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(p, m.data[off:])
	if m.shortReads > 0 && n > 1 {
		m.shortReads--
		return n / 2, nil
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the image size
func (m *MemoryDevice) Size() int64 {
	return int64(len(m.data))
}

// SectorSize returns the configured sector size
func (m *MemoryDevice) SectorSize() int {
	return m.sectorSize
}

// Close marks the device closed
func (m *MemoryDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MemoryDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ReadCount returns the number of ReadAt calls so far
func (m *MemoryDevice) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reads)
}

// Reads returns a copy of the read log
func (m *MemoryDevice) Reads() []ReadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReadRecord(nil), m.reads...)
}

// ResetReads clears the read log
func (m *MemoryDevice) ResetReads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = nil
}

// InjectShortReads makes the next n reads return half the requested bytes
func (m *MemoryDevice) InjectShortReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortReads = n
}

// FailReads makes every subsequent read fail with err; nil clears it
func (m *MemoryDevice) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}
