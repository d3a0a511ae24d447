package types

import (
	"encoding/binary"
	"fmt"
)

// ByteBuffer is a growable, bounds-checked container for volume-sourced bytes.
// Every accessor fails instead of panicking when the requested range is not
// fully inside the buffer.
type ByteBuffer struct {
	data []byte
}

// NewByteBuffer wraps data without copying it
func NewByteBuffer(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data}
}

// NewByteBufferSize allocates a zeroed buffer of size bytes
func NewByteBufferSize(size int) *ByteBuffer {
	return &ByteBuffer{data: make([]byte, size)}
}

// Len returns the number of bytes held
func (b *ByteBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the underlying slice
func (b *ByteBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Append grows the buffer with p
func (b *ByteBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Grow extends the buffer by n zero bytes
func (b *ByteBuffer) Grow(n int) {
	if n <= 0 {
		return
	}
	b.data = append(b.data, make([]byte, n)...)
}

// Truncate shortens the buffer to n bytes
func (b *ByteBuffer) Truncate(n int) {
	if n >= 0 && n < len(b.data) {
		b.data = b.data[:n]
	}
}

// InBounds reports whether [offset, offset+length) lies inside the buffer
func (b *ByteBuffer) InBounds(offset, length int) bool {
	return offset >= 0 && length >= 0 && offset <= len(b.data) && length <= len(b.data)-offset
}

func (b *ByteBuffer) check(offset, length int) error {
	if !b.InBounds(offset, length) {
		return fmt.Errorf("range [%d, %d) outside buffer of %d bytes", offset, offset+length, len(b.data))
	}
	return nil
}

// Slice returns a view of length bytes at offset
func (b *ByteBuffer) Slice(offset, length int) ([]byte, error) {
	if err := b.check(offset, length); err != nil {
		return nil, err
	}
	return b.data[offset : offset+length], nil
}

// Sub returns a ByteBuffer viewing length bytes at offset
func (b *ByteBuffer) Sub(offset, length int) (*ByteBuffer, error) {
	view, err := b.Slice(offset, length)
	if err != nil {
		return nil, err
	}
	return &ByteBuffer{data: view}, nil
}

// Uint8At reads a byte at offset
func (b *ByteBuffer) Uint8At(offset int) (uint8, error) {
	if err := b.check(offset, 1); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

// Uint16At reads a little-endian uint16 at offset
func (b *ByteBuffer) Uint16At(offset int) (uint16, error) {
	if err := b.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[offset:]), nil
}

// Uint32At reads a little-endian uint32 at offset
func (b *ByteBuffer) Uint32At(offset int) (uint32, error) {
	if err := b.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

// Uint64At reads a little-endian uint64 at offset
func (b *ByteBuffer) Uint64At(offset int) (uint64, error) {
	if err := b.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[offset:]), nil
}

// PutUint16At writes a little-endian uint16 at offset
func (b *ByteBuffer) PutUint16At(offset int, value uint16) error {
	if err := b.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.data[offset:], value)
	return nil
}

// Clone returns an independent copy
func (b *ByteBuffer) Clone() *ByteBuffer {
	return &ByteBuffer{data: append([]byte(nil), b.data...)}
}
