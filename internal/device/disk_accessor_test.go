package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

func patternImage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestDiskAccessorReadBytes(t *testing.T) {
	image := patternImage(8192)

	tests := []struct {
		name          string
		offset        uint64
		length        uint32
		expectOffset  int64
		expectReadLen int
	}{
		{name: "aligned sector", offset: 512, length: 512, expectOffset: 512, expectReadLen: 512},
		{name: "unaligned inside sector", offset: 700, length: 10, expectOffset: 512, expectReadLen: 512},
		{name: "straddles sectors", offset: 1000, length: 100, expectOffset: 512, expectReadLen: 1024},
		{name: "tail of device", offset: 8190, length: 2, expectOffset: 7680, expectReadLen: 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewMemoryDevice(image, 512)
			accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

			buf, err := accessor.ReadBytes(tt.offset, tt.length)
			require.NoError(t, err)

			assert.Equal(t, image[tt.offset:tt.offset+uint64(tt.length)], buf.Bytes())
			reads := dev.Reads()
			require.Len(t, reads, 1)
			assert.Equal(t, tt.expectOffset, reads[0].Offset)
			assert.Equal(t, tt.expectReadLen, reads[0].Length)
		})
	}
}

func TestDiskAccessorSectorOverride(t *testing.T) {
	dev := NewMemoryDevice(patternImage(16384), 512)
	accessor := NewDiskAccessor(dev, AccessorOptions{SectorSize: 4096})

	_, err := accessor.ReadBytes(5000, 10)
	require.NoError(t, err)

	reads := dev.Reads()
	require.Len(t, reads, 1)
	assert.Equal(t, int64(4096), reads[0].Offset)
	assert.Equal(t, 4096, reads[0].Length)
	assert.Equal(t, 4096, accessor.SectorSize())
}

func TestDiskAccessorShortReadRetry(t *testing.T) {
	image := patternImage(4096)

	t.Run("single short read is retried", func(t *testing.T) {
		dev := NewMemoryDevice(image, 512)
		dev.InjectShortReads(1)
		accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

		buf, err := accessor.ReadBytes(0, 1024)
		require.NoError(t, err)
		assert.Equal(t, image[:1024], buf.Bytes())
		assert.Equal(t, 2, dev.ReadCount())
		assert.Equal(t, uint64(1), accessor.Statistics().Retries)
	})

	t.Run("second short read is an IoFault", func(t *testing.T) {
		dev := NewMemoryDevice(image, 512)
		dev.InjectShortReads(2)
		accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

		_, err := accessor.ReadBytes(0, 1024)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrIoFault))
		assert.Contains(t, err.Error(), "short read")
		assert.Equal(t, 2, dev.ReadCount())
	})

	t.Run("retries disabled", func(t *testing.T) {
		dev := NewMemoryDevice(image, 512)
		dev.InjectShortReads(1)
		accessor := NewDiskAccessor(dev, AccessorOptions{})

		_, err := accessor.ReadBytes(0, 1024)
		assert.ErrorIs(t, err, types.ErrIoFault)
		assert.Equal(t, 1, dev.ReadCount())
	})
}

func TestDiskAccessorFaults(t *testing.T) {
	t.Run("beyond device size", func(t *testing.T) {
		dev := NewMemoryDevice(patternImage(4096), 512)
		accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

		_, err := accessor.ReadBytes(4000, 200)
		assert.ErrorIs(t, err, types.ErrIoFault)
		assert.Contains(t, err.Error(), "beyond device size")
		assert.Zero(t, dev.ReadCount())
	})

	t.Run("device error is not retried", func(t *testing.T) {
		dev := NewMemoryDevice(patternImage(4096), 512)
		dev.FailReads(errors.New("bad sector"))
		accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

		_, err := accessor.ReadBytes(0, 512)
		assert.ErrorIs(t, err, types.ErrIoFault)
		assert.Contains(t, err.Error(), "bad sector")
		assert.Equal(t, 1, dev.ReadCount())
	})

	t.Run("zero length", func(t *testing.T) {
		dev := NewMemoryDevice(patternImage(4096), 512)
		accessor := NewDiskAccessor(dev, DefaultAccessorOptions())

		buf, err := accessor.ReadBytes(100, 0)
		require.NoError(t, err)
		assert.Zero(t, buf.Len())
		assert.Zero(t, dev.ReadCount())
	})
}
