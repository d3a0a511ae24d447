package output

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// Compression names an output compression format
type Compression string

// Supported compression formats
const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionXZ    Compression = "xz"
	CompressionBzip2 Compression = "bzip2"
)

// ParseCompression maps a configuration value to a format; "" means none
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(name))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionXZ, CompressionBzip2:
		return c, nil
	case "gz":
		return CompressionGzip, nil
	case "bz2":
		return CompressionBzip2, nil
	default:
		return "", fmt.Errorf("unsupported compression %q (valid: none, gzip, xz, bzip2)", name)
	}
}

// Extension returns the file suffix for the format
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXZ:
		return ".xz"
	case CompressionBzip2:
		return ".bz2"
	default:
		return ""
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewCompressor wraps w. Closing the compressor flushes it but leaves w open.
func NewCompressor(c Compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case "", CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionXZ:
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, nil
	case CompressionBzip2:
		bzip2Writer, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create bzip2 writer: %w", err)
		}
		return bzip2Writer, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

// NewDecompressor opens a reader for data written by NewCompressor
func NewDecompressor(c Compression, r io.Reader) (io.Reader, error) {
	switch c {
	case "", CompressionNone:
		return r, nil
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionXZ:
		return xz.NewReader(r)
	case CompressionBzip2:
		return bzip2.NewReader(r, nil)
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}
