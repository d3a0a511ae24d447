package output

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
)

// Options selects the layers in front of a sink
type Options struct {
	Compression Compression
	Hash        HashAlgorithm
}

// Pipeline hashes extracted bytes, compresses them and hands them to a sink.
// The digest covers the bytes as extracted, before compression.
type Pipeline struct {
	sink       interfaces.Sink
	compressor io.WriteCloser
	hash       hash.Hash
	algorithm  HashAlgorithm
	written    uint64
	done       bool
}

var (
	_ interfaces.Sink            = (*Pipeline)(nil)
	_ interfaces.TimestampSetter = (*Pipeline)(nil)
)

// NewPipeline builds the layers over sink
func NewPipeline(sink interfaces.Sink, opts Options) (*Pipeline, error) {
	h, err := NewHash(opts.Hash)
	if err != nil {
		return nil, err
	}
	compressor, err := NewCompressor(opts.Compression, sink)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		sink:       sink,
		compressor: compressor,
		hash:       h,
		algorithm:  opts.Hash,
	}, nil
}

func (p *Pipeline) Write(b []byte) (int, error) {
	if p.done {
		return 0, ErrSinkClosed
	}
	if p.hash != nil {
		p.hash.Write(b)
	}
	n, err := p.compressor.Write(b)
	p.written += uint64(n)
	return n, err
}

// Written returns the uncompressed bytes accepted so far
func (p *Pipeline) Written() uint64 {
	return p.written
}

// Commit flushes the compressor and commits the sink
func (p *Pipeline) Commit() error {
	if p.done {
		return ErrSinkClosed
	}
	p.done = true
	if err := p.compressor.Close(); err != nil {
		p.sink.Abort()
		return fmt.Errorf("failed to flush compressed output: %w", err)
	}
	return p.sink.Commit()
}

// Abort discards the output
func (p *Pipeline) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	return p.sink.Abort()
}

// Digest returns the hex digest of the bytes written, "" when no hash was selected
func (p *Pipeline) Digest() string {
	if p.hash == nil {
		return ""
	}
	return hex.EncodeToString(p.hash.Sum(nil))
}

// SetTimes forwards the source timestamps to a sink that can apply them
func (p *Pipeline) SetTimes(modified, accessed time.Time) {
	if timed, ok := p.sink.(interfaces.TimestampSetter); ok {
		timed.SetTimes(modified, accessed)
	}
}

// HashAlgorithm returns the selected digest
func (p *Pipeline) HashAlgorithm() HashAlgorithm {
	return p.algorithm
}
