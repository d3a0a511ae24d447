// Package stream exposes a single extraction as an io.ReadCloser for programs
// that embed the engine instead of writing to a sink.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/config"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/services"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("stream is closed")

// Spec describes the job a stream serves
type Spec struct {
	Source app.VolumeSource
	Target types.ExtractionTarget
	// Config defaults to config.Default()
	Config *config.Config
}

// Stream is an open extraction. It owns the volume handle until Close.
type Stream struct {
	ctx       context.Context
	ec        *app.ExecutionContext
	processor *services.ExtractionProcessor
	attr      *services.OpenedAttribute

	mu     sync.Mutex
	closed bool
	done   bool
	log    *zap.SugaredLogger
}

var _ io.ReadCloser = (*Stream)(nil)

// Open sets up the volume named by spec and positions a stream at the start of
// the target attribute. Nothing stays open when Open fails.
func Open(ctx context.Context, spec Spec) (*Stream, error) {
	ec, err := app.Setup(spec.Source, spec.Config)
	if err != nil {
		return nil, err
	}

	volume, err := ec.Volume()
	if err != nil {
		ec.Close()
		return nil, app.NewError(app.ErrCodeSetupFailed, "volume unavailable", err)
	}
	cfg := spec.Config
	if cfg == nil {
		cfg = config.Default()
	}

	processor := volume.NewExtractionProcessor(services.ExtractionOptions{
		AllowEncrypted: cfg.Extraction.AllowEncrypted,
	})
	attr, err := processor.Open(ctx, spec.Target)
	if err != nil {
		ec.Close()
		return nil, app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot open %s", spec.Target), err)
	}

	s := &Stream{
		ctx:       ctx,
		ec:        ec,
		processor: processor,
		attr:      attr,
		log:       logger.WithJob(ec.ID).With("component", "Stream", "target", spec.Target.String()),
	}
	s.log.Debugw("stream opened", "size", attr.Size(), "resident", attr.Result.Resident)
	return s, nil
}

// Read copies the next bytes of the attribute value into p. It returns io.EOF
// once the full value has been delivered.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.done {
		return 0, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.attr.Read(p)
	if err == io.EOF {
		s.done = true
		s.log.Debugw("stream drained", "bytes", s.attr.Result.BytesExtracted, "sparse_bytes", s.attr.Result.SparseBytes)
	} else if err != nil {
		s.log.Debugw("stream read failed", "error", err)
	}
	return n, err
}

// Size returns the length of the attribute value
func (s *Stream) Size() uint64 {
	return s.attr.Size()
}

// Result describes the located attribute. BytesExtracted counts what Read has
// delivered so far.
func (s *Stream) Result() *types.ExtractionResult {
	return s.attr.Result
}

// Close releases the volume. It is safe on a nil or already closed stream.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ec.Close()
}
