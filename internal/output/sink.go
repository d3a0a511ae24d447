// Package output delivers extracted bytes to their destination: a file that
// only appears once complete, standard output or memory, optionally through a
// compression layer and a digest.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
)

const componentOutput = "Output"

// ErrSinkClosed is returned by writes after Commit or Abort
var ErrSinkClosed = errors.New("sink already closed")

// FileSinkOptions configures a FileSink
type FileSinkOptions struct {
	// Overwrite replaces an existing destination on Commit
	Overwrite bool
	// PreserveTimes applies the times given to SetTimes on Commit
	PreserveTimes bool
}

// FileSink writes to a temporary file next to the destination and renames it
// into place on Commit. Abort removes the temporary file, so a failed
// extraction never leaves partial output behind.
type FileSink struct {
	path     string
	opts     FileSinkOptions
	file     *os.File
	written  int64
	closed   bool
	modified time.Time
	accessed time.Time
	log      *zap.SugaredLogger
}

var _ interfaces.Sink = (*FileSink)(nil)

// NewFileSink creates the temporary file for path
func NewFileSink(path string, opts FileSinkOptions) (*FileSink, error) {
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("destination %s already exists", path)
		}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(path)+".partial-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return &FileSink{
		path: path,
		opts: opts,
		file: file,
		log:  logger.Component(componentOutput),
	}, nil
}

// Path returns the final destination
func (s *FileSink) Path() string {
	return s.path
}

// Written returns the bytes written so far
func (s *FileSink) Written() int64 {
	return s.written
}

func (s *FileSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	return n, err
}

// SetTimes records the source file's timestamps for Commit
func (s *FileSink) SetTimes(modified, accessed time.Time) {
	s.modified = modified
	s.accessed = accessed
}

// Commit flushes the temporary file and moves it to the destination
func (s *FileSink) Commit() error {
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	temp := s.file.Name()

	if err := s.file.Sync(); err != nil {
		s.file.Close()
		os.Remove(temp)
		return fmt.Errorf("failed to sync %s: %w", temp, err)
	}
	if err := s.file.Close(); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to close %s: %w", temp, err)
	}
	if !s.opts.Overwrite {
		if _, err := os.Stat(s.path); err == nil {
			os.Remove(temp)
			return fmt.Errorf("destination %s already exists", s.path)
		}
	}
	if err := os.Rename(temp, s.path); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	if s.opts.PreserveTimes && !s.modified.IsZero() {
		accessed := s.accessed
		if accessed.IsZero() {
			accessed = s.modified
		}
		if err := os.Chtimes(s.path, accessed, s.modified); err != nil {
			s.log.Warnw("cannot set file times", "path", s.path, "error", err)
		}
	}

	s.log.Debugw("output committed", "path", s.path, "bytes", s.written)
	return nil
}

// Abort removes the temporary file. Calling it after Commit does nothing.
func (s *FileSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial output: %w", err)
	}
	s.log.Debugw("output discarded", "path", s.path, "bytes", s.written)
	return nil
}

// WriterSink streams straight into a writer such as os.Stdout. Bytes cannot
// be withdrawn once written, so Abort only stops further writes.
type WriterSink struct {
	w      io.Writer
	closed bool
}

var _ interfaces.Sink = (*WriterSink)(nil)

// NewWriterSink wraps w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.w.Write(p)
}

// Commit marks the sink done
func (s *WriterSink) Commit() error {
	s.closed = true
	return nil
}

// Abort marks the sink done
func (s *WriterSink) Abort() error {
	s.closed = true
	return nil
}

// MemorySink collects output in memory. Its contents are only readable after Commit.
type MemorySink struct {
	buf       bytes.Buffer
	committed bool
	aborted   bool
}

var _ interfaces.Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(p []byte) (int, error) {
	if s.committed || s.aborted {
		return 0, ErrSinkClosed
	}
	return s.buf.Write(p)
}

// Commit makes the contents readable
func (s *MemorySink) Commit() error {
	if s.aborted {
		return ErrSinkClosed
	}
	s.committed = true
	return nil
}

// Abort discards the contents
func (s *MemorySink) Abort() error {
	s.aborted = true
	s.buf.Reset()
	return nil
}

// Bytes returns the committed contents, nil before Commit
func (s *MemorySink) Bytes() []byte {
	if !s.committed {
		return nil
	}
	return s.buf.Bytes()
}

// Committed reports whether Commit succeeded
func (s *MemorySink) Committed() bool {
	return s.committed
}
