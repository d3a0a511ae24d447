package interfaces

import (
	"context"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// DataWriter receives extracted bytes once per contiguous chunk, in strictly
// increasing logical offset order. Zero-filled chunks for sparse holes arrive
// through the same call.
type DataWriter interface {
	Write(p []byte) (int, error)
}

// Sink is a DataWriter whose output only becomes visible on Commit
type Sink interface {
	DataWriter

	// Commit finalises the output
	Commit() error

	// Abort discards partial output
	Abort() error
}

// TimestampSetter is implemented by sinks that can carry the source file's
// timestamps over to their output
type TimestampSetter interface {
	SetTimes(modified, accessed time.Time)
}

// ExtractionProcessor drives one target from resolution to delivery
type ExtractionProcessor interface {
	// Extract resolves target and streams its attribute value to w
	Extract(ctx context.Context, target types.ExtractionTarget, w DataWriter) (*types.ExtractionResult, error)

	// State returns the current state of the state machine
	State() types.ExtractionState
}
