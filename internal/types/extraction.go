package types

import "fmt"

// ExtractionTarget names what one extraction job reads: a path or an explicit
// record, and the attribute stream to deliver.
type ExtractionTarget struct {
	// Path is an absolute path inside the volume; ignored when Record is set
	Path string
	// Record selects a file by MFT reference instead of by path
	Record *FileReference
	// VerifySequence checks Record's sequence number against the live record
	VerifySequence bool
	// AttributeType defaults to $DATA
	AttributeType AttributeType
	// StreamName selects a named stream; empty selects the unnamed stream
	StreamName string
}

// AttributeTypeOrDefault returns the requested type, or $DATA
func (t ExtractionTarget) AttributeTypeOrDefault() AttributeType {
	if t.AttributeType == 0 {
		return AttrData
	}
	return t.AttributeType
}

// String describes the target for logs and errors
func (t ExtractionTarget) String() string {
	var base string
	if t.Record != nil {
		base = "record " + t.Record.String()
	} else {
		base = t.Path
	}
	if t.StreamName != "" {
		base += ":" + t.StreamName
	}
	if attrType := t.AttributeTypeOrDefault(); attrType != AttrData {
		base += fmt.Sprintf(" [%s]", attrType)
	}
	return base
}

// ExtractionState is a state of the extraction state machine
type ExtractionState int

// Extraction states. Failed is absorbing and reachable from every other state.
const (
	StateResolving ExtractionState = iota
	StateLocated
	StateExtracting
	StateDone
	StateFailed
)

func (s ExtractionState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateLocated:
		return "located"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ExtractionResult summarises a completed extraction
type ExtractionResult struct {
	Reference      FileReference
	Attribute      string
	Resident       bool
	Compressed     bool
	Encrypted      bool
	BytesExtracted uint64
	SparseBytes    uint64
	Standard       *StandardInformation
}
