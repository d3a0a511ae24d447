package types

import (
	"fmt"
	"strconv"
	"strings"
)

// FileReference packs a 48-bit MFT segment number and a 16-bit sequence number
type FileReference uint64

// NewFileReference builds a reference from its parts
func NewFileReference(segment uint64, sequence uint16) FileReference {
	return FileReference(segment&MftRecordNumberMask | uint64(sequence)<<48)
}

// SegmentNumber returns the MFT record number
func (r FileReference) SegmentNumber() uint64 {
	return uint64(r) & MftRecordNumberMask
}

// SequenceNumber returns the generation counter
func (r FileReference) SequenceNumber() uint16 {
	return uint16(uint64(r) >> 48)
}

// String renders the reference as "segment-sequence"
func (r FileReference) String() string {
	return fmt.Sprintf("%d-%d", r.SegmentNumber(), r.SequenceNumber())
}

// ParseFileReference parses "segment" or "segment-sequence". The returned flag
// reports whether a sequence number was supplied and must be verified.
func ParseFileReference(s string) (FileReference, bool, error) {
	segmentPart, sequencePart, hasSequence := strings.Cut(strings.TrimSpace(s), "-")
	segment, err := strconv.ParseUint(segmentPart, 0, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid record number %q: %w", segmentPart, err)
	}
	if segment > MftRecordNumberMask {
		return 0, false, fmt.Errorf("record number %d exceeds 48 bits", segment)
	}
	if !hasSequence {
		return NewFileReference(segment, 0), false, nil
	}
	sequence, err := strconv.ParseUint(sequencePart, 0, 16)
	if err != nil {
		return 0, false, fmt.Errorf("invalid sequence number %q: %w", sequencePart, err)
	}
	return NewFileReference(segment, uint16(sequence)), true, nil
}
