package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// MftReader resolves MFT record numbers to raw record bytes
type MftReader interface {
	// ReadRecord returns the raw bytes of a record, before fixups
	ReadRecord(segment uint64) (*types.ByteBuffer, error)

	// RecordSize returns the size of one record in bytes
	RecordSize() uint32

	// RecordCount returns the number of records the MFT declares
	RecordCount() uint64
}

// FileRecordLoader yields parsed, in-use file records with extension records merged
type FileRecordLoader interface {
	// LoadRecord loads a record by number without checking its sequence number
	LoadRecord(segment uint64) (*types.FileRecord, error)

	// LoadReference loads a record and fails with StaleReference on a sequence mismatch
	LoadReference(ref types.FileReference) (*types.FileRecord, error)
}

// AttributeReader exposes the value of an attribute as a byte stream
type AttributeReader interface {
	// Open returns a reader over the attribute value, truncated at its real size
	Open(attr *types.Attribute) (io.Reader, error)

	// ReadAll returns the complete attribute value
	ReadAll(attr *types.Attribute) ([]byte, error)
}
