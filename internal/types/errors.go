package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds raised by the extraction engine. Match them with errors.Is.
var (
	ErrNotNtfs              = errors.New("not an NTFS volume")
	ErrIoFault              = errors.New("device read failed")
	ErrRecordOutOfRange     = errors.New("record number outside the MFT")
	ErrRecordNotInUse       = errors.New("record not in use")
	ErrMalformedRecord      = errors.New("malformed record")
	ErrRecordDamaged        = errors.New("record damaged")
	ErrIndexCorrupt         = errors.New("index corrupt")
	ErrPathNotFound         = errors.New("path not found")
	ErrNotADirectory        = errors.New("not a directory")
	ErrAttributeNotFound    = errors.New("attribute not found")
	ErrStaleReference       = errors.New("stale file reference")
	ErrUnsupportedAttribute = errors.New("unsupported attribute")
)

// NTFSError carries the diagnostic context of an engine failure
type NTFSError struct {
	Kind          error
	Component     string
	Record        *uint64
	Attribute     *AttributeType
	PathComponent string
	Offset        *uint64
	Message       string
	Cause         error
}

// NewError creates an NTFSError of the given kind raised by component
func NewError(kind error, component, format string, args ...interface{}) *NTFSError {
	return &NTFSError{
		Kind:      kind,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	}
}

// WithRecord attaches the MFT record number
func (e *NTFSError) WithRecord(segment uint64) *NTFSError {
	e.Record = &segment
	return e
}

// WithAttribute attaches the attribute type
func (e *NTFSError) WithAttribute(attrType AttributeType) *NTFSError {
	e.Attribute = &attrType
	return e
}

// WithPathComponent attaches the path component being resolved
func (e *NTFSError) WithPathComponent(component string) *NTFSError {
	e.PathComponent = component
	return e
}

// WithOffset attaches a byte offset on the volume
func (e *NTFSError) WithOffset(offset uint64) *NTFSError {
	e.Offset = &offset
	return e
}

// WithCause attaches the underlying error
func (e *NTFSError) WithCause(cause error) *NTFSError {
	e.Cause = cause
	return e
}

func (e *NTFSError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	var context []string
	if e.Record != nil {
		context = append(context, fmt.Sprintf("record %d", *e.Record))
	}
	if e.Attribute != nil {
		context = append(context, "attribute "+e.Attribute.String())
	}
	if e.PathComponent != "" {
		context = append(context, fmt.Sprintf("component %q", e.PathComponent))
	}
	if e.Offset != nil {
		context = append(context, fmt.Sprintf("offset 0x%X", *e.Offset))
	}
	if len(context) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(context, ", "))
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *NTFSError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the kind of this error
func (e *NTFSError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

var errorKinds = []error{
	ErrNotNtfs, ErrIoFault, ErrRecordOutOfRange, ErrRecordNotInUse, ErrMalformedRecord,
	ErrRecordDamaged, ErrIndexCorrupt, ErrPathNotFound, ErrNotADirectory,
	ErrAttributeNotFound, ErrStaleReference, ErrUnsupportedAttribute,
}

// ErrorKind returns the outermost engine error kind in err's chain, or nil.
// A record failure wrapped as IndexCorrupt reports IndexCorrupt.
func ErrorKind(err error) error {
	for err != nil {
		if ntfsErr, ok := err.(*NTFSError); ok && ntfsErr.Kind != nil {
			return ntfsErr.Kind
		}
		for _, kind := range errorKinds {
			if err == kind {
				return kind
			}
		}
		err = errors.Unwrap(err)
	}
	return nil
}
