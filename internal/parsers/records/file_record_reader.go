package records

import (
	"errors"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ParseFileRecordHeader decodes the fixed header of a FILE record
func ParseFileRecordHeader(buf *types.ByteBuffer) (*types.FileRecordHeader, error) {
	if buf.Len() < types.FileRecordHeaderSize {
		return nil, errShort(buf.Len(), types.FileRecordHeaderSize)
	}
	header := &types.FileRecordHeader{
		Signature: string(buf.Bytes()[0:4]),
	}
	header.USAOffset, _ = buf.Uint16At(types.OffsetRecordUSAOffset)
	header.USACount, _ = buf.Uint16At(types.OffsetRecordUSACount)
	header.LSN, _ = buf.Uint64At(types.OffsetRecordLSN)
	header.Sequence, _ = buf.Uint16At(types.OffsetRecordSequence)
	header.LinkCount, _ = buf.Uint16At(types.OffsetRecordLinkCount)
	header.AttributeOffset, _ = buf.Uint16At(types.OffsetRecordAttrOffset)
	header.Flags, _ = buf.Uint16At(types.OffsetRecordFlags)
	header.BytesInUse, _ = buf.Uint32At(types.OffsetRecordBytesInUse)
	header.BytesAllocated, _ = buf.Uint32At(types.OffsetRecordBytesAllocated)
	base, _ := buf.Uint64At(types.OffsetRecordBaseReference)
	header.BaseReference = types.FileReference(base)
	header.NextAttributeID, _ = buf.Uint16At(types.OffsetRecordNextAttributeID)
	header.RecordNumber, _ = buf.Uint32At(types.OffsetRecordNumber)
	return header, nil
}

// ParseFileRecord applies fixups to a raw MFT record and decodes its attribute
// stream. Attributes held in extension records are not followed here; the
// $ATTRIBUTE_LIST attribute is returned like any other attribute.
func ParseFileRecord(raw *types.ByteBuffer, segment uint64) (*types.FileRecord, error) {
	if raw.Len() < types.FileRecordHeaderSize {
		return nil, types.NewError(types.ErrMalformedRecord, component,
			"data too small for file record: %d bytes", raw.Len()).WithRecord(segment)
	}

	switch signature := string(raw.Bytes()[0:4]); signature {
	case types.FileRecordMagic:
	case types.BadRecordMagic:
		return nil, types.NewError(types.ErrRecordDamaged, component, "record marked BAAD").WithRecord(segment)
	default:
		return nil, types.NewError(types.ErrMalformedRecord, component, "invalid signature %q", signature).WithRecord(segment)
	}

	if err := ApplyFixups(raw, component); err != nil {
		var ntfsErr *types.NTFSError
		if errors.As(err, &ntfsErr) {
			ntfsErr.WithRecord(segment)
		}
		return nil, err
	}

	header, err := ParseFileRecordHeader(raw)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, component, "header").WithRecord(segment).WithCause(err)
	}

	used := int(header.BytesInUse)
	if used > raw.Len() || used < types.FileRecordHeaderSize {
		return nil, types.NewError(types.ErrMalformedRecord, component,
			"used size %d outside record of %d bytes", used, raw.Len()).WithRecord(segment)
	}
	if int(header.AttributeOffset) < types.FileRecordHeaderSize || int(header.AttributeOffset) >= used {
		return nil, types.NewError(types.ErrMalformedRecord, component,
			"attribute offset 0x%X outside used size %d", header.AttributeOffset, used).WithRecord(segment)
	}

	record := &types.FileRecord{
		Reference: types.NewFileReference(segment, header.Sequence),
		Header:    *header,
	}

	offset := int(header.AttributeOffset)
	for {
		typeCode, err := raw.Uint32At(offset)
		if err != nil || offset+4 > used {
			return nil, types.NewError(types.ErrMalformedRecord, component,
				"attribute stream not terminated before used size %d", used).WithRecord(segment)
		}
		if types.AttributeType(typeCode) == types.AttrEnd {
			break
		}

		attr, err := ParseAttribute(raw, offset, used, segment)
		if err != nil {
			return nil, err
		}
		record.Attributes = append(record.Attributes, attr)

		length, _ := raw.Uint32At(offset + types.OffsetAttrLength)
		offset += int(length)
	}

	return record, nil
}
