package records

import (
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/runs"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ParseAttribute decodes the attribute whose header starts at offset inside a
// fixed-up record. The attribute must lie within the first limit bytes.
func ParseAttribute(rec *types.ByteBuffer, offset, limit int, segment uint64) (*types.Attribute, error) {
	malformed := func(format string, args ...interface{}) error {
		return types.NewError(types.ErrMalformedRecord, component, format, args...).WithRecord(segment)
	}

	if offset+types.AttrHeaderSize > limit {
		return nil, malformed("attribute header at 0x%X crosses used size %d", offset, limit)
	}
	typeCode, _ := rec.Uint32At(offset + types.OffsetAttrType)
	length, _ := rec.Uint32At(offset + types.OffsetAttrLength)
	attrType := types.AttributeType(typeCode)
	if length < types.AttrHeaderSize || uint64(offset)+uint64(length) > uint64(limit) {
		return nil, types.NewError(types.ErrMalformedRecord, component,
			"attribute at 0x%X declares length %d past used size %d", offset, length, limit).
			WithRecord(segment).WithAttribute(attrType)
	}

	attr, err := rec.Sub(offset, int(length))
	if err != nil {
		return nil, malformed("attribute at 0x%X: %v", offset, err)
	}

	nonResident, _ := attr.Uint8At(types.OffsetAttrNonResident)
	nameLength, _ := attr.Uint8At(types.OffsetAttrNameLength)
	nameOffset, _ := attr.Uint16At(types.OffsetAttrNameOffset)
	flags, _ := attr.Uint16At(types.OffsetAttrFlags)
	id, _ := attr.Uint16At(types.OffsetAttrID)

	result := &types.Attribute{
		Type:   attrType,
		Flags:  flags,
		ID:     id,
		Record: segment,
	}

	if nameLength > 0 {
		raw, err := attr.Slice(int(nameOffset), int(nameLength)*2)
		if err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, component, "attribute name outside attribute").
				WithRecord(segment).WithAttribute(attrType).WithCause(err)
		}
		if result.Name, err = DecodeName(raw); err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, component, "attribute name").
				WithRecord(segment).WithAttribute(attrType).WithCause(err)
		}
	}

	if nonResident == 0 {
		content, err := parseResident(attr)
		if err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, component, "resident value").
				WithRecord(segment).WithAttribute(attrType).WithCause(err)
		}
		result.Content = content
		return result, nil
	}

	content, err := parseNonResident(attr, flags)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, component, "non-resident value").
			WithRecord(segment).WithAttribute(attrType).WithCause(err)
	}
	result.Content = content
	return result, nil
}

func parseResident(attr *types.ByteBuffer) (*types.ResidentContent, error) {
	if attr.Len() < types.ResidentHeaderSize {
		return nil, errShort(attr.Len(), types.ResidentHeaderSize)
	}
	valueLength, _ := attr.Uint32At(types.OffsetResidentValueLength)
	valueOffset, _ := attr.Uint16At(types.OffsetResidentValueOffset)
	indexed, _ := attr.Uint8At(0x16)

	value, err := attr.Slice(int(valueOffset), int(valueLength))
	if err != nil {
		return nil, err
	}
	return &types.ResidentContent{
		Data:    append([]byte(nil), value...),
		Indexed: indexed&0x01 != 0,
	}, nil
}

func parseNonResident(attr *types.ByteBuffer, flags uint16) (*types.NonResidentContent, error) {
	if attr.Len() < types.NonResidentHeaderSize {
		return nil, errShort(attr.Len(), types.NonResidentHeaderSize)
	}
	content := &types.NonResidentContent{}
	content.LowestVCN, _ = attr.Uint64At(types.OffsetNonResLowestVCN)
	content.HighestVCN, _ = attr.Uint64At(types.OffsetNonResHighestVCN)
	content.CompressionUnit, _ = attr.Uint16At(types.OffsetNonResCompUnit)
	content.AllocatedSize, _ = attr.Uint64At(types.OffsetNonResAllocatedSize)
	content.RealSize, _ = attr.Uint64At(types.OffsetNonResRealSize)
	content.InitializedSize, _ = attr.Uint64At(types.OffsetNonResInitSize)
	if flags&types.AttrFlagCompressedMask != 0 && attr.InBounds(types.OffsetNonResCompSize, 8) {
		content.CompressedSize, _ = attr.Uint64At(types.OffsetNonResCompSize)
	}

	runOffset, _ := attr.Uint16At(types.OffsetNonResRunOffset)
	if int(runOffset) > attr.Len() || runOffset < types.OffsetNonResCompSize {
		return nil, errRunOffset(runOffset, attr.Len())
	}
	list, err := runs.DecodeRunList(attr.Bytes()[runOffset:])
	if err != nil {
		return nil, err
	}
	content.Runs = list
	return content, nil
}
