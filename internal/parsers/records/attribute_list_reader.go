package records

import (
	"fmt"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const attributeListEntryMinSize = 0x1A

// ParseAttributeList decodes the entries of an $ATTRIBUTE_LIST value
func ParseAttributeList(data []byte) ([]types.AttributeListEntry, error) {
	buf := types.NewByteBuffer(data)
	var entries []types.AttributeListEntry

	for offset := 0; offset+attributeListEntryMinSize <= len(data); {
		typeCode, _ := buf.Uint32At(offset)
		recordLength, _ := buf.Uint16At(offset + 0x04)
		if recordLength < attributeListEntryMinSize || offset+int(recordLength) > len(data) {
			return nil, fmt.Errorf("attribute list entry at 0x%X has invalid length %d", offset, recordLength)
		}
		nameLength, _ := buf.Uint8At(offset + 0x06)
		nameOffset, _ := buf.Uint8At(offset + 0x07)
		lowestVCN, _ := buf.Uint64At(offset + 0x08)
		reference, _ := buf.Uint64At(offset + 0x10)
		attributeID, _ := buf.Uint16At(offset + 0x18)

		entry := types.AttributeListEntry{
			Type:         types.AttributeType(typeCode),
			RecordLength: recordLength,
			LowestVCN:    lowestVCN,
			Reference:    types.FileReference(reference),
			AttributeID:  attributeID,
		}
		if nameLength > 0 {
			if int(nameOffset)+int(nameLength)*2 > int(recordLength) {
				return nil, fmt.Errorf("attribute list entry at 0x%X has name outside entry", offset)
			}
			raw, _ := buf.Slice(offset+int(nameOffset), int(nameLength)*2)
			name, err := DecodeName(raw)
			if err != nil {
				return nil, err
			}
			entry.Name = name
		}

		entries = append(entries, entry)
		offset += int(recordLength)
	}

	return entries, nil
}
