package records

import (
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ParseFileName decodes a $FILE_NAME value or directory index key
func ParseFileName(data []byte) (*types.FileNameAttribute, error) {
	if len(data) < types.FileNameHeaderSize {
		return nil, errShort(len(data), types.FileNameHeaderSize)
	}
	buf := types.NewByteBuffer(data)

	fn := &types.FileNameAttribute{}
	parent, _ := buf.Uint64At(types.OffsetFileNameParent)
	fn.Parent = types.FileReference(parent)
	fn.Created = filetimeAt(buf, types.OffsetFileNameCreated)
	fn.Modified = filetimeAt(buf, types.OffsetFileNameModified)
	fn.MFTChanged = filetimeAt(buf, types.OffsetFileNameMFTChange)
	fn.Accessed = filetimeAt(buf, types.OffsetFileNameAccessed)
	fn.AllocatedSize, _ = buf.Uint64At(types.OffsetFileNameAllocSize)
	fn.RealSize, _ = buf.Uint64At(types.OffsetFileNameRealSize)
	fn.Flags, _ = buf.Uint32At(types.OffsetFileNameFlags)
	fn.ReparseTag, _ = buf.Uint32At(types.OffsetFileNameReparse)
	nameLength, _ := buf.Uint8At(types.OffsetFileNameLength)
	fn.Namespace, _ = buf.Uint8At(types.OffsetFileNameNamespace)

	raw, err := buf.Slice(types.FileNameHeaderSize, int(nameLength)*2)
	if err != nil {
		return nil, err
	}
	if fn.Name, err = DecodeName(raw); err != nil {
		return nil, err
	}
	fn.NameUnits = DecodeNameUnits(raw)
	return fn, nil
}
