package index

import (
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// parseEntries decodes the entries of a node up to and including the
// terminating entry. Offsets in header are relative to nodeStart.
func parseEntries(buf *types.ByteBuffer, nodeStart int, header types.IndexNodeHeader) ([]types.IndexEntry, *types.NTFSError) {
	corrupt := func(format string, args ...interface{}) *types.NTFSError {
		return types.NewError(types.ErrIndexCorrupt, component, format, args...)
	}

	pos := nodeStart + int(header.EntriesOffset)
	end := nodeStart + int(header.IndexLength)
	if end > buf.Len() || pos > end || header.EntriesOffset < types.IndexNodeHeaderSize {
		return nil, corrupt("node entries [0x%X, 0x%X) outside %d bytes", pos, end, buf.Len())
	}

	var entries []types.IndexEntry
	for {
		if pos+types.IndexEntryHeaderSize > end {
			return nil, corrupt("node ends at 0x%X without a terminating entry", end)
		}
		reference, _ := buf.Uint64At(pos)
		length, _ := buf.Uint16At(pos + 0x08)
		keyLength, _ := buf.Uint16At(pos + 0x0A)
		flags, _ := buf.Uint16At(pos + 0x0C)

		if int(length) < types.IndexEntryHeaderSize || pos+int(length) > end {
			return nil, corrupt("entry at 0x%X has invalid length %d", pos, length)
		}

		entry := types.IndexEntry{
			Reference: types.FileReference(reference),
			Flags:     flags,
			IsSubnode: flags&types.IndexEntryHasSubnode != 0,
			IsLast:    flags&types.IndexEntryLast != 0,
		}

		keySpace := int(length) - types.IndexEntryHeaderSize
		if entry.IsSubnode {
			if keySpace < 8 {
				return nil, corrupt("entry at 0x%X too small for a child VCN", pos)
			}
			entry.ChildVCN, _ = buf.Uint64At(pos + int(length) - 8)
			keySpace -= 8
		}

		if !entry.IsLast {
			if keyLength == 0 || int(keyLength) > keySpace {
				return nil, corrupt("entry at 0x%X has key of %d bytes in %d", pos, keyLength, keySpace)
			}
			key, _ := buf.Slice(pos+types.IndexEntryHeaderSize, int(keyLength))
			fn, err := records.ParseFileName(key)
			if err != nil {
				return nil, corrupt("entry at 0x%X key", pos).WithCause(err)
			}
			entry.Name = fn.Name
			entry.NameUnits = fn.NameUnits
			entry.FileName = fn
		}

		entries = append(entries, entry)
		if entry.IsLast {
			return entries, nil
		}
		pos += int(length)
	}
}
