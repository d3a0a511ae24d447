// Package index decodes the $I30 file name index of NTFS directories: the
// resident $INDEX_ROOT and the INDX blocks of $INDEX_ALLOCATION.
package index

import (
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const component = "IndexParser"

// ParseIndexRoot decodes an $INDEX_ROOT value
func ParseIndexRoot(data []byte) (*types.IndexRoot, error) {
	if len(data) < types.IndexRootHeaderSize+types.IndexNodeHeaderSize {
		return nil, types.NewError(types.ErrIndexCorrupt, component, "index root too small: %d bytes", len(data)).
			WithAttribute(types.AttrIndexRoot)
	}
	buf := types.NewByteBuffer(data)

	root := &types.IndexRoot{}
	indexedType, _ := buf.Uint32At(0x00)
	root.IndexedType = types.AttributeType(indexedType)
	root.CollationRule, _ = buf.Uint32At(0x04)
	root.IndexBlockSize, _ = buf.Uint32At(0x08)
	root.ClustersPerIndexBlock, _ = buf.Uint8At(0x0C)

	root.Node = parseNodeHeader(buf, types.IndexRootHeaderSize)
	entries, err := parseEntries(buf, types.IndexRootHeaderSize, root.Node)
	if err != nil {
		return nil, err.WithAttribute(types.AttrIndexRoot)
	}
	root.Entries = entries
	return root, nil
}

func parseNodeHeader(buf *types.ByteBuffer, start int) types.IndexNodeHeader {
	var header types.IndexNodeHeader
	header.EntriesOffset, _ = buf.Uint32At(start + 0x00)
	header.IndexLength, _ = buf.Uint32At(start + 0x04)
	header.AllocatedSize, _ = buf.Uint32At(start + 0x08)
	header.Flags, _ = buf.Uint8At(start + 0x0C)
	return header
}
