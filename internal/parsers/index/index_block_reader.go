package index

import (
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ParseIndexBlock verifies and decodes one INDX block. The fixups are undone
// in place, so data must be a private copy of the block.
func ParseIndexBlock(data []byte, blockSize uint32) (*types.IndexBlock, error) {
	corrupt := func(format string, args ...interface{}) *types.NTFSError {
		return types.NewError(types.ErrIndexCorrupt, component, format, args...).WithAttribute(types.AttrIndexAllocation)
	}

	if blockSize < types.FixupStride || uint32(len(data)) < blockSize {
		return nil, corrupt("index block of %d bytes, expected %d", len(data), blockSize)
	}
	buf := types.NewByteBuffer(data[:blockSize])

	if signature := string(data[0:4]); signature != types.IndexBlockMagic {
		return nil, corrupt("invalid signature %q", signature)
	}
	if err := records.ApplyFixups(buf, component); err != nil {
		return nil, corrupt("fixups").WithCause(err)
	}

	block := &types.IndexBlock{}
	block.VCN, _ = buf.Uint64At(0x10)
	block.Node = parseNodeHeader(buf, types.IndexBlockHeaderSize)

	entries, err := parseEntries(buf, types.IndexBlockHeaderSize, block.Node)
	if err != nil {
		return nil, err.WithAttribute(types.AttrIndexAllocation)
	}
	block.Entries = entries
	return block, nil
}
