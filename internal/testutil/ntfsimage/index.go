package ntfsimage

import (
	"sort"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

type indexLayout struct {
	// maxRootEntries caps the entries kept in $INDEX_ROOT; 0 means fill by size
	maxRootEntries int
	forceBlocks    bool
	// entriesPerBlock caps the entries of each INDX block; 0 means fill by size
	entriesPerBlock int
	truncateBlocks  bool
	damagedBlock    int
	hasDamagedBlock bool
}

type indexKey struct {
	ref   types.FileReference
	value []byte
	units []uint16
}

type indexNode struct {
	entries []nodeEntry
	// end is the subnode of the terminating entry, -1 when there is none
	end int
}

type nodeEntry struct {
	key   *indexKey
	child int
}

func (n indexNode) hasChildren() bool {
	if n.end >= 0 {
		return true
	}
	for _, e := range n.entries {
		if e.child >= 0 {
			return true
		}
	}
	return false
}

const (
	indexRootValueHeader = types.IndexRootHeaderSize + types.IndexNodeHeaderSize
	terminatorSize       = types.IndexEntryHeaderSize + 8
)

func entrySize(key *indexKey, withChild bool) int {
	size := align8(types.IndexEntryHeaderSize + len(key.value))
	if withChild {
		size += 8
	}
	return size
}

// layoutIndex builds the $I30 index of a directory, spilling into INDX blocks
// when the entries do not fit in the record
func (b *Builder) layoutIndex(dir *record) {
	keys := b.indexKeys(dir)
	rootBudget := b.rootBudget(dir)

	fitsRoot := func(level []nodeEntry) bool {
		if dir.index.forceBlocks && len(level) > dir.index.maxRootEntries {
			return false
		}
		size := terminatorSize
		for _, e := range level {
			size += entrySize(e.key, true)
		}
		return size <= rootBudget
	}

	blockEntriesStart := b.blockEntriesOffset()
	fitsBlock := func(entries []nodeEntry) bool {
		if dir.index.entriesPerBlock > 0 && len(entries) > dir.index.entriesPerBlock {
			return false
		}
		size := blockEntriesStart + terminatorSize
		for _, e := range entries {
			size += entrySize(e.key, true)
		}
		return size <= b.opts.IndexBlockSize
	}

	level := make([]nodeEntry, len(keys))
	for i, key := range keys {
		level[i] = nodeEntry{key: key, child: -1}
	}
	last := -1
	var blocks []indexNode

	for !fitsRoot(level) {
		var next []nodeEntry
		for i := 0; ; {
			end := i
			for end < len(level) && fitsBlock(level[i:end+1]) {
				end++
			}
			if end == i && i < len(level) {
				end = i + 1
			}
			block := indexNode{entries: level[i:end]}
			if end < len(level) {
				block.end = level[end].child
				blocks = append(blocks, block)
				next = append(next, nodeEntry{key: level[end].key, child: len(blocks) - 1})
				i = end + 1
				continue
			}
			block.end = last
			blocks = append(blocks, block)
			last = len(blocks) - 1
			break
		}
		level = next
	}

	root := indexNode{entries: level, end: last}
	dir.setAttr(&attr{typ: types.AttrIndexRoot, name: types.DirectoryIndexName, resident: b.encodeIndexRoot(root)})
	if len(blocks) == 0 {
		return
	}

	blockSize := uint64(b.opts.IndexBlockSize)
	clusters := ceilDiv(uint64(len(blocks))*blockSize, b.ClusterSize())
	lcn := b.AllocateClusters(clusters)
	for i, block := range blocks {
		data := b.encodeIndexBlock(block, uint64(i), dir.index.hasDamagedBlock && dir.index.damagedBlock == i)
		copy(b.image[lcn*b.ClusterSize()+uint64(i)*blockSize:], data)
	}

	mapped := clusters
	if dir.index.truncateBlocks && clusters > 1 {
		mapped = clusters - 1
	}
	dir.setAttr(&attr{
		typ:         types.AttrIndexAllocation,
		name:        types.DirectoryIndexName,
		nonResident: contiguous(lcn, mapped, mapped*b.ClusterSize(), b.ClusterSize()),
	})

	bitmap := make([]byte, align8(int(ceilDiv(uint64(len(blocks)), 8))))
	for i := range blocks {
		bitmap[i/8] |= 1 << (i % 8)
	}
	dir.setAttr(&attr{typ: types.AttrBitmap, name: types.DirectoryIndexName, resident: bitmap})
}

func (b *Builder) indexKeys(dir *record) []*indexKey {
	var keys []*indexKey
	for _, child := range dir.children {
		for _, fn := range child.names {
			if fn.parent.SegmentNumber() != dir.segment {
				continue
			}
			keys = append(keys, &indexKey{ref: child.indexReference(), value: b.fileNameValue(child, fn), units: fn.codeUnits()})
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return collate(keys[i].units, keys[j].units) < 0 })
	return keys
}

// rootBudget estimates the bytes left in the directory record for $INDEX_ROOT
// and the allocation attributes that may follow it
func (b *Builder) rootBudget(dir *record) int {
	used := align8(types.FileRecordHeaderSize+(b.opts.RecordSize/types.FixupStride+1)*2) + 8
	for _, a := range b.attributes(dir) {
		if a.typ == types.AttrIndexRoot || a.typ == types.AttrIndexAllocation || a.typ == types.AttrBitmap {
			continue
		}
		used += len(encodeAttribute(a, 0))
	}
	const allocationAttrs = 0x50 + 0x30
	const rootHeader = types.ResidentHeaderSize + 8 + indexRootValueHeader
	return b.opts.RecordSize - used - allocationAttrs - rootHeader
}

func (b *Builder) blockEntriesOffset() int {
	usaCount := b.opts.IndexBlockSize/types.FixupStride + 1
	return align8(0x28 + usaCount*2)
}

// blockVCN is the VCN of the i-th INDX block
func (b *Builder) blockVCN(i uint64) uint64 {
	blockSize := uint64(b.opts.IndexBlockSize)
	if blockSize >= b.ClusterSize() {
		return i * blockSize / b.ClusterSize()
	}
	return i * blockSize / types.IndexVCNBlockSize
}

func (b *Builder) encodeEntries(node indexNode) []byte {
	var out []byte
	for _, e := range node.entries {
		out = append(out, b.encodeIndexEntry(e.key, e.child, false)...)
	}
	return append(out, b.encodeIndexEntry(nil, node.end, true)...)
}

func (b *Builder) encodeIndexEntry(key *indexKey, child int, last bool) []byte {
	size := types.IndexEntryHeaderSize
	if key != nil {
		size = align8(types.IndexEntryHeaderSize + len(key.value))
	}
	if child >= 0 {
		size += 8
	}
	buf := make([]byte, size)
	var flags uint16
	if key != nil {
		putUint64(buf, 0x00, uint64(key.ref))
		putUint16(buf, 0x0A, uint16(len(key.value)))
		copy(buf[types.IndexEntryHeaderSize:], key.value)
	}
	if child >= 0 {
		flags |= types.IndexEntryHasSubnode
		putUint64(buf, size-8, b.blockVCN(uint64(child)))
	}
	if last {
		flags |= types.IndexEntryLast
	}
	putUint16(buf, 0x08, uint16(size))
	putUint16(buf, 0x0C, flags)
	return buf
}

func (b *Builder) encodeIndexRoot(node indexNode) []byte {
	entries := b.encodeEntries(node)
	buf := make([]byte, indexRootValueHeader+len(entries))
	putUint32(buf, 0x00, uint32(types.AttrFileName))
	putUint32(buf, 0x04, types.CollationFileName)
	putUint32(buf, 0x08, uint32(b.opts.IndexBlockSize))
	if uint64(b.opts.IndexBlockSize) >= b.ClusterSize() {
		buf[0x0C] = uint8(uint64(b.opts.IndexBlockSize) / b.ClusterSize())
	} else {
		buf[0x0C] = uint8(b.opts.IndexBlockSize / types.IndexVCNBlockSize)
	}
	putNodeHeader(buf[types.IndexRootHeaderSize:], types.IndexNodeHeaderSize, len(entries), len(entries), node.hasChildren())
	copy(buf[indexRootValueHeader:], entries)
	return buf
}

func (b *Builder) encodeIndexBlock(node indexNode, i uint64, damage bool) []byte {
	size := b.opts.IndexBlockSize
	buf := make([]byte, size)
	usaCount := size/types.FixupStride + 1
	start := b.blockEntriesOffset()
	entries := b.encodeEntries(node)

	copy(buf, types.IndexBlockMagic)
	putUint16(buf, 0x04, 0x28)
	putUint16(buf, 0x06, uint16(usaCount))
	putUint64(buf, 0x08, 0x300000+i)
	putUint64(buf, 0x10, b.blockVCN(i))
	nodeStart := types.IndexBlockHeaderSize
	putNodeHeader(buf[nodeStart:], start-nodeStart, len(entries), size-nodeStart, node.hasChildren())
	copy(buf[start:], entries)

	protect(buf, 0x28, usaCount, uint16(i)+0x51, damage)
	return buf
}

func putNodeHeader(buf []byte, entriesOffset, entriesLength, allocated int, children bool) {
	putUint32(buf, 0x00, uint32(entriesOffset))
	putUint32(buf, 0x04, uint32(entriesOffset+entriesLength))
	putUint32(buf, 0x08, uint32(allocated))
	if children {
		buf[0x0C] = types.IndexNodeHasChildren
	}
}
