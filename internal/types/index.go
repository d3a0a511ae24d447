package types

// IndexNodeHeader precedes the entries of $INDEX_ROOT and of every INDX block.
// Offsets are relative to the start of the node header.
type IndexNodeHeader struct {
	EntriesOffset uint32
	IndexLength   uint32
	AllocatedSize uint32
	Flags         uint8
}

// HasChildren reports whether entries of this node may point to subnodes
func (h IndexNodeHeader) HasChildren() bool {
	return h.Flags&IndexNodeHasChildren != 0
}

// IndexEntry is one entry of a directory index node
type IndexEntry struct {
	// Name is the key; empty for the terminating entry
	Name string
	// NameUnits is the key as stored, used for collation
	NameUnits []uint16
	Reference FileReference
	Flags     uint16
	IsSubnode bool
	// ChildVCN addresses the subnode when IsSubnode is set
	ChildVCN uint64
	IsLast   bool
	// FileName is the decoded key, nil for the terminating entry
	FileName *FileNameAttribute
}

// IndexRoot is the decoded $INDEX_ROOT value
type IndexRoot struct {
	IndexedType           AttributeType
	CollationRule         uint32
	IndexBlockSize        uint32
	ClustersPerIndexBlock uint8
	Node                  IndexNodeHeader
	Entries               []IndexEntry
}

// IndexBlock is a decoded INDX block of $INDEX_ALLOCATION
type IndexBlock struct {
	VCN     uint64
	Node    IndexNodeHeader
	Entries []IndexEntry
}

// DirectoryEntry is a named child of a directory, as listed from its index
type DirectoryEntry struct {
	Name      string
	Reference FileReference
	FileName  *FileNameAttribute
}
