package services

import (
	"errors"
	"slices"
	"sort"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/index"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const (
	componentIndexWalker = "IndexWalker"

	// maxIndexDepth bounds the descent through subnodes
	maxIndexDepth = 32
)

// rangeReader reads fixed-size pieces of a non-resident attribute
type rangeReader interface {
	ReadRange(attr *types.Attribute, offset uint64, length uint32) ([]byte, error)
}

// IndexWalker searches and lists the $I30 index of directories
type IndexWalker struct {
	reader   rangeReader
	volume   interfaces.VolumeDescriptor
	collator interfaces.NameCollator
	log      *zap.SugaredLogger
}

var _ interfaces.IndexWalker = (*IndexWalker)(nil)

// NewIndexWalker creates a walker comparing names with collator
func NewIndexWalker(reader rangeReader, volume interfaces.VolumeDescriptor, collator interfaces.NameCollator) *IndexWalker {
	return &IndexWalker{
		reader:   reader,
		volume:   volume,
		collator: collator,
		log:      logger.Component(componentIndexWalker),
	}
}

// directoryIndex is the opened $I30 index of one directory
type directoryIndex struct {
	segment    uint64
	root       *types.IndexRoot
	allocation *types.Attribute
	blockSize  uint32
	vcnUnit    uint64
}

func (w *IndexWalker) open(dir *types.FileRecord) (*directoryIndex, error) {
	segment := dir.SegmentNumber()
	rootAttr, ok := dir.FindAttribute(types.AttrIndexRoot, types.DirectoryIndexName)
	if !ok {
		return nil, types.NewError(types.ErrNotADirectory, componentIndexWalker, "no $I30 index root").WithRecord(segment)
	}
	resident, ok := rootAttr.Resident()
	if !ok {
		return nil, types.NewError(types.ErrIndexCorrupt, componentIndexWalker, "index root is non-resident").
			WithRecord(segment).WithAttribute(types.AttrIndexRoot)
	}

	root, err := index.ParseIndexRoot(resident.Data)
	if err != nil {
		var ntfsErr *types.NTFSError
		if errors.As(err, &ntfsErr) {
			ntfsErr.WithRecord(segment)
		}
		return nil, err
	}
	if root.IndexedType != types.AttrFileName {
		return nil, types.NewError(types.ErrIndexCorrupt, componentIndexWalker,
			"index root indexes %s, expected %s", root.IndexedType, types.AttrFileName).
			WithRecord(segment).WithAttribute(types.AttrIndexRoot)
	}

	idx := &directoryIndex{segment: segment, root: root, blockSize: root.IndexBlockSize}
	if attr, ok := dir.FindAttribute(types.AttrIndexAllocation, types.DirectoryIndexName); ok {
		idx.allocation = attr
	}
	if uint64(idx.blockSize) >= w.volume.ClusterSize() {
		idx.vcnUnit = w.volume.ClusterSize()
	} else {
		idx.vcnUnit = types.IndexVCNBlockSize
	}
	return idx, nil
}

// block reads the INDX block at vcn
func (w *IndexWalker) block(idx *directoryIndex, vcn uint64) (*types.IndexBlock, error) {
	corrupt := func(format string, args ...interface{}) *types.NTFSError {
		return types.NewError(types.ErrIndexCorrupt, componentIndexWalker, format, args...).
			WithRecord(idx.segment).WithAttribute(types.AttrIndexAllocation)
	}

	if idx.allocation == nil {
		return nil, corrupt("subnode VCN %d without $INDEX_ALLOCATION", vcn)
	}
	content, ok := idx.allocation.NonResident()
	if !ok {
		return nil, corrupt("resident $INDEX_ALLOCATION")
	}
	offset := vcn * idx.vcnUnit
	if covered := content.Runs.TotalClusters() * w.volume.ClusterSize(); offset+uint64(idx.blockSize) > covered {
		return nil, corrupt("subnode VCN %d lies beyond the %d allocated bytes", vcn, covered)
	}

	data, err := w.reader.ReadRange(idx.allocation, offset, idx.blockSize)
	if err != nil {
		if errors.Is(err, types.ErrMalformedRecord) {
			return nil, corrupt("subnode VCN %d", vcn).WithCause(err)
		}
		return nil, err
	}

	block, err := index.ParseIndexBlock(data, idx.blockSize)
	if err != nil {
		var ntfsErr *types.NTFSError
		if errors.As(err, &ntfsErr) {
			ntfsErr.WithRecord(idx.segment)
		}
		return nil, err
	}
	if block.VCN != vcn {
		return nil, corrupt("block at VCN %d claims VCN %d", vcn, block.VCN)
	}
	return block, nil
}

// Lookup descends from the root, picking in each node the first key not below
// name. A case-exact match wins over other names equal ignoring case.
func (w *IndexWalker) Lookup(dir *types.FileRecord, name string) (types.FileReference, error) {
	idx, err := w.open(dir)
	if err != nil {
		return 0, err
	}

	query := utf16.Encode([]rune(name))
	entries := idx.root.Entries
	for depth := 0; ; depth++ {
		if depth > maxIndexDepth {
			return 0, types.NewError(types.ErrIndexCorrupt, componentIndexWalker, "index deeper than %d levels", maxIndexDepth).
				WithRecord(idx.segment)
		}

		keys := keyCount(entries)
		i := sort.Search(keys, func(i int) bool {
			return w.collator.CompareUnits(keyUnits(&entries[i]), query) >= 0
		})

		var match *types.IndexEntry
		for j := i; j < keys && w.collator.CompareUnits(keyUnits(&entries[j]), query) == 0; j++ {
			if slices.Equal(keyUnits(&entries[j]), query) {
				match = &entries[j]
				break
			}
			if match == nil {
				match = &entries[j]
			}
		}
		if match != nil {
			return match.Reference, nil
		}

		if i >= len(entries) || !entries[i].IsSubnode {
			return 0, types.NewError(types.ErrPathNotFound, componentIndexWalker, "no entry named %q", name).
				WithRecord(idx.segment).WithPathComponent(name)
		}
		block, err := w.block(idx, entries[i].ChildVCN)
		if err != nil {
			return 0, err
		}
		entries = block.Entries
	}
}

// keyUnits returns the stored code units of an entry's key
func keyUnits(entry *types.IndexEntry) []uint16 {
	if entry.NameUnits != nil {
		return entry.NameUnits
	}
	return utf16.Encode([]rune(entry.Name))
}

// keyCount returns the number of entries before the terminating entry
func keyCount(entries []types.IndexEntry) int {
	for i, entry := range entries {
		if entry.IsLast {
			return i
		}
	}
	return len(entries)
}

// List returns every entry of the index in collation order, DOS aliases included
func (w *IndexWalker) List(dir *types.FileRecord) ([]types.DirectoryEntry, error) {
	idx, err := w.open(dir)
	if err != nil {
		return nil, err
	}

	var out []types.DirectoryEntry
	visited := make(map[uint64]bool)
	var walk func(entries []types.IndexEntry, depth int) error
	walk = func(entries []types.IndexEntry, depth int) error {
		if depth > maxIndexDepth {
			return types.NewError(types.ErrIndexCorrupt, componentIndexWalker, "index deeper than %d levels", maxIndexDepth).
				WithRecord(idx.segment)
		}
		for _, entry := range entries {
			if entry.IsSubnode {
				if visited[entry.ChildVCN] {
					return types.NewError(types.ErrIndexCorrupt, componentIndexWalker,
						"subnode VCN %d referenced twice", entry.ChildVCN).WithRecord(idx.segment)
				}
				visited[entry.ChildVCN] = true
				block, err := w.block(idx, entry.ChildVCN)
				if err != nil {
					return err
				}
				if err := walk(block.Entries, depth+1); err != nil {
					return err
				}
			}
			if entry.IsLast {
				break
			}
			out = append(out, types.DirectoryEntry{Name: entry.Name, Reference: entry.Reference, FileName: entry.FileName})
		}
		return nil
	}
	if err := walk(idx.root.Entries, 0); err != nil {
		return nil, err
	}

	w.log.Debugw("listed directory", "record", idx.segment, "entries", len(out), "blocks", len(visited))
	return out, nil
}
