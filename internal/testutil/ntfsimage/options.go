package ntfsimage

import (
	"bytes"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// FileOption customises a file or directory record
type FileOption func(b *Builder, r *record)

// WithResidentData stores data inline in the unnamed $DATA attribute
func WithResidentData(data []byte) FileOption {
	return func(b *Builder, r *record) {
		r.setAttr(&attr{typ: types.AttrData, resident: append([]byte{}, data...)})
	}
}

// WithData stores data in one contiguous run of newly allocated clusters
func WithData(data []byte) FileOption {
	return WithNonResidentStream("", data)
}

// WithStream adds a resident named data stream
func WithStream(name string, data []byte) FileOption {
	return func(b *Builder, r *record) {
		r.setAttr(&attr{typ: types.AttrData, name: name, resident: append([]byte{}, data...)})
	}
}

// WithNonResidentStream stores a data stream in contiguous clusters
func WithNonResidentStream(name string, data []byte) FileOption {
	return func(b *Builder, r *record) {
		if len(data) == 0 {
			r.setAttr(&attr{typ: types.AttrData, name: name, resident: []byte{}})
			return
		}
		clusters := ceilDiv(uint64(len(data)), b.ClusterSize())
		lcn := b.AllocateClusters(clusters)
		b.WriteClusters(lcn, data)
		r.setAttr(&attr{typ: types.AttrData, name: name, nonResident: contiguous(lcn, clusters, uint64(len(data)), b.ClusterSize())})
	}
}

// WithFragmentedData spreads data over fragments runs whose physical order is
// reversed, so every run after the first has a negative LCN delta
func WithFragmentedData(data []byte, fragments int) FileOption {
	return func(b *Builder, r *record) {
		cluster := b.ClusterSize()
		clusters := ceilDiv(uint64(len(data)), cluster)
		if fragments < 1 || uint64(fragments) > clusters {
			fragments = int(clusters)
		}
		per := ceilDiv(clusters, uint64(fragments))

		slots := make([]uint64, fragments)
		for i := range slots {
			slots[i] = b.AllocateClusters(per + 1)
		}

		var extents []types.Extent
		for i := 0; i < fragments; i++ {
			first := uint64(i) * per
			if first >= clusters {
				break
			}
			count := per
			if first+count > clusters {
				count = clusters - first
			}
			lcn := slots[fragments-1-i]
			end := (first + count) * cluster
			if end > uint64(len(data)) {
				end = uint64(len(data))
			}
			b.WriteClusters(lcn, data[first*cluster:end])
			extents = append(extents, types.Extent{VCN: first, LCN: lcn, ClusterCount: count})
		}
		r.setAttr(&attr{typ: types.AttrData, nonResident: &nonResident{
			runs:        runsFromExtents(extents),
			highestVCN:  clusters - 1,
			allocated:   clusters * cluster,
			real:        uint64(len(data)),
			initialized: uint64(len(data)),
		}})
	}
}

// WithRuns sets an explicit run list on the unnamed $DATA attribute. Cluster
// contents are written separately with WriteClusters.
func WithRuns(list types.DataRunList, realSize uint64) FileOption {
	return func(b *Builder, r *record) {
		total := list.TotalClusters()
		var highest uint64
		if total > 0 {
			highest = total - 1
		}
		r.setAttr(&attr{typ: types.AttrData, nonResident: &nonResident{
			runs:        list,
			highestVCN:  highest,
			allocated:   total * b.ClusterSize(),
			real:        realSize,
			initialized: realSize,
		}})
	}
}

// WithCompressedData stores data LZNT1-compressed in 16-cluster compression
// units. All-zero units become sparse and incompressible units are stored raw.
func WithCompressedData(data []byte) FileOption {
	return func(b *Builder, r *record) {
		cluster := b.ClusterSize()
		unitClusters := uint64(1) << types.DefaultCompressionUnit
		unitSize := unitClusters * cluster

		var extents []types.Extent
		var physical uint64
		var vcn uint64
		for start := uint64(0); start < uint64(len(data)); start += unitSize {
			end := start + unitSize
			if end > uint64(len(data)) {
				end = uint64(len(data))
			}
			unit := data[start:end]

			if isZero(unit) {
				extents = append(extents, types.Extent{VCN: vcn, ClusterCount: unitClusters, Sparse: true})
				vcn += unitClusters
				continue
			}

			compressed := CompressLZNT1(unit)
			used := ceilDiv(uint64(len(compressed)), cluster)
			if used >= unitClusters {
				lcn := b.AllocateClusters(unitClusters)
				b.WriteClusters(lcn, unit)
				extents = append(extents, types.Extent{VCN: vcn, LCN: lcn, ClusterCount: unitClusters})
				physical += unitClusters
			} else {
				lcn := b.AllocateClusters(used)
				b.WriteClusters(lcn, compressed)
				extents = append(extents,
					types.Extent{VCN: vcn, LCN: lcn, ClusterCount: used},
					types.Extent{VCN: vcn + used, ClusterCount: unitClusters - used, Sparse: true},
				)
				physical += used
			}
			vcn += unitClusters
		}

		r.fileAttributes |= types.FileAttrCompressed
		r.setAttr(&attr{typ: types.AttrData, flags: types.AttrFlagCompressed, nonResident: &nonResident{
			runs:            runsFromExtents(extents),
			highestVCN:      vcn - 1,
			allocated:       vcn * cluster,
			real:            uint64(len(data)),
			initialized:     uint64(len(data)),
			compressed:      physical * cluster,
			compressionUnit: types.DefaultCompressionUnit,
		}})
	}
}

// WithInitializedSize lowers the initialized size of the unnamed $DATA attribute
func WithInitializedSize(size uint64) FileOption {
	return func(b *Builder, r *record) {
		r.initializedSize = &size
	}
}

// WithAttributeFlags sets attribute header flags on the unnamed $DATA attribute
func WithAttributeFlags(flags uint16) FileOption {
	return func(b *Builder, r *record) {
		r.dataFlags |= flags
	}
}

// WithFileAttributes sets the DOS attribute flags of the file
func WithFileAttributes(flags uint32) FileOption {
	return func(b *Builder, r *record) {
		r.fileAttributes |= flags
	}
}

// WithAttribute adds an arbitrary resident attribute
func WithAttribute(typ types.AttributeType, name string, value []byte) FileOption {
	return func(b *Builder, r *record) {
		r.setAttr(&attr{typ: typ, name: name, resident: append([]byte{}, value...)})
	}
}

// WithAttributeList moves the unnamed $DATA attribute into extension records,
// split into the given number of run list fragments
func WithAttributeList(fragments int) FileOption {
	return func(b *Builder, r *record) {
		if fragments < 1 {
			fragments = 1
		}
		r.listFragments = fragments
	}
}

// WithDOSName gives the file a separate short name. The long name moves to
// the Win32 namespace.
func WithDOSName(short string) FileOption {
	return func(b *Builder, r *record) {
		long := r.names[0]
		long.namespace = types.NamespaceWin32
		r.names = []fileName{long, {parent: long.parent, name: short, namespace: types.NamespaceDOS}}
	}
}

// WithRawName stores the file name as the given UTF-16 code units, which may
// include unpaired surrogates
func WithRawName(units []uint16) FileOption {
	return func(b *Builder, r *record) {
		r.names[0].units = append([]uint16{}, units...)
	}
}

// WithHardLink adds a second name for the file inside another directory
func WithHardLink(parent types.FileReference, name string) FileOption {
	return func(b *Builder, r *record) {
		dir := b.mustRecord(parent)
		r.names = append(r.names, fileName{parent: parent, name: name, namespace: types.NamespaceWin32AndDOS})
		dir.children = append(dir.children, r)
	}
}

// WithSequence sets the sequence number of the record
func WithSequence(sequence uint16) FileOption {
	return func(b *Builder, r *record) {
		r.sequence = sequence
		r.indexSequence = sequence
	}
}

// WithTimestamp sets every timestamp of the record
func WithTimestamp(t time.Time) FileOption {
	return func(b *Builder, r *record) {
		r.timestamp = t
	}
}

// WithIndexBlocks forces a directory index into INDX blocks, keeping at most
// maxRootEntries in $INDEX_ROOT and entriesPerBlock in each block
func WithIndexBlocks(maxRootEntries, entriesPerBlock int) FileOption {
	return func(b *Builder, r *record) {
		r.index.forceBlocks = true
		r.index.maxRootEntries = maxRootEntries
		r.index.entriesPerBlock = entriesPerBlock
	}
}

// WithTruncatedIndexAllocation maps one cluster fewer than the INDX blocks need
func WithTruncatedIndexAllocation() FileOption {
	return func(b *Builder, r *record) {
		r.index.truncateBlocks = true
	}
}

// WithDamagedIndexBlock breaks the fixups of the i-th INDX block
func WithDamagedIndexBlock(i int) FileOption {
	return func(b *Builder, r *record) {
		r.index.damagedBlock = i
		r.index.hasDamagedBlock = true
	}
}

// finalize applies the options that modify the data attribute
func (r *record) finalize() {
	data, ok := r.findAttr(types.AttrData, "")
	if !ok {
		return
	}
	data.flags |= r.dataFlags
	if r.dataFlags&types.AttrFlagEncrypted != 0 {
		r.fileAttributes |= types.FileAttrEncrypted
	}
	if r.dataFlags&types.AttrFlagSparse != 0 {
		r.fileAttributes |= types.FileAttrSparse
	}
	if r.initializedSize != nil && data.nonResident != nil {
		data.nonResident.initialized = *r.initializedSize
	}
}

func isZero(data []byte) bool {
	return len(bytes.Trim(data, "\x00")) == 0
}
