// Package ntfsimage builds small synthetic NTFS volumes in memory for tests.
//
// The builder lays out a boot sector, an MFT with fixups applied, the system
// records the engine depends on, directory indexes (resident or spread over INDX
// blocks) and file data in any of the storage forms NTFS uses.
package ntfsimage

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// Default geometry: 512-byte sectors, 4KB clusters, 1KB records, 4MB volume
const (
	DefaultSectorSize        = 512
	DefaultSectorsPerCluster = 8
	DefaultRecordSize        = 1024
	DefaultIndexBlockSize    = 4096
	DefaultTotalClusters     = 1024
	DefaultMftCluster        = 16
	DefaultMftRecords        = 64

	// firstDataCluster leaves the low clusters free for explicit run layouts
	firstDataCluster = 128
)

// DefaultTimestamp is stamped on every record unless overridden
var DefaultTimestamp = time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC)

// Options controls the volume geometry
type Options struct {
	SectorSize        int
	SectorsPerCluster int
	RecordSize        int
	IndexBlockSize    int
	TotalClusters     uint64
	MftCluster        uint64
	// MftRecords fixes the MFT size. When zero the MFT starts at
	// DefaultMftRecords and doubles whenever it fills up.
	MftRecords int
	// FragmentMFT splits the MFT data into two runs
	FragmentMFT bool
	// MftAttributeList moves the second MFT run into an extension record
	// referenced from an $ATTRIBUTE_LIST on record 0. Implies FragmentMFT.
	MftAttributeList bool
	// OmitUpCase leaves record 10 unused
	OmitUpCase  bool
	VolumeLabel string
	Timestamp   time.Time
}

func (o *Options) applyDefaults() {
	if o.SectorSize == 0 {
		o.SectorSize = DefaultSectorSize
	}
	if o.SectorsPerCluster == 0 {
		o.SectorsPerCluster = DefaultSectorsPerCluster
	}
	if o.RecordSize == 0 {
		o.RecordSize = DefaultRecordSize
	}
	if o.IndexBlockSize == 0 {
		o.IndexBlockSize = DefaultIndexBlockSize
	}
	if o.TotalClusters == 0 {
		o.TotalClusters = DefaultTotalClusters
	}
	if o.MftCluster == 0 {
		o.MftCluster = DefaultMftCluster
	}
	if o.MftRecords == 0 {
		o.MftRecords = DefaultMftRecords
	}
	if o.MftAttributeList {
		o.FragmentMFT = true
	}
	if o.VolumeLabel == "" {
		o.VolumeLabel = "RAWCOPY"
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = DefaultTimestamp
	}
}

// ClusterSize returns the cluster size in bytes
func (o *Options) ClusterSize() uint64 {
	return uint64(o.SectorSize) * uint64(o.SectorsPerCluster)
}

// Builder accumulates records and cluster contents until Build is called
type Builder struct {
	opts        Options
	growMFT     bool
	image       []byte
	records     map[uint64]*record
	nextRecord  uint64
	nextCluster uint64
	mftRuns     types.DataRunList
}

// New creates a builder holding an empty root directory and the system records
func New(opts Options) *Builder {
	growMFT := opts.MftRecords == 0
	opts.applyDefaults()
	size := opts.TotalClusters * opts.ClusterSize()
	b := &Builder{
		opts:        opts,
		growMFT:     growMFT,
		image:       make([]byte, size),
		records:     make(map[uint64]*record),
		nextRecord:  types.MftFirstUserRecord,
		nextCluster: firstDataCluster,
	}
	b.addSystemRecords()
	return b
}

// Options returns the effective geometry
func (b *Builder) Options() Options {
	return b.opts
}

// ClusterSize returns the cluster size in bytes
func (b *Builder) ClusterSize() uint64 {
	return b.opts.ClusterSize()
}

// Root returns the reference of the root directory
func (b *Builder) Root() types.FileReference {
	return b.records[types.MftRecordRoot].reference()
}

// AllocateClusters reserves count contiguous clusters and returns the first LCN
func (b *Builder) AllocateClusters(count uint64) uint64 {
	lcn := b.nextCluster
	if lcn+count > b.opts.TotalClusters {
		panic(fmt.Sprintf("ntfsimage: volume full allocating %d clusters at %d", count, lcn))
	}
	b.nextCluster += count
	return lcn
}

// WriteClusters copies data into the volume starting at lcn
func (b *Builder) WriteClusters(lcn uint64, data []byte) {
	offset := lcn * b.ClusterSize()
	if offset+uint64(len(data)) > uint64(len(b.image)) {
		panic(fmt.Sprintf("ntfsimage: write of %d bytes at cluster %d past end of volume", len(data), lcn))
	}
	copy(b.image[offset:], data)
}

// AddDirectory creates a directory below parent
func (b *Builder) AddDirectory(parent types.FileReference, name string, opts ...FileOption) types.FileReference {
	r := b.newRecord(parent, name, true)
	for _, opt := range opts {
		opt(b, r)
	}
	return r.reference()
}

// AddFile creates a file below parent. Without options the file is empty.
func (b *Builder) AddFile(parent types.FileReference, name string, opts ...FileOption) types.FileReference {
	r := b.newRecord(parent, name, false)
	for _, opt := range opts {
		opt(b, r)
	}
	if _, ok := r.findAttr(types.AttrData, ""); !ok {
		r.attrs = append(r.attrs, &attr{typ: types.AttrData, resident: []byte{}})
	}
	r.finalize()
	return r.reference()
}

// ReuseRecord bumps the sequence number of a record as if it had been deleted
// and reallocated. Index entries keep the old reference.
func (b *Builder) ReuseRecord(ref types.FileReference) types.FileReference {
	r := b.mustRecord(ref)
	r.sequence++
	return r.reference()
}

// MarkNotInUse clears the in-use flag of a record while leaving its index entries
func (b *Builder) MarkNotInUse(ref types.FileReference) {
	b.mustRecord(ref).flags &^= types.FileRecordInUse
}

// DamageRecord makes the fixup check of a record fail
func (b *Builder) DamageRecord(ref types.FileReference) {
	b.mustRecord(ref).damaged = true
}

// MarkBad replaces the signature of a record with BAAD
func (b *Builder) MarkBad(ref types.FileReference) {
	b.mustRecord(ref).bad = true
}

// Build lays out indexes, the MFT and the boot sector and returns the image.
// The builder must not be used afterwards.
func (b *Builder) Build() []byte {
	b.layoutUpCase()
	for _, segment := range b.sortedSegments() {
		if r := b.records[segment]; r.isDir {
			b.layoutIndex(r)
		}
	}
	b.splitAttributeLists()
	b.layoutMFT()
	for segment := uint64(0); segment < uint64(b.opts.MftRecords); segment++ {
		r, ok := b.records[segment]
		if !ok {
			r = &record{segment: segment, sequence: 0}
		}
		b.writeRecord(r)
	}
	b.writeBootSector()
	return b.image
}

func (b *Builder) mustRecord(ref types.FileReference) *record {
	r, ok := b.records[ref.SegmentNumber()]
	if !ok {
		panic(fmt.Sprintf("ntfsimage: no record %d", ref.SegmentNumber()))
	}
	return r
}

func (b *Builder) allocateRecord() uint64 {
	segment := b.nextRecord
	if segment >= uint64(b.opts.MftRecords) && b.growMFT {
		b.opts.MftRecords *= 2
	}
	if segment >= uint64(b.opts.MftRecords) {
		panic(fmt.Sprintf("ntfsimage: MFT full at record %d", segment))
	}
	b.nextRecord++
	return segment
}

func (b *Builder) newRecord(parent types.FileReference, name string, isDir bool) *record {
	parentRecord := b.mustRecord(parent)
	if !parentRecord.isDir {
		panic(fmt.Sprintf("ntfsimage: parent %s of %q is not a directory", parent, name))
	}
	r := &record{
		segment:   b.allocateRecord(),
		sequence:  1,
		flags:     types.FileRecordInUse,
		isDir:     isDir,
		timestamp: b.opts.Timestamp,
	}
	r.indexSequence = r.sequence
	if isDir {
		r.flags |= types.FileRecordIsDirectory
	}
	r.names = []fileName{{parent: parent, name: name, namespace: types.NamespaceWin32AndDOS}}
	b.records[r.segment] = r
	parentRecord.children = append(parentRecord.children, r)
	return r
}

func (b *Builder) sortedSegments() []uint64 {
	segments := make([]uint64, 0, len(b.records))
	for segment := uint64(0); segment < uint64(b.opts.MftRecords); segment++ {
		if _, ok := b.records[segment]; ok {
			segments = append(segments, segment)
		}
	}
	return segments
}

var systemNames = map[uint64]string{
	types.MftRecordMFT:     "$MFT",
	types.MftRecordMFTMirr: "$MFTMirr",
	types.MftRecordLogFile: "$LogFile",
	types.MftRecordVolume:  "$Volume",
	types.MftRecordAttrDef: "$AttrDef",
	types.MftRecordBitmap:  "$Bitmap",
	types.MftRecordBoot:    "$Boot",
	types.MftRecordBadClus: "$BadClus",
	types.MftRecordSecure:  "$Secure",
	types.MftRecordUpCase:  "$UpCase",
	types.MftRecordExtend:  "$Extend",
}

func (b *Builder) addSystemRecords() {
	root := &record{
		segment:   types.MftRecordRoot,
		sequence:  uint16(types.MftRecordRoot),
		flags:     types.FileRecordInUse | types.FileRecordIsDirectory,
		isDir:     true,
		timestamp: b.opts.Timestamp,
	}
	root.names = []fileName{{parent: root.reference(), name: ".", namespace: types.NamespaceWin32AndDOS}}
	b.records[root.segment] = root

	for segment := uint64(0); segment < types.MftFirstUserRecord; segment++ {
		if segment == types.MftRecordRoot {
			continue
		}
		r := &record{segment: segment, sequence: uint16(segment), timestamp: b.opts.Timestamp}
		if segment == types.MftRecordMFT {
			r.sequence = 1
		}
		b.records[segment] = r

		name, ok := systemNames[segment]
		if !ok || (segment == types.MftRecordUpCase && b.opts.OmitUpCase) {
			continue
		}
		r.flags = types.FileRecordInUse
		r.systemFile = true
		r.names = []fileName{{parent: root.reference(), name: name, namespace: types.NamespaceWin32AndDOS}}
		if segment == types.MftRecordExtend {
			r.flags |= types.FileRecordIsDirectory
			r.isDir = true
		}
		root.children = append(root.children, r)
	}

	volume := b.records[types.MftRecordVolume]
	label, _ := encodeName(b.opts.VolumeLabel)
	volume.attrs = append(volume.attrs,
		&attr{typ: types.AttrVolumeName, resident: label},
		&attr{typ: types.AttrVolumeInformation, resident: volumeInformation(3, 1, 0)},
	)
}

func (b *Builder) layoutUpCase() {
	if b.opts.OmitUpCase {
		return
	}
	table := upcaseTable()
	clusters := ceilDiv(uint64(len(table)), b.ClusterSize())
	lcn := b.AllocateClusters(clusters)
	b.WriteClusters(lcn, table)
	r := b.records[types.MftRecordUpCase]
	r.attrs = append(r.attrs, &attr{
		typ:         types.AttrData,
		nonResident: contiguous(lcn, clusters, uint64(len(table)), b.ClusterSize()),
	})
}

func (b *Builder) layoutMFT() {
	mftSize := uint64(b.opts.MftRecords) * uint64(b.opts.RecordSize)
	clusters := ceilDiv(mftSize, b.ClusterSize())

	if !b.opts.FragmentMFT {
		b.mftRuns = types.DataRunList{{ClusterCount: clusters, LCNDelta: int64(b.opts.MftCluster)}}
	} else {
		first := clusters / 2
		second := b.AllocateClusters(clusters - first)
		b.mftRuns = types.DataRunList{
			{ClusterCount: first, LCNDelta: int64(b.opts.MftCluster)},
			{ClusterCount: clusters - first, LCNDelta: int64(second) - int64(b.opts.MftCluster)},
		}
	}
	if b.opts.MftCluster+b.mftRuns[0].ClusterCount > firstDataCluster {
		panic("ntfsimage: MFT overlaps the data area")
	}

	mft := b.records[types.MftRecordMFT]
	data := &nonResident{
		runs:        b.mftRuns,
		highestVCN:  clusters - 1,
		allocated:   clusters * b.ClusterSize(),
		real:        mftSize,
		initialized: mftSize,
	}
	bitmap := make([]byte, align8(int(ceilDiv(uint64(b.opts.MftRecords), 8))))
	for segment := range b.records {
		if b.records[segment].flags&types.FileRecordInUse != 0 || segment < types.MftFirstUserRecord {
			bitmap[segment/8] |= 1 << (segment % 8)
		}
	}

	if !b.opts.MftAttributeList {
		mft.attrs = append(mft.attrs,
			&attr{typ: types.AttrData, nonResident: data},
			&attr{typ: types.AttrBitmap, resident: bitmap},
		)
		return
	}

	firstClusters := b.mftRuns[0].ClusterCount
	head := &nonResident{
		runs:        b.mftRuns[:1],
		highestVCN:  firstClusters - 1,
		allocated:   data.allocated,
		real:        data.real,
		initialized: data.initialized,
	}
	secondLCN := uint64(int64(b.opts.MftCluster) + b.mftRuns[1].LCNDelta)
	tail := &nonResident{
		runs:       types.DataRunList{{ClusterCount: b.mftRuns[1].ClusterCount, LCNDelta: int64(secondLCN)}},
		lowestVCN:  firstClusters,
		highestVCN: clusters - 1,
	}

	const extensionSegment = types.MftFirstUserRecord - 1
	extension := b.records[extensionSegment]
	extension.flags = types.FileRecordInUse
	extension.base = mft.reference()
	extension.attrs = []*attr{{typ: types.AttrData, nonResident: tail}}

	mft.attrs = append(mft.attrs,
		&attr{typ: types.AttrData, nonResident: head},
		&attr{typ: types.AttrBitmap, resident: bitmap},
	)
	mft.attributeList = []listEntry{
		{typ: types.AttrStandardInformation, ref: mft.reference()},
		{typ: types.AttrFileName, ref: mft.reference()},
		{typ: types.AttrData, ref: mft.reference()},
		{typ: types.AttrData, lowestVCN: firstClusters, ref: extension.reference()},
		{typ: types.AttrBitmap, ref: mft.reference()},
	}
}

// RecordOffset maps an MFT record to its byte offset on the volume. Valid once
// Build has laid out the MFT.
func (b *Builder) RecordOffset(segment uint64) uint64 {
	offset := segment * uint64(b.opts.RecordSize)
	cluster := b.ClusterSize()
	var lcn int64
	for _, run := range b.mftRuns {
		lcn += run.LCNDelta
		length := run.ClusterCount * cluster
		if offset < length {
			return uint64(lcn)*cluster + offset
		}
		offset -= length
	}
	panic(fmt.Sprintf("ntfsimage: record %d outside MFT", segment))
}

func (b *Builder) writeRecord(r *record) {
	data := b.encodeRecord(r)
	copy(b.image[b.RecordOffset(r.segment):], data)
}

func (b *Builder) writeBootSector() {
	boot := b.image[:types.BootSectorSize]
	boot[0], boot[1], boot[2] = 0xEB, 0x52, 0x90
	copy(boot[0x03:], types.NTFSOEMID)
	putUint16(boot, 0x0B, uint16(b.opts.SectorSize))
	boot[0x0D] = uint8(b.opts.SectorsPerCluster)
	boot[0x15] = 0xF8
	putUint64(boot, 0x28, b.opts.TotalClusters*uint64(b.opts.SectorsPerCluster))
	putUint64(boot, 0x30, b.opts.MftCluster)
	putUint64(boot, 0x38, b.opts.TotalClusters/2)
	boot[0x40] = sizeField(b.opts.RecordSize, b.ClusterSize())
	boot[0x44] = sizeField(b.opts.IndexBlockSize, b.ClusterSize())
	putUint64(boot, 0x48, 0x1C2D3E4F5A6B7C8D)
	putUint16(boot, 0x1FE, types.BootSignature)
}

// sizeField encodes a record or index block size the way the boot sector stores it
func sizeField(size int, clusterSize uint64) uint8 {
	if uint64(size) >= clusterSize {
		return uint8(uint64(size) / clusterSize)
	}
	shift := 0
	for 1<<shift < size {
		shift++
	}
	return uint8(-int8(shift))
}

func contiguous(lcn, clusters, size, clusterSize uint64) *nonResident {
	return &nonResident{
		runs:        types.DataRunList{{ClusterCount: clusters, LCNDelta: int64(lcn)}},
		highestVCN:  clusters - 1,
		allocated:   clusters * clusterSize,
		real:        size,
		initialized: size,
	}
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func align8(n int) int {
	return (n + 7) &^ 7
}
