package ntfsimage

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
	"unicode/utf16"

	"github.com/deploymenttheory/go-rawcopy/internal/parsers/runs"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

type record struct {
	segment        uint64
	sequence       uint16
	indexSequence  uint16
	flags          uint16
	base           types.FileReference
	isDir          bool
	systemFile     bool
	timestamp      time.Time
	fileAttributes uint32
	names          []fileName
	attrs          []*attr
	attributeList  []listEntry
	children       []*record
	damaged        bool
	bad            bool

	// applied once every option has run
	initializedSize *uint64
	dataFlags       uint16
	listFragments   int
	dataSize        uint64
	dataAllocated   uint64

	index indexLayout
}

type fileName struct {
	parent    types.FileReference
	name      string
	namespace uint8
	// units overrides the encoding of name when set
	units []uint16
}

func (fn fileName) codeUnits() []uint16 {
	if fn.units != nil {
		return fn.units
	}
	return utf16.Encode([]rune(fn.name))
}

type attr struct {
	typ         types.AttributeType
	name        string
	flags       uint16
	resident    []byte
	nonResident *nonResident
}

type nonResident struct {
	runs            types.DataRunList
	lowestVCN       uint64
	highestVCN      uint64
	allocated       uint64
	real            uint64
	initialized     uint64
	compressed      uint64
	compressionUnit uint16
}

type listEntry struct {
	typ       types.AttributeType
	name      string
	lowestVCN uint64
	ref       types.FileReference
}

func (r *record) reference() types.FileReference {
	return types.NewFileReference(r.segment, r.sequence)
}

// indexReference is the reference the parent index holds, which goes stale
// once the record is reused
func (r *record) indexReference() types.FileReference {
	if r.indexSequence == 0 {
		return r.reference()
	}
	return types.NewFileReference(r.segment, r.indexSequence)
}

func (r *record) findAttr(typ types.AttributeType, name string) (*attr, bool) {
	for _, a := range r.attrs {
		if a.typ == typ && a.name == name {
			return a, true
		}
	}
	return nil, false
}

func (r *record) setAttr(a *attr) {
	for i, existing := range r.attrs {
		if existing.typ == a.typ && existing.name == a.name {
			r.attrs[i] = a
			return
		}
	}
	r.attrs = append(r.attrs, a)
}

// sizes returns the allocated and real size of the unnamed data stream
func (r *record) sizes() (uint64, uint64) {
	if r.dataSize != 0 || r.dataAllocated != 0 {
		return r.dataAllocated, r.dataSize
	}
	a, ok := r.findAttr(types.AttrData, "")
	if !ok {
		return 0, 0
	}
	if a.nonResident != nil {
		return a.nonResident.allocated, a.nonResident.real
	}
	return uint64(align8(len(a.resident))), uint64(len(a.resident))
}

// attributes returns the attributes in the order they are stored
func (b *Builder) attributes(r *record) []*attr {
	var list []*attr
	if len(r.names) > 0 {
		list = append(list, &attr{typ: types.AttrStandardInformation, resident: b.standardInformation(r)})
	}
	if len(r.attributeList) > 0 {
		list = append(list, &attr{typ: types.AttrAttributeList, resident: b.encodeAttributeList(r.attributeList)})
	}
	for _, fn := range r.names {
		list = append(list, &attr{typ: types.AttrFileName, resident: b.fileNameValue(r, fn)})
	}
	sorted := append([]*attr(nil), r.attrs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].typ < sorted[j].typ })
	return append(list, sorted...)
}

func (b *Builder) encodeRecord(r *record) []byte {
	size := b.opts.RecordSize
	buf := make([]byte, size)
	usaCount := size/types.FixupStride + 1
	attrOffset := align8(types.FileRecordHeaderSize + usaCount*2)

	copy(buf, types.FileRecordMagic)
	putUint16(buf, types.OffsetRecordUSAOffset, types.FileRecordHeaderSize)
	putUint16(buf, types.OffsetRecordUSACount, uint16(usaCount))
	putUint64(buf, types.OffsetRecordLSN, 0x200000+r.segment)
	putUint16(buf, types.OffsetRecordSequence, r.sequence)
	putUint16(buf, types.OffsetRecordLinkCount, uint16(len(r.names)))
	putUint16(buf, types.OffsetRecordAttrOffset, uint16(attrOffset))
	putUint16(buf, types.OffsetRecordFlags, r.flags)
	putUint32(buf, types.OffsetRecordBytesAllocated, uint32(size))
	putUint64(buf, types.OffsetRecordBaseReference, uint64(r.base))
	putUint32(buf, types.OffsetRecordNumber, uint32(r.segment))

	offset := attrOffset
	attrs := b.attributes(r)
	for id, a := range attrs {
		encoded := encodeAttribute(a, uint16(id))
		if offset+len(encoded)+8 > size {
			panic(fmt.Sprintf("ntfsimage: attributes of record %d overflow %d bytes", r.segment, size))
		}
		copy(buf[offset:], encoded)
		offset += len(encoded)
	}
	putUint32(buf, offset, uint32(types.AttrEnd))
	offset += 8
	putUint32(buf, types.OffsetRecordBytesInUse, uint32(offset))
	putUint16(buf, types.OffsetRecordNextAttributeID, uint16(len(attrs)))

	protect(buf, types.FileRecordHeaderSize, usaCount, uint16(r.segment)+1, r.damaged)
	if r.bad {
		copy(buf, types.BadRecordMagic)
	}
	return buf
}

func encodeAttribute(a *attr, id uint16) []byte {
	name, err := encodeName(a.name)
	if err != nil {
		panic(err)
	}

	if a.nonResident == nil {
		valueOffset := align8(types.ResidentHeaderSize + len(name))
		length := align8(valueOffset + len(a.resident))
		buf := make([]byte, length)
		putAttributeHeader(buf, a, id, length, len(name), types.ResidentHeaderSize, false)
		copy(buf[types.ResidentHeaderSize:], name)
		putUint32(buf, types.OffsetResidentValueLength, uint32(len(a.resident)))
		putUint16(buf, types.OffsetResidentValueOffset, uint16(valueOffset))
		if a.typ == types.AttrFileName {
			buf[0x16] = 1
		}
		copy(buf[valueOffset:], a.resident)
		return buf
	}

	nr := a.nonResident
	headerSize := types.NonResidentHeaderSize
	if a.flags&types.AttrFlagCompressedMask != 0 {
		headerSize += 8
	}
	runOffset := align8(headerSize + len(name))
	mapping := runs.EncodeRunList(nr.runs)
	length := align8(runOffset + len(mapping))
	buf := make([]byte, length)
	putAttributeHeader(buf, a, id, length, len(name), headerSize, true)
	copy(buf[headerSize:], name)
	putUint64(buf, types.OffsetNonResLowestVCN, nr.lowestVCN)
	putUint64(buf, types.OffsetNonResHighestVCN, nr.highestVCN)
	putUint16(buf, types.OffsetNonResRunOffset, uint16(runOffset))
	putUint16(buf, types.OffsetNonResCompUnit, nr.compressionUnit)
	putUint64(buf, types.OffsetNonResAllocatedSize, nr.allocated)
	putUint64(buf, types.OffsetNonResRealSize, nr.real)
	putUint64(buf, types.OffsetNonResInitSize, nr.initialized)
	if headerSize > types.NonResidentHeaderSize {
		putUint64(buf, types.OffsetNonResCompSize, nr.compressed)
	}
	copy(buf[runOffset:], mapping)
	return buf
}

func putAttributeHeader(buf []byte, a *attr, id uint16, length, nameBytes, nameOffset int, nonResident bool) {
	putUint32(buf, types.OffsetAttrType, uint32(a.typ))
	putUint32(buf, types.OffsetAttrLength, uint32(length))
	if nonResident {
		buf[types.OffsetAttrNonResident] = 1
	}
	buf[types.OffsetAttrNameLength] = uint8(nameBytes / 2)
	putUint16(buf, types.OffsetAttrNameOffset, uint16(nameOffset))
	putUint16(buf, types.OffsetAttrFlags, a.flags)
	putUint16(buf, types.OffsetAttrID, id)
}

// protect applies the multi-sector transfer protection: the last two bytes of
// every stride move into the update sequence array and are replaced by usn
func protect(buf []byte, usaOffset, usaCount int, usn uint16, damage bool) {
	putUint16(buf, usaOffset, usn)
	for i := 1; i < usaCount; i++ {
		pos := i*types.FixupStride - 2
		copy(buf[usaOffset+2*i:], buf[pos:pos+2])
		putUint16(buf, pos, usn)
	}
	if damage {
		last := (usaCount-1)*types.FixupStride - 2
		putUint16(buf, last, usn^0xFFFF)
	}
}

func (b *Builder) standardInformation(r *record) []byte {
	buf := make([]byte, 0x48)
	ft := types.TimeToFiletime(r.timestamp)
	for i := 0; i < 4; i++ {
		putUint64(buf, i*8, ft)
	}
	putUint32(buf, 0x20, r.fileAttributes)
	return buf
}

func (b *Builder) fileNameValue(r *record, fn fileName) []byte {
	name := encodeUnits(fn.codeUnits())
	buf := make([]byte, types.FileNameHeaderSize+len(name))
	putUint64(buf, types.OffsetFileNameParent, uint64(fn.parent))
	ft := types.TimeToFiletime(r.timestamp)
	for _, offset := range []int{types.OffsetFileNameCreated, types.OffsetFileNameModified, types.OffsetFileNameMFTChange, types.OffsetFileNameAccessed} {
		putUint64(buf, offset, ft)
	}
	allocated, real := r.sizes()
	putUint64(buf, types.OffsetFileNameAllocSize, allocated)
	putUint64(buf, types.OffsetFileNameRealSize, real)
	flags := r.fileAttributes
	if r.isDir {
		flags |= types.FileAttrDirectory
	}
	putUint32(buf, types.OffsetFileNameFlags, flags)
	buf[types.OffsetFileNameLength] = uint8(len(name) / 2)
	buf[types.OffsetFileNameNamespace] = fn.namespace
	copy(buf[types.FileNameHeaderSize:], name)
	return buf
}

func (b *Builder) encodeAttributeList(entries []listEntry) []byte {
	var out []byte
	for i, entry := range entries {
		name, err := encodeName(entry.name)
		if err != nil {
			panic(err)
		}
		length := align8(0x1A + len(name))
		buf := make([]byte, length)
		putUint32(buf, 0x00, uint32(entry.typ))
		putUint16(buf, 0x04, uint16(length))
		buf[0x06] = uint8(len(name) / 2)
		buf[0x07] = 0x1A
		putUint64(buf, 0x08, entry.lowestVCN)
		putUint64(buf, 0x10, uint64(entry.ref))
		putUint16(buf, 0x18, uint16(i))
		copy(buf[0x1A:], name)
		out = append(out, buf...)
	}
	return out
}

// splitAttributeLists moves the data of records built with WithAttributeList
// into extension records, one per run list fragment
func (b *Builder) splitAttributeLists() {
	for _, segment := range b.sortedSegments() {
		r := b.records[segment]
		if r.listFragments == 0 {
			continue
		}
		data, ok := r.findAttr(types.AttrData, "")
		if !ok {
			continue
		}
		r.dataAllocated, r.dataSize = r.sizes()

		var remaining []*attr
		for _, a := range r.attrs {
			if a != data {
				remaining = append(remaining, a)
			}
		}
		r.attrs = remaining

		entries := []listEntry{{typ: types.AttrStandardInformation, ref: r.reference()}}
		for range r.names {
			entries = append(entries, listEntry{typ: types.AttrFileName, ref: r.reference()})
		}
		for _, fragment := range fragmentAttribute(data, r.listFragments) {
			extension := &record{
				segment:   b.allocateRecord(),
				sequence:  1,
				flags:     types.FileRecordInUse,
				base:      r.reference(),
				timestamp: r.timestamp,
				attrs:     []*attr{fragment},
			}
			b.records[extension.segment] = extension
			var lowest uint64
			if fragment.nonResident != nil {
				lowest = fragment.nonResident.lowestVCN
			}
			entries = append(entries, listEntry{typ: types.AttrData, lowestVCN: lowest, ref: extension.reference()})
		}
		for _, a := range r.attrs {
			entries = append(entries, listEntry{typ: a.typ, name: a.name, ref: r.reference()})
		}
		r.attributeList = entries
	}
}

// fragmentAttribute splits a non-resident attribute into fragments of whole
// runs. Every fragment's run list starts again from LCN 0.
func fragmentAttribute(a *attr, fragments int) []*attr {
	nr := a.nonResident
	if nr == nil || fragments <= 1 || len(nr.runs) < fragments {
		return []*attr{a}
	}
	extents, err := nr.runs.Extents()
	if err != nil {
		panic(err)
	}

	var out []*attr
	per := (len(extents) + fragments - 1) / fragments
	for start := 0; start < len(extents); start += per {
		end := start + per
		if end > len(extents) {
			end = len(extents)
		}
		part := extents[start:end]
		last := part[len(part)-1]
		fragment := &nonResident{
			runs:            runsFromExtents(part),
			lowestVCN:       part[0].VCN,
			highestVCN:      last.VCN + last.ClusterCount - 1,
			compressionUnit: nr.compressionUnit,
		}
		if start == 0 {
			fragment.allocated = nr.allocated
			fragment.real = nr.real
			fragment.initialized = nr.initialized
			fragment.compressed = nr.compressed
		}
		out = append(out, &attr{typ: a.typ, name: a.name, flags: a.flags, nonResident: fragment})
	}
	return out
}

// runsFromExtents encodes absolute extents as delta runs starting from LCN 0
func runsFromExtents(extents []types.Extent) types.DataRunList {
	var list types.DataRunList
	var previous int64
	for _, extent := range extents {
		if extent.Sparse {
			if n := len(list); n > 0 && list[n-1].Sparse {
				list[n-1].ClusterCount += extent.ClusterCount
				continue
			}
			list = append(list, types.DataRun{ClusterCount: extent.ClusterCount, Sparse: true})
			continue
		}
		list = append(list, types.DataRun{ClusterCount: extent.ClusterCount, LCNDelta: int64(extent.LCN) - previous})
		previous = int64(extent.LCN)
	}
	return list
}

func volumeInformation(major, minor uint8, flags uint16) []byte {
	buf := make([]byte, 0x0C)
	buf[0x08] = major
	buf[0x09] = minor
	putUint16(buf, 0x0A, flags)
	return buf
}

func putUint16(buf []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(buf[offset:], v)
}

func putUint32(buf []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(buf[offset:], v)
}

func putUint64(buf []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(buf[offset:], v)
}
