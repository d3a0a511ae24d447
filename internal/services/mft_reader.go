package services

import (
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentMftReader = "MftReader"

// MftReader maps MFT record numbers to volume offsets through the run list of
// the $MFT data attribute
type MftReader struct {
	disk       interfaces.DiskAccessor
	volume     interfaces.VolumeDescriptor
	recordSize uint32
	extents    []types.Extent
	size       uint64
	log        *zap.SugaredLogger
}

var _ interfaces.MftReader = (*MftReader)(nil)

// NewMftReader bootstraps the MFT. Record 0 is read from the fixed MFT cluster
// and parsed before any record can be looked up by number; when $MFT carries an
// attribute list, each extension record is fetched through the part of the run
// list known so far.
func NewMftReader(disk interfaces.DiskAccessor, volume interfaces.VolumeDescriptor, reader *AttributeReader) (*MftReader, error) {
	info := volume.Info()
	m := &MftReader{
		disk:       disk,
		volume:     volume,
		recordSize: info.BytesPerFileRecordSegment,
		log:        logger.Component(componentMftReader),
	}

	offset := volume.ClusterToByteOffset(info.MftStartCluster)
	raw, err := disk.ReadBytes(offset, m.recordSize)
	if err != nil {
		return nil, err
	}
	base, err := records.ParseFileRecord(raw, types.MftRecordMFT)
	if err != nil {
		return nil, err
	}
	if !base.InUse() {
		return nil, types.NewError(types.ErrRecordNotInUse, componentMftReader, "$MFT record is not in use").
			WithRecord(types.MftRecordMFT)
	}

	fragments := dataFragments(base.Attributes)
	if err := m.useFragments(fragments); err != nil {
		return nil, err
	}

	if listAttr, ok := base.FindAttribute(types.AttrAttributeList, ""); ok {
		list, err := reader.ReadAll(listAttr)
		if err != nil {
			return nil, err
		}
		entries, err := records.ParseAttributeList(list)
		if err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, componentMftReader, "$MFT attribute list").
				WithRecord(types.MftRecordMFT).WithCause(err)
		}

		for _, entry := range entries {
			segment := entry.Reference.SegmentNumber()
			if entry.Type != types.AttrData || entry.Name != "" || segment == types.MftRecordMFT {
				continue
			}
			// the extension must lie in the part of the MFT mapped so far
			raw, err := m.ReadRecord(segment)
			if err != nil {
				return nil, err
			}
			extension, err := records.ParseFileRecord(raw, segment)
			if err != nil {
				return nil, err
			}
			if extension.Header.BaseReference.SegmentNumber() != types.MftRecordMFT {
				return nil, types.NewError(types.ErrMalformedRecord, componentMftReader,
					"extension record belongs to %s", extension.Header.BaseReference).WithRecord(segment)
			}
			fragments = append(fragments, dataFragments(extension.Attributes)...)
			if err := m.useFragments(fragments); err != nil {
				return nil, err
			}
			m.log.Debugw("merged $MFT extension record", "record", segment, "fragments", len(fragments))
		}
	}

	m.log.Debugw("MFT bootstrapped",
		"lcn", info.MftStartCluster,
		"record_size", m.recordSize,
		"records", m.RecordCount(),
		"extents", len(m.extents),
	)
	return m, nil
}

// dataFragments returns the unnamed non-resident $DATA attributes
func dataFragments(attrs []*types.Attribute) []*types.Attribute {
	var fragments []*types.Attribute
	for _, attr := range attrs {
		if attr.Type == types.AttrData && attr.Name == "" && !attr.IsResident() {
			fragments = append(fragments, attr)
		}
	}
	return fragments
}

// useFragments rebuilds the record mapping from the fragments collected so far.
// Only the fragments contiguous from VCN 0 are mapped.
func (m *MftReader) useFragments(fragments []*types.Attribute) error {
	if len(fragments) == 0 {
		return types.NewError(types.ErrMalformedRecord, componentMftReader, "$MFT has no non-resident $DATA attribute").
			WithRecord(types.MftRecordMFT).WithAttribute(types.AttrData)
	}

	attrs, err := mergeFragments(fragments, types.MftRecordMFT)
	if err != nil {
		return err
	}
	var data *types.NonResidentContent
	for _, attr := range attrs {
		if content, ok := attr.NonResident(); ok && content.LowestVCN == 0 {
			data = content
		}
	}
	if data == nil {
		return types.NewError(types.ErrMalformedRecord, componentMftReader, "$MFT data does not start at VCN 0").
			WithRecord(types.MftRecordMFT).WithAttribute(types.AttrData)
	}

	extents, err := data.Runs.Extents()
	if err != nil {
		return types.NewError(types.ErrMalformedRecord, componentMftReader, "$MFT run list").
			WithRecord(types.MftRecordMFT).WithAttribute(types.AttrData).WithCause(err)
	}
	m.extents = extents
	m.size = data.RealSize
	return nil
}

// ReadRecord returns the raw bytes of a record. A record may straddle two runs,
// in which case it is assembled from both.
func (m *MftReader) ReadRecord(segment uint64) (*types.ByteBuffer, error) {
	if segment >= m.RecordCount() {
		return nil, types.NewError(types.ErrRecordOutOfRange, componentMftReader,
			"MFT holds %d records", m.RecordCount()).WithRecord(segment)
	}

	clusterSize := m.volume.ClusterSize()
	out := types.NewByteBufferSize(int(m.recordSize))
	data := out.Bytes()

	position := segment * uint64(m.recordSize)
	for done := uint64(0); done < uint64(m.recordSize); {
		vcn := (position + done) / clusterSize
		extent, ok := findExtent(m.extents, vcn)
		if !ok || extent.Sparse {
			return nil, types.NewError(types.ErrRecordOutOfRange, componentMftReader,
				"VCN %d of $MFT is not mapped", vcn).WithRecord(segment)
		}

		within := position + done - extent.VCN*clusterSize
		available := extent.ClusterCount*clusterSize - within
		length := uint64(m.recordSize) - done
		if length > available {
			length = available
		}

		chunk, err := m.disk.ReadBytes(m.volume.ClusterToByteOffset(extent.LCN)+within, uint32(length))
		if err != nil {
			return nil, err
		}
		copy(data[done:], chunk.Bytes())
		done += length
	}
	return out, nil
}

// RecordSize returns the size of one record
func (m *MftReader) RecordSize() uint32 {
	return m.recordSize
}

// RecordCount returns the number of records covered by the $MFT real size
func (m *MftReader) RecordCount() uint64 {
	if m.recordSize == 0 {
		return 0
	}
	return m.size / uint64(m.recordSize)
}

// Extents returns the resolved $MFT extents
func (m *MftReader) Extents() []types.Extent {
	return m.extents
}

// findExtent returns the extent containing vcn
func findExtent(extents []types.Extent, vcn uint64) (types.Extent, bool) {
	for _, extent := range extents {
		if vcn >= extent.VCN && vcn < extent.VCN+extent.ClusterCount {
			return extent, true
		}
	}
	return types.Extent{}, false
}
