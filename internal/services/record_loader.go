package services

import (
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentRecordLoader = "FileRecordParser"

// RecordLoader parses MFT records and follows $ATTRIBUTE_LIST into extension
// records, so callers always see the complete attribute set of a file
type RecordLoader struct {
	mft    interfaces.MftReader
	reader interfaces.AttributeReader
	log    *zap.SugaredLogger
}

var _ interfaces.FileRecordLoader = (*RecordLoader)(nil)

// NewRecordLoader creates a loader reading records through mft. The attribute
// reader is used for non-resident attribute lists.
func NewRecordLoader(mft interfaces.MftReader, reader interfaces.AttributeReader) *RecordLoader {
	return &RecordLoader{
		mft:    mft,
		reader: reader,
		log:    logger.Component(componentRecordLoader),
	}
}

// LoadRecord loads an in-use record by number
func (l *RecordLoader) LoadRecord(segment uint64) (*types.FileRecord, error) {
	record, err := l.parse(segment)
	if err != nil {
		return nil, err
	}
	return l.complete(record)
}

// LoadReference loads the record a reference points to. A sequence number
// that differs from the record header means the slot was reused.
func (l *RecordLoader) LoadReference(ref types.FileReference) (*types.FileRecord, error) {
	record, err := l.parse(ref.SegmentNumber())
	if err != nil {
		return nil, err
	}
	if record.Header.Sequence != ref.SequenceNumber() {
		return nil, types.NewError(types.ErrStaleReference, componentRecordLoader,
			"reference %s, record has sequence %d", ref, record.Header.Sequence).WithRecord(ref.SegmentNumber())
	}
	return l.complete(record)
}

// LoadRaw parses a record without checking the in-use flag or following its
// attribute list
func (l *RecordLoader) LoadRaw(segment uint64) (*types.FileRecord, error) {
	return l.parse(segment)
}

func (l *RecordLoader) parse(segment uint64) (*types.FileRecord, error) {
	raw, err := l.mft.ReadRecord(segment)
	if err != nil {
		return nil, err
	}
	return records.ParseFileRecord(raw, segment)
}

func (l *RecordLoader) complete(record *types.FileRecord) (*types.FileRecord, error) {
	if !record.InUse() {
		return nil, types.NewError(types.ErrRecordNotInUse, componentRecordLoader, "in-use flag clear").
			WithRecord(record.SegmentNumber())
	}
	if err := l.followAttributeList(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (l *RecordLoader) followAttributeList(record *types.FileRecord) error {
	listAttr, ok := record.FindAttribute(types.AttrAttributeList, "")
	if !ok {
		return nil
	}
	segment := record.SegmentNumber()

	data, err := l.reader.ReadAll(listAttr)
	if err != nil {
		return err
	}
	entries, err := records.ParseAttributeList(data)
	if err != nil {
		return types.NewError(types.ErrMalformedRecord, componentRecordLoader, "attribute list").
			WithRecord(segment).WithAttribute(types.AttrAttributeList).WithCause(err)
	}

	seen := map[uint64]bool{segment: true}
	for _, entry := range entries {
		extensionSegment := entry.Reference.SegmentNumber()
		if seen[extensionSegment] {
			continue
		}
		seen[extensionSegment] = true

		extension, err := l.parse(extensionSegment)
		if err != nil {
			return err
		}
		if !extension.InUse() {
			return types.NewError(types.ErrMalformedRecord, componentRecordLoader,
				"extension record %d is not in use", extensionSegment).WithRecord(segment)
		}
		if extension.Header.Sequence != entry.Reference.SequenceNumber() {
			return types.NewError(types.ErrStaleReference, componentRecordLoader,
				"attribute list points to %s, record has sequence %d", entry.Reference, extension.Header.Sequence).
				WithRecord(segment)
		}
		if extension.Header.BaseReference.SegmentNumber() != segment {
			return types.NewError(types.ErrMalformedRecord, componentRecordLoader,
				"extension record %d belongs to %s", extensionSegment, extension.Header.BaseReference).WithRecord(segment)
		}

		record.Attributes = append(record.Attributes, extension.Attributes...)
		record.Extensions = append(record.Extensions, extensionSegment)
	}

	merged, err := mergeFragments(record.Attributes, segment)
	if err != nil {
		return err
	}
	record.Attributes = merged

	l.log.Debugw("followed attribute list", "record", segment, "extensions", record.Extensions)
	return nil
}
