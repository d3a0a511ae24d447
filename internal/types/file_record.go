package types

import "time"

// FileRecordHeader is the fixed header of an MFT record.
// Reference: FILE_RECORD_SEGMENT_HEADER
type FileRecordHeader struct {
	Signature       string
	USAOffset       uint16
	USACount        uint16
	LSN             uint64
	Sequence        uint16
	LinkCount       uint16
	AttributeOffset uint16
	Flags           uint16
	BytesInUse      uint32
	BytesAllocated  uint32
	BaseReference   FileReference
	NextAttributeID uint16
	RecordNumber    uint32
}

// FileRecord is a parsed MFT record with the attributes of all its extension
// records merged in. Records are parsed on demand and not cached.
type FileRecord struct {
	Reference  FileReference
	Header     FileRecordHeader
	Attributes []*Attribute
	// Extensions lists the segment numbers merged in through $ATTRIBUTE_LIST
	Extensions []uint64
}

// InUse reports whether the in-use flag is set
func (r *FileRecord) InUse() bool {
	return r.Header.Flags&FileRecordInUse != 0
}

// IsDirectory reports whether the record carries a file name index
func (r *FileRecord) IsDirectory() bool {
	return r.Header.Flags&FileRecordIsDirectory != 0
}

// IsBaseRecord reports whether the record is a base record rather than an extension
func (r *FileRecord) IsBaseRecord() bool {
	return r.Header.BaseReference.SegmentNumber() == 0
}

// SegmentNumber returns the record number
func (r *FileRecord) SegmentNumber() uint64 {
	return r.Reference.SegmentNumber()
}

// FindAttribute returns the first attribute with the given type and name
func (r *FileRecord) FindAttribute(attrType AttributeType, name string) (*Attribute, bool) {
	for _, attr := range r.Attributes {
		if attr.Matches(attrType, name) {
			return attr, true
		}
	}
	return nil, false
}

// AttributesOfType returns every attribute with the given type
func (r *FileRecord) AttributesOfType(attrType AttributeType) []*Attribute {
	var attrs []*Attribute
	for _, attr := range r.Attributes {
		if attr.Type == attrType {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// AttributeListEntry is one entry of an $ATTRIBUTE_LIST value
type AttributeListEntry struct {
	Type         AttributeType
	RecordLength uint16
	Name         string
	LowestVCN    uint64
	Reference    FileReference
	AttributeID  uint16
}

// StandardInformation is the decoded $STANDARD_INFORMATION value
type StandardInformation struct {
	Created        time.Time
	Modified       time.Time
	MFTChanged     time.Time
	Accessed       time.Time
	FileAttributes uint32
}

// FileNameAttribute is the decoded $FILE_NAME value, also used as the key of
// directory index entries
type FileNameAttribute struct {
	Parent        FileReference
	Created       time.Time
	Modified      time.Time
	MFTChanged    time.Time
	Accessed      time.Time
	AllocatedSize uint64
	RealSize      uint64
	Flags         uint32
	ReparseTag    uint32
	Namespace     uint8
	Name          string
	// NameUnits holds Name as stored on disk, including unpaired surrogates
	NameUnits []uint16
}

// IsDirectory reports whether the name belongs to a directory
func (f *FileNameAttribute) IsDirectory() bool {
	return f.Flags&FileAttrDirectory != 0
}

// IsDOSOnly reports whether the name is a short 8.3 alias
func (f *FileNameAttribute) IsDOSOnly() bool {
	return f.Namespace == NamespaceDOS
}

// VolumeInformation is the decoded $VOLUME_INFORMATION value
type VolumeInformation struct {
	MajorVersion uint8
	MinorVersion uint8
	Flags        uint16
}

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01 and 1970-01-01
const filetimeEpochDelta = 116444736000000000

// FiletimeToTime converts a Windows FILETIME to time.Time
func FiletimeToTime(filetime uint64) time.Time {
	if filetime == 0 {
		return time.Time{}
	}
	ticks := int64(filetime) - filetimeEpochDelta
	return time.Unix(ticks/10000000, (ticks%10000000)*100).UTC()
}

// TimeToFiletime converts a time.Time to a Windows FILETIME
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeEpochDelta)
}
