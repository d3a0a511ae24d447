// Package types implements the on-disk data structures of the NTFS file system
// together with the in-memory model the extraction engine works on.
package types

import (
	"strconv"
	"strings"
)

// Boot sector layout
const (
	// BootSectorSize is the size of the region read to parse the boot sector
	BootSectorSize = 512

	// NTFSOEMID is the OEM identifier stored at offset 0x03 of every NTFS boot sector
	NTFSOEMID = "NTFS    "

	// BootSignature is the trailing 0x55AA marker at offset 0x1FE
	BootSignature uint16 = 0xAA55
)

// Multi-sector transfer protection
const (
	// FixupStride is the distance between update sequence entries. NTFS always
	// protects 512-byte strides independent of the physical sector size.
	FixupStride = 512

	// FileRecordMagic is the signature of an in-use or free MFT record
	FileRecordMagic = "FILE"

	// BadRecordMagic marks a record that chkdsk found to be damaged
	BadRecordMagic = "BAAD"

	// IndexBlockMagic is the signature of an $INDEX_ALLOCATION block
	IndexBlockMagic = "INDX"
)

// File record header flags
const (
	// FileRecordInUse is set when the record describes a live file
	FileRecordInUse uint16 = 0x0001

	// FileRecordIsDirectory is set when the record has a file name index
	FileRecordIsDirectory uint16 = 0x0002

	// FileRecordIsExtension is set for $Extend metadata records
	FileRecordIsExtension uint16 = 0x0004

	// FileRecordHasViewIndex is set for records carrying a non-filename index
	FileRecordHasViewIndex uint16 = 0x0008
)

// File record header field offsets
const (
	FileRecordHeaderSize        = 0x30
	OffsetRecordUSAOffset       = 0x04
	OffsetRecordUSACount        = 0x06
	OffsetRecordLSN             = 0x08
	OffsetRecordSequence        = 0x10
	OffsetRecordLinkCount       = 0x12
	OffsetRecordAttrOffset      = 0x14
	OffsetRecordFlags           = 0x16
	OffsetRecordBytesInUse      = 0x18
	OffsetRecordBytesAllocated  = 0x1C
	OffsetRecordBaseReference   = 0x20
	OffsetRecordNextAttributeID = 0x28
	OffsetRecordNumber          = 0x2C
)

// Well-known MFT record numbers
const (
	MftRecordMFT        uint64 = 0
	MftRecordMFTMirr    uint64 = 1
	MftRecordLogFile    uint64 = 2
	MftRecordVolume     uint64 = 3
	MftRecordAttrDef    uint64 = 4
	MftRecordRoot       uint64 = 5
	MftRecordBitmap     uint64 = 6
	MftRecordBoot       uint64 = 7
	MftRecordBadClus    uint64 = 8
	MftRecordSecure     uint64 = 9
	MftRecordUpCase     uint64 = 10
	MftRecordExtend     uint64 = 11
	MftFirstUserRecord  uint64 = 16
	MftRecordNumberMask uint64 = 0x0000FFFFFFFFFFFF
)

// AttributeType is the 32-bit type code of an NTFS attribute
type AttributeType uint32

// Attribute type codes
const (
	AttrStandardInformation AttributeType = 0x10
	AttrAttributeList       AttributeType = 0x20
	AttrFileName            AttributeType = 0x30
	AttrObjectID            AttributeType = 0x40
	AttrSecurityDescriptor  AttributeType = 0x50
	AttrVolumeName          AttributeType = 0x60
	AttrVolumeInformation   AttributeType = 0x70
	AttrData                AttributeType = 0x80
	AttrIndexRoot           AttributeType = 0x90
	AttrIndexAllocation     AttributeType = 0xA0
	AttrBitmap              AttributeType = 0xB0
	AttrReparsePoint        AttributeType = 0xC0
	AttrEAInformation       AttributeType = 0xD0
	AttrEA                  AttributeType = 0xE0
	AttrPropertySet         AttributeType = 0xF0
	AttrLoggedUtilityStream AttributeType = 0x100

	// AttrEnd terminates the attribute stream of a file record
	AttrEnd AttributeType = 0xFFFFFFFF
)

var attributeTypeNames = map[AttributeType]string{
	AttrStandardInformation: "$STANDARD_INFORMATION",
	AttrAttributeList:       "$ATTRIBUTE_LIST",
	AttrFileName:            "$FILE_NAME",
	AttrObjectID:            "$OBJECT_ID",
	AttrSecurityDescriptor:  "$SECURITY_DESCRIPTOR",
	AttrVolumeName:          "$VOLUME_NAME",
	AttrVolumeInformation:   "$VOLUME_INFORMATION",
	AttrData:                "$DATA",
	AttrIndexRoot:           "$INDEX_ROOT",
	AttrIndexAllocation:     "$INDEX_ALLOCATION",
	AttrBitmap:              "$BITMAP",
	AttrReparsePoint:        "$REPARSE_POINT",
	AttrEAInformation:       "$EA_INFORMATION",
	AttrEA:                  "$EA",
	AttrPropertySet:         "$PROPERTY_SET",
	AttrLoggedUtilityStream: "$LOGGED_UTILITY_STREAM",
}

// String returns the canonical $NAME of the attribute type
func (t AttributeType) String() string {
	if name, ok := attributeTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseAttributeType maps a canonical name ("$DATA", "DATA", "data") or a numeric
// code ("0x80", "128") to an attribute type.
func ParseAttributeType(name string) (AttributeType, bool) {
	for code, canonical := range attributeTypeNames {
		if strings.EqualFold(name, canonical) || strings.EqualFold("$"+name, canonical) {
			return code, true
		}
	}
	if value, err := strconv.ParseUint(name, 0, 32); err == nil {
		return AttributeType(value), true
	}
	return 0, false
}

// Attribute header flags
const (
	AttrFlagCompressed     uint16 = 0x0001
	AttrFlagCompressedMask uint16 = 0x00FF
	AttrFlagEncrypted      uint16 = 0x4000
	AttrFlagSparse         uint16 = 0x8000
)

// Attribute header field offsets
const (
	AttrHeaderSize            = 0x10
	OffsetAttrType            = 0x00
	OffsetAttrLength          = 0x04
	OffsetAttrNonResident     = 0x08
	OffsetAttrNameLength      = 0x09
	OffsetAttrNameOffset      = 0x0A
	OffsetAttrFlags           = 0x0C
	OffsetAttrID              = 0x0E
	OffsetResidentValueLength = 0x10
	OffsetResidentValueOffset = 0x14
	ResidentHeaderSize        = 0x18
	OffsetNonResLowestVCN     = 0x10
	OffsetNonResHighestVCN    = 0x18
	OffsetNonResRunOffset     = 0x20
	OffsetNonResCompUnit      = 0x22
	OffsetNonResAllocatedSize = 0x28
	OffsetNonResRealSize      = 0x30
	OffsetNonResInitSize      = 0x38
	OffsetNonResCompSize      = 0x40
	NonResidentHeaderSize     = 0x40
)

// FILE_NAME namespaces
const (
	NamespacePOSIX       uint8 = 0
	NamespaceWin32       uint8 = 1
	NamespaceDOS         uint8 = 2
	NamespaceWin32AndDOS uint8 = 3
)

// FILE_NAME attribute layout
const (
	FileNameHeaderSize      = 0x42
	OffsetFileNameParent    = 0x00
	OffsetFileNameCreated   = 0x08
	OffsetFileNameModified  = 0x10
	OffsetFileNameMFTChange = 0x18
	OffsetFileNameAccessed  = 0x20
	OffsetFileNameAllocSize = 0x28
	OffsetFileNameRealSize  = 0x30
	OffsetFileNameFlags     = 0x38
	OffsetFileNameReparse   = 0x3C
	OffsetFileNameLength    = 0x40
	OffsetFileNameNamespace = 0x41
)

// File attribute flags shared by $STANDARD_INFORMATION and $FILE_NAME
const (
	FileAttrReadOnly     uint32 = 0x00000001
	FileAttrHidden       uint32 = 0x00000002
	FileAttrSystem       uint32 = 0x00000004
	FileAttrArchive      uint32 = 0x00000020
	FileAttrSparse       uint32 = 0x00000200
	FileAttrReparsePoint uint32 = 0x00000400
	FileAttrCompressed   uint32 = 0x00000800
	FileAttrEncrypted    uint32 = 0x00004000
	FileAttrDirectory    uint32 = 0x10000000
)

// Index structures
const (
	// IndexNodeHeaderSize is the size of the node header inside $INDEX_ROOT and INDX blocks
	IndexNodeHeaderSize = 0x10

	// IndexRootHeaderSize precedes the node header inside $INDEX_ROOT
	IndexRootHeaderSize = 0x10

	// IndexBlockHeaderSize precedes the node header inside an INDX block
	IndexBlockHeaderSize = 0x18

	// IndexEntryHeaderSize is the fixed part of every index entry
	IndexEntryHeaderSize = 0x10

	// IndexNodeHasChildren marks a node whose entries may point to subnodes
	IndexNodeHasChildren uint8 = 0x01

	// IndexEntryHasSubnode marks an entry carrying a child VCN in its last 8 bytes
	IndexEntryHasSubnode uint16 = 0x0001

	// IndexEntryLast marks the terminating entry of a node
	IndexEntryLast uint16 = 0x0002

	// CollationFileName is the collation rule of $I30 directory indexes
	CollationFileName uint32 = 0x01

	// IndexVCNBlockSize is the VCN unit when index blocks are smaller than a cluster
	IndexVCNBlockSize = 512

	// DirectoryIndexName is the name of the file name index of a directory
	DirectoryIndexName = "$I30"
)

// Compression
const (
	// DefaultCompressionUnit is the log2 cluster count of a compression unit
	DefaultCompressionUnit = 4

	// LZNT1ChunkSize is the uncompressed size of one LZNT1 chunk
	LZNT1ChunkSize = 4096
)
