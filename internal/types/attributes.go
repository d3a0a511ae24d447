package types

import (
	"fmt"
	"strings"
)

// AttributeContent is either ResidentContent or NonResidentContent
type AttributeContent interface {
	// Size returns the logical size of the attribute value in bytes
	Size() uint64

	isAttributeContent()
}

// ResidentContent is an attribute value stored inline in its file record
type ResidentContent struct {
	Data    []byte
	Indexed bool
}

// Size returns the inline value length
func (c *ResidentContent) Size() uint64 { return uint64(len(c.Data)) }

func (*ResidentContent) isAttributeContent() {}

// NonResidentContent is an attribute value stored in clusters addressed by a run list
type NonResidentContent struct {
	LowestVCN       uint64
	HighestVCN      uint64
	AllocatedSize   uint64
	RealSize        uint64
	InitializedSize uint64
	CompressedSize  uint64
	// log2 of the clusters per compression unit, 0 when uncompressed
	CompressionUnit uint16
	Runs            DataRunList
}

// Size returns the real size of the attribute value
func (c *NonResidentContent) Size() uint64 { return c.RealSize }

func (*NonResidentContent) isAttributeContent() {}

// Attribute is one typed attribute of a file record
type Attribute struct {
	Type  AttributeType
	Name  string
	Flags uint16
	ID    uint16
	// Record is the MFT segment the attribute header was read from
	Record  uint64
	Content AttributeContent
}

// IsResident reports whether the value is stored inline
func (a *Attribute) IsResident() bool {
	_, ok := a.Content.(*ResidentContent)
	return ok
}

// Resident returns the inline content
func (a *Attribute) Resident() (*ResidentContent, bool) {
	c, ok := a.Content.(*ResidentContent)
	return c, ok
}

// NonResident returns the run-list content
func (a *Attribute) NonResident() (*NonResidentContent, bool) {
	c, ok := a.Content.(*NonResidentContent)
	return c, ok
}

// Size returns the logical value size
func (a *Attribute) Size() uint64 {
	if a.Content == nil {
		return 0
	}
	return a.Content.Size()
}

// IsCompressed reports whether the value is LZNT1 compressed
func (a *Attribute) IsCompressed() bool {
	return a.Flags&AttrFlagCompressedMask != 0
}

// IsEncrypted reports whether the value is EFS encrypted
func (a *Attribute) IsEncrypted() bool {
	return a.Flags&AttrFlagEncrypted != 0
}

// IsSparse reports whether the value is marked sparse
func (a *Attribute) IsSparse() bool {
	return a.Flags&AttrFlagSparse != 0
}

// Matches reports whether the attribute has the given type and name.
// Attribute names compare case-insensitively.
func (a *Attribute) Matches(attrType AttributeType, name string) bool {
	return a.Type == attrType && strings.EqualFold(a.Name, name)
}

// String describes the attribute for diagnostics
func (a *Attribute) String() string {
	if a.Name == "" {
		return a.Type.String()
	}
	return fmt.Sprintf("%s:%s", a.Type, a.Name)
}

// DataRun is one mapping pair of a non-resident attribute. LCNDelta is relative
// to the starting LCN of the previous physical run; the first run is relative to LCN 0.
type DataRun struct {
	ClusterCount uint64
	LCNDelta     int64
	Sparse       bool
}

// DataRunList is the ordered run list of a non-resident attribute
type DataRunList []DataRun

// Extent is a run resolved to an absolute cluster address
type Extent struct {
	VCN          uint64
	LCN          uint64
	ClusterCount uint64
	Sparse       bool
}

// Segment is the part of an extent that is delivered to a sink
type Segment struct {
	Extent
	// Offset is the logical byte offset inside the attribute value
	Offset uint64
	// Length is the number of bytes delivered from this extent
	Length uint64
}

// TotalClusters returns the sum of all run lengths
func (l DataRunList) TotalClusters() uint64 {
	var total uint64
	for _, run := range l {
		total += run.ClusterCount
	}
	return total
}

// Extents resolves the signed deltas into absolute LCNs
func (l DataRunList) Extents() ([]Extent, error) {
	extents := make([]Extent, 0, len(l))
	var lcn int64
	var vcn uint64
	for i, run := range l {
		extent := Extent{VCN: vcn, ClusterCount: run.ClusterCount, Sparse: run.Sparse}
		if !run.Sparse {
			lcn += run.LCNDelta
			if lcn < 0 {
				return nil, fmt.Errorf("run %d resolves to negative LCN %d", i, lcn)
			}
			extent.LCN = uint64(lcn)
		}
		extents = append(extents, extent)
		vcn += run.ClusterCount
	}
	return extents, nil
}

// Plan lays the extents out over the attribute value and truncates the final
// segment at realSize. It fails when the runs cover fewer than realSize bytes.
func (l DataRunList) Plan(clusterSize, realSize uint64) ([]Segment, error) {
	if clusterSize == 0 {
		return nil, fmt.Errorf("cluster size is zero")
	}
	extents, err := l.Extents()
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(extents))
	var offset uint64
	for _, extent := range extents {
		if offset >= realSize {
			break
		}
		length := extent.ClusterCount * clusterSize
		if remaining := realSize - offset; length > remaining {
			length = remaining
		}
		segments = append(segments, Segment{Extent: extent, Offset: offset, Length: length})
		offset += length
	}
	if offset < realSize {
		return nil, fmt.Errorf("run list covers %d bytes, real size is %d", offset, realSize)
	}
	return segments, nil
}

// MergeRunLists joins the run lists of attribute fragments that are ordered by
// lowest VCN. Each fragment's deltas start from LCN 0, so the first physical run
// of every later fragment is rebased onto the previous fragment's last LCN.
func MergeRunLists(fragments ...DataRunList) (DataRunList, error) {
	var merged DataRunList
	var previous int64
	for _, fragment := range fragments {
		extents, err := fragment.Extents()
		if err != nil {
			return nil, err
		}
		for _, extent := range extents {
			if extent.Sparse {
				merged = append(merged, DataRun{ClusterCount: extent.ClusterCount, Sparse: true})
				continue
			}
			merged = append(merged, DataRun{ClusterCount: extent.ClusterCount, LCNDelta: int64(extent.LCN) - previous})
			previous = int64(extent.LCN)
		}
	}
	return merged, nil
}
