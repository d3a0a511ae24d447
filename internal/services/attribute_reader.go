package services

import (
	"io"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/lznt1"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const (
	componentAttributeReader = "AttributeReader"

	// DefaultReadChunkSize caps a single device read
	DefaultReadChunkSize = 1 << 20
)

// AttributeReader turns attribute values into byte streams. Physical runs are
// read in order, at most one chunk per device read; sparse runs and the region
// past the initialized size are produced as zeros without touching the device.
type AttributeReader struct {
	disk      interfaces.DiskAccessor
	volume    interfaces.VolumeDescriptor
	chunkSize uint64
	log       *zap.SugaredLogger
}

var _ interfaces.AttributeReader = (*AttributeReader)(nil)

// NewAttributeReader creates a reader. A chunk size of zero selects DefaultReadChunkSize.
func NewAttributeReader(disk interfaces.DiskAccessor, volume interfaces.VolumeDescriptor, chunkSize int) *AttributeReader {
	if chunkSize <= 0 {
		chunkSize = DefaultReadChunkSize
	}
	return &AttributeReader{
		disk:      disk,
		volume:    volume,
		chunkSize: uint64(chunkSize),
		log:       logger.Component(componentAttributeReader),
	}
}

// ChunkSize returns the largest single device read
func (r *AttributeReader) ChunkSize() int {
	return int(r.chunkSize)
}

// Open returns a reader over the attribute value
func (r *AttributeReader) Open(attr *types.Attribute) (io.Reader, error) {
	return r.OpenStream(attr)
}

// ReadAll returns the complete attribute value
func (r *AttributeReader) ReadAll(attr *types.Attribute) ([]byte, error) {
	if resident, ok := attr.Resident(); ok {
		return resident.Data, nil
	}
	stream, err := r.OpenStream(attr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, stream.Size())
	buf := make([]byte, r.chunkSize)
	for {
		n, err := stream.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ReadRange reads length bytes at offset of a non-resident, uncompressed
// attribute, ignoring its real size. The range must be mapped by physical runs.
func (r *AttributeReader) ReadRange(attr *types.Attribute, offset uint64, length uint32) ([]byte, error) {
	content, ok := attr.NonResident()
	if !ok {
		data := attr.Content.(*types.ResidentContent).Data
		if offset+uint64(length) > uint64(len(data)) {
			return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader,
				"range [%d, %d) outside resident value of %d bytes", offset, offset+uint64(length), len(data)).
				WithRecord(attr.Record).WithAttribute(attr.Type)
		}
		return append([]byte(nil), data[offset:offset+uint64(length)]...), nil
	}

	extents, err := content.Runs.Extents()
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader, "run list").
			WithRecord(attr.Record).WithAttribute(attr.Type).WithCause(err)
	}

	clusterSize := r.volume.ClusterSize()
	out := make([]byte, length)
	for done := uint64(0); done < uint64(length); {
		position := offset + done
		extent, ok := findExtent(extents, position/clusterSize)
		if !ok || extent.Sparse {
			return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader,
				"offset %d is not mapped to a cluster", position).WithRecord(attr.Record).WithAttribute(attr.Type)
		}
		within := position - extent.VCN*clusterSize
		n := extent.ClusterCount*clusterSize - within
		if remaining := uint64(length) - done; n > remaining {
			n = remaining
		}
		chunk, err := r.disk.ReadBytes(r.volume.ClusterToByteOffset(extent.LCN)+within, uint32(n))
		if err != nil {
			return nil, err
		}
		copy(out[done:], chunk.Bytes())
		done += n
	}
	return out, nil
}

type pieceKind int

const (
	pieceResident pieceKind = iota
	pieceZero
	piecePhysical
	pieceCompressed
)

// piece is a contiguous part of an attribute value with a single source
type piece struct {
	kind   pieceKind
	length uint64
	// sparse is set on zero pieces that come from sparse runs
	sparse bool
	data   []byte
	device uint64
	// sources are the physical extents of a compression unit, in VCN order
	sources []types.Extent
}

// AttributeStream reads an attribute value piece by piece. Each Read stops at a
// piece boundary, so sparse and physical regions never share a chunk.
type AttributeStream struct {
	reader *AttributeReader
	attr   *types.Attribute
	pieces []piece
	size   uint64

	index    int
	position uint64
	unit     []byte

	sparseBytes uint64
	deviceReads uint64
}

// OpenStream plans the pieces of an attribute value
func (r *AttributeReader) OpenStream(attr *types.Attribute) (*AttributeStream, error) {
	stream := &AttributeStream{reader: r, attr: attr, size: attr.Size()}

	if resident, ok := attr.Resident(); ok {
		stream.pieces = []piece{{kind: pieceResident, length: uint64(len(resident.Data)), data: resident.Data}}
		return stream, nil
	}

	content, _ := attr.NonResident()
	var err error
	if attr.IsCompressed() {
		stream.pieces, err = r.planCompressed(attr, content)
	} else {
		stream.pieces, err = r.planRuns(attr, content)
	}
	if err != nil {
		return nil, err
	}

	r.log.Debugw("planned attribute stream",
		"record", attr.Record,
		"attribute", attr.String(),
		"size", stream.size,
		"pieces", len(stream.pieces),
	)
	return stream, nil
}

func (r *AttributeReader) planRuns(attr *types.Attribute, content *types.NonResidentContent) ([]piece, error) {
	clusterSize := r.volume.ClusterSize()
	segments, err := content.Runs.Plan(clusterSize, content.RealSize)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader, "run list").
			WithRecord(attr.Record).WithAttribute(attr.Type).WithCause(err)
	}

	initialized := content.InitializedSize
	if initialized > content.RealSize {
		initialized = content.RealSize
	}

	var pieces []piece
	for _, segment := range segments {
		if segment.Sparse {
			pieces = append(pieces, piece{kind: pieceZero, length: segment.Length, sparse: true})
			continue
		}
		physical := segment.Length
		if segment.Offset >= initialized {
			physical = 0
		} else if segment.Offset+segment.Length > initialized {
			physical = initialized - segment.Offset
		}
		if physical > 0 {
			pieces = append(pieces, piece{
				kind:   piecePhysical,
				length: physical,
				device: r.volume.ClusterToByteOffset(segment.LCN),
			})
		}
		if tail := segment.Length - physical; tail > 0 {
			pieces = append(pieces, piece{kind: pieceZero, length: tail})
		}
	}
	return pieces, nil
}

// planCompressed splits the value into compression units. A unit without
// physical clusters is zeros, a fully allocated unit is stored uncompressed and
// anything in between holds LZNT1 data followed by a sparse tail.
func (r *AttributeReader) planCompressed(attr *types.Attribute, content *types.NonResidentContent) ([]piece, error) {
	if attr.Flags&types.AttrFlagCompressedMask != types.AttrFlagCompressed || content.CompressionUnit == 0 || content.CompressionUnit > 16 {
		return nil, types.NewError(types.ErrUnsupportedAttribute, componentAttributeReader,
			"compression format 0x%X with unit %d", attr.Flags&types.AttrFlagCompressedMask, content.CompressionUnit).
			WithRecord(attr.Record).WithAttribute(attr.Type)
	}

	extents, err := content.Runs.Extents()
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader, "run list").
			WithRecord(attr.Record).WithAttribute(attr.Type).WithCause(err)
	}

	clusterSize := r.volume.ClusterSize()
	unitClusters := uint64(1) << content.CompressionUnit
	unitSize := unitClusters * clusterSize
	if covered := content.Runs.TotalClusters() * clusterSize; covered < content.RealSize {
		return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader,
			"run list covers %d bytes, real size is %d", covered, content.RealSize).
			WithRecord(attr.Record).WithAttribute(attr.Type)
	}

	var pieces []piece
	for start := uint64(0); start < content.RealSize; start += unitSize {
		length := unitSize
		if remaining := content.RealSize - start; length > remaining {
			length = remaining
		}

		firstVCN := start / clusterSize
		sources := unitExtents(extents, firstVCN, unitClusters)
		var physical uint64
		for _, source := range sources {
			physical += source.ClusterCount
		}

		switch {
		case physical == 0:
			pieces = append(pieces, piece{kind: pieceZero, length: length, sparse: true})
		case physical >= unitClusters:
			for _, source := range sources {
				n := source.ClusterCount * clusterSize
				if n > length {
					n = length
				}
				if n == 0 {
					break
				}
				pieces = append(pieces, piece{kind: piecePhysical, length: n, device: r.volume.ClusterToByteOffset(source.LCN)})
				length -= n
			}
		default:
			pieces = append(pieces, piece{kind: pieceCompressed, length: length, sources: sources})
		}
	}
	return pieces, nil
}

// unitExtents returns the physical extents inside [firstVCN, firstVCN+count)
func unitExtents(extents []types.Extent, firstVCN, count uint64) []types.Extent {
	var out []types.Extent
	lastVCN := firstVCN + count
	for _, extent := range extents {
		if extent.Sparse {
			continue
		}
		start, end := extent.VCN, extent.VCN+extent.ClusterCount
		if end <= firstVCN || start >= lastVCN {
			continue
		}
		if start < firstVCN {
			start = firstVCN
		}
		if end > lastVCN {
			end = lastVCN
		}
		out = append(out, types.Extent{
			VCN:          start,
			LCN:          extent.LCN + (start - extent.VCN),
			ClusterCount: end - start,
		})
	}
	return out
}

// Read implements io.Reader
func (s *AttributeStream) Read(p []byte) (int, error) {
	for s.index < len(s.pieces) {
		current := &s.pieces[s.index]
		if s.position >= current.length {
			s.index++
			s.position = 0
			s.unit = nil
			continue
		}
		if len(p) == 0 {
			return 0, nil
		}

		n := current.length - s.position
		if uint64(len(p)) < n {
			n = uint64(len(p))
		}

		switch current.kind {
		case pieceResident:
			copy(p, current.data[s.position:s.position+n])
		case pieceZero:
			clear(p[:n])
			if current.sparse {
				s.sparseBytes += n
			}
		case piecePhysical:
			if n > s.reader.chunkSize {
				n = s.reader.chunkSize
			}
			buf, err := s.reader.disk.ReadBytes(current.device+s.position, uint32(n))
			if err != nil {
				return 0, err
			}
			s.deviceReads++
			copy(p, buf.Bytes())
		case pieceCompressed:
			if s.unit == nil {
				unit, err := s.decompress(current)
				if err != nil {
					return 0, err
				}
				s.unit = unit
			}
			copy(p, s.unit[s.position:s.position+n])
		}

		s.position += n
		return int(n), nil
	}
	return 0, io.EOF
}

func (s *AttributeStream) decompress(unit *piece) ([]byte, error) {
	clusterSize := s.reader.volume.ClusterSize()
	var compressed []byte
	for _, source := range unit.sources {
		buf, err := s.reader.disk.ReadBytes(s.reader.volume.ClusterToByteOffset(source.LCN), uint32(source.ClusterCount*clusterSize))
		if err != nil {
			return nil, err
		}
		s.deviceReads++
		compressed = append(compressed, buf.Bytes()...)
	}

	out, err := lznt1.Decompress(compressed, int(unit.length))
	if err != nil {
		return nil, types.NewError(types.ErrMalformedRecord, componentAttributeReader,
			"compression unit at VCN %d", unit.sources[0].VCN).
			WithRecord(s.attr.Record).WithAttribute(s.attr.Type).WithCause(err)
	}
	if uint64(len(out)) < unit.length {
		out = append(out, make([]byte, unit.length-uint64(len(out)))...)
	}
	return out, nil
}

// Size returns the number of bytes the stream produces
func (s *AttributeStream) Size() uint64 {
	return s.size
}

// SparseBytes returns the zero bytes produced so far for sparse regions
func (s *AttributeStream) SparseBytes() uint64 {
	return s.sparseBytes
}

// DeviceReads returns the device reads issued so far
func (s *AttributeStream) DeviceReads() uint64 {
	return s.deviceReads
}
