package services

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentExtraction = "ExtractionProcessor"

// ExtractionOptions tunes an ExtractionProcessor
type ExtractionOptions struct {
	// AllowEncrypted emits the raw ciphertext of EFS encrypted attributes
	AllowEncrypted bool
}

// ExtractionProcessor drives a single target through
// Resolving, Located, Extracting and Done. Any failure moves it to Failed.
type ExtractionProcessor struct {
	loader   *RecordLoader
	resolver *PathResolver
	reader   *AttributeReader
	options  ExtractionOptions
	state    types.ExtractionState
	log      *zap.SugaredLogger
}

var _ interfaces.ExtractionProcessor = (*ExtractionProcessor)(nil)

// NewExtractionProcessor creates a processor in the Resolving state
func NewExtractionProcessor(loader *RecordLoader, resolver *PathResolver, reader *AttributeReader, options ExtractionOptions) *ExtractionProcessor {
	return &ExtractionProcessor{
		loader:   loader,
		resolver: resolver,
		reader:   reader,
		options:  options,
		state:    types.StateResolving,
		log:      logger.Component(componentExtraction),
	}
}

// State returns the current state
func (p *ExtractionProcessor) State() types.ExtractionState {
	return p.state
}

func (p *ExtractionProcessor) transition(next types.ExtractionState) {
	p.log.Debugw("state transition", "from", p.state.String(), "to", next.String())
	p.state = next
}

// Extract streams the selected attribute of target to w. Bytes already
// written before a failure are not a partial success; the caller's sink must
// discard them.
func (p *ExtractionProcessor) Extract(ctx context.Context, target types.ExtractionTarget, w interfaces.DataWriter) (*types.ExtractionResult, error) {
	p.state = types.StateResolving
	result, err := p.extract(ctx, target, w)
	if err != nil {
		p.transition(types.StateFailed)
		p.log.Debugw("extraction failed", "target", target.String(), "error", err)
		return nil, err
	}
	p.transition(types.StateDone)
	return result, nil
}

// Open resolves target and positions a reader at the start of its attribute
// value. The processor stays in the extracting state until the reader is drained.
func (p *ExtractionProcessor) Open(ctx context.Context, target types.ExtractionTarget) (*OpenedAttribute, error) {
	p.state = types.StateResolving
	opened, err := p.open(ctx, target)
	if err != nil {
		p.transition(types.StateFailed)
		return nil, err
	}
	return opened, nil
}

func (p *ExtractionProcessor) open(ctx context.Context, target types.ExtractionTarget) (*OpenedAttribute, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := p.locate(target)
	if err != nil {
		return nil, err
	}
	p.transition(types.StateLocated)

	attr, err := SelectAttribute(record, target.AttributeTypeOrDefault(), target.StreamName)
	if err != nil {
		return nil, err
	}
	if attr.IsEncrypted() && !p.options.AllowEncrypted {
		return nil, types.NewError(types.ErrUnsupportedAttribute, componentExtraction, "attribute is EFS encrypted").
			WithRecord(record.SegmentNumber()).WithAttribute(attr.Type)
	}

	result := &types.ExtractionResult{
		Reference:  record.Reference,
		Attribute:  attr.String(),
		Resident:   attr.IsResident(),
		Compressed: attr.IsCompressed(),
		Encrypted:  attr.IsEncrypted(),
	}
	if si, ok := record.FindAttribute(types.AttrStandardInformation, ""); ok {
		if resident, ok := si.Resident(); ok {
			if standard, err := records.ParseStandardInformation(resident.Data); err == nil {
				result.Standard = standard
			}
		}
	}

	opened := &OpenedAttribute{Result: result, segment: record.SegmentNumber(), attr: attr}
	if resident, ok := attr.Resident(); ok {
		opened.resident = resident.Data
	} else if opened.stream, err = p.reader.OpenStream(attr); err != nil {
		return nil, err
	}

	p.transition(types.StateExtracting)
	p.log.Debugw("extracting attribute",
		"record", record.SegmentNumber(),
		"attribute", attr.String(),
		"size", attr.Size(),
		"resident", result.Resident,
		"compressed", result.Compressed,
	)
	return opened, nil
}

func (p *ExtractionProcessor) extract(ctx context.Context, target types.ExtractionTarget, w interfaces.DataWriter) (*types.ExtractionResult, error) {
	opened, err := p.open(ctx, target)
	if err != nil {
		return nil, err
	}

	if opened.stream == nil {
		if err := writeFull(w, opened.resident); err != nil {
			return nil, err
		}
		opened.Result.BytesExtracted = uint64(len(opened.resident))
		return opened.Result, nil
	}

	buf := make([]byte, p.reader.ChunkSize())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := opened.Read(buf)
		if n > 0 {
			if err := writeFull(w, buf[:n]); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}
	return opened.Result, nil
}

// OpenedAttribute reads one located attribute value. Result.BytesExtracted
// grows with every Read; SparseBytes is set once the value is exhausted.
type OpenedAttribute struct {
	Result *types.ExtractionResult

	segment  uint64
	attr     *types.Attribute
	resident []byte
	stream   *AttributeStream
}

// Size returns the length of the attribute value
func (o *OpenedAttribute) Size() uint64 {
	if o.stream == nil {
		return uint64(len(o.resident))
	}
	return o.stream.Size()
}

// Read implements io.Reader. Reaching the end before the declared size is a
// MalformedRecord error, never a short success.
func (o *OpenedAttribute) Read(p []byte) (int, error) {
	if o.stream == nil {
		offset := o.Result.BytesExtracted
		if offset >= uint64(len(o.resident)) {
			return 0, io.EOF
		}
		n := copy(p, o.resident[offset:])
		o.Result.BytesExtracted += uint64(n)
		return n, nil
	}

	n, err := o.stream.Read(p)
	o.Result.BytesExtracted += uint64(n)
	if err == io.EOF {
		if o.Result.BytesExtracted != o.stream.Size() {
			return n, types.NewError(types.ErrMalformedRecord, componentExtraction,
				"extracted %d bytes, attribute declares %d", o.Result.BytesExtracted, o.stream.Size()).
				WithRecord(o.segment).WithAttribute(o.attr.Type)
		}
		o.Result.SparseBytes = o.stream.SparseBytes()
	}
	return n, err
}

// locate finds the record of a target. An explicit record is checked for
// reuse only when the caller supplied a sequence number.
func (p *ExtractionProcessor) locate(target types.ExtractionTarget) (*types.FileRecord, error) {
	if target.Record != nil {
		if target.VerifySequence {
			return p.loader.LoadReference(*target.Record)
		}
		return p.loader.LoadRecord(target.Record.SegmentNumber())
	}
	ref, err := p.resolver.Resolve(target.Path)
	if err != nil {
		return nil, err
	}
	return p.loader.LoadReference(ref)
}

// SelectAttribute picks the attribute to extract. Index attributes of
// directories live under the $I30 name, which is used when no name is given.
func SelectAttribute(record *types.FileRecord, attrType types.AttributeType, name string) (*types.Attribute, error) {
	if attr, ok := record.FindAttribute(attrType, name); ok {
		return attr, nil
	}
	if name == "" {
		switch attrType {
		case types.AttrIndexRoot, types.AttrIndexAllocation, types.AttrBitmap:
			if attr, ok := record.FindAttribute(attrType, types.DirectoryIndexName); ok {
				return attr, nil
			}
		}
	}
	message := fmt.Sprintf("no %s attribute", attrType)
	if name != "" {
		message = fmt.Sprintf("no %s attribute named %q", attrType, name)
	}
	return nil, types.NewError(types.ErrAttributeNotFound, componentExtraction, "%s", message).
		WithRecord(record.SegmentNumber()).WithAttribute(attrType)
}

// DataStreams returns the names of every $DATA attribute, the unnamed stream as ""
func DataStreams(record *types.FileRecord) []string {
	var names []string
	for _, attr := range record.AttributesOfType(types.AttrData) {
		names = append(names, attr.Name)
	}
	return names
}

// FileNames decodes every $FILE_NAME of record, DOS aliases and hard links included
func FileNames(record *types.FileRecord) ([]*types.FileNameAttribute, error) {
	var names []*types.FileNameAttribute
	for _, attr := range record.AttributesOfType(types.AttrFileName) {
		resident, ok := attr.Resident()
		if !ok {
			continue
		}
		name, err := records.ParseFileName(resident.Data)
		if err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, componentExtraction, "file name").
				WithRecord(record.SegmentNumber()).WithAttribute(types.AttrFileName).WithCause(err)
		}
		names = append(names, name)
	}
	return names, nil
}

func writeFull(w interfaces.DataWriter, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
