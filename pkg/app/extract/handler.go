package extract

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/output"
	"github.com/deploymenttheory/go-rawcopy/internal/services"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Handle processes an extraction request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	// 1. Validate request
	t, err := req.resolve()
	if err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Extracting %s from: %s", t.ExtractionTarget.String(), req.Source.String()))
	ctx.Progress("Opening volume...", 5)

	response := &Response{Volume: req.Source.String()}

	// 2. Open the volume and run one job per stream
	err = app.Run(req.Source, ctx.Config, func(ec *app.ExecutionContext) error {
		response.JobID = ec.ID

		jobs, err := plan(ec, t, req.AllStreams)
		if err != nil {
			return err
		}

		for i, job := range jobs {
			ctx.Progress(fmt.Sprintf("Extracting %s...", job.target.String()), 10+80*i/len(jobs))
			file, err := run(ctx, ec, req, t, job)
			if err != nil {
				return err
			}
			response.Files = append(response.Files, *file)
			response.TotalBytes += file.Bytes
		}

		stats := ec.Statistics()
		response.DeviceIO = DeviceIO{Reads: stats.Reads, BytesRead: stats.BytesRead, Retries: stats.Retries}
		return nil
	})
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Extracted %d file(s), %s in %v", len(response.Files), formatBytes(response.TotalBytes), response.Duration))
	return response, nil
}

// plannedJob is one attribute value to extract and the file name it is saved under
type plannedJob struct {
	target types.ExtractionTarget
	name   string
}

// plan expands the request into jobs. Only record targets and all-streams
// requests need the file record up front, for its name and its stream list.
func plan(ec *app.ExecutionContext, t *target, allStreams bool) ([]plannedJob, error) {
	base := t.ExtractionTarget
	if base.Record == nil && !allStreams {
		return []plannedJob{{target: base, name: outputName(path.Base(base.Path), base)}}, nil
	}

	volume, err := ec.Volume()
	if err != nil {
		return nil, app.NewError(app.ErrCodeOperationFailed, "volume unavailable", err)
	}
	record, err := locate(volume, base)
	if err != nil {
		return nil, app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot locate %s", base.String()), err)
	}

	name := primaryName(record)
	if base.Record == nil {
		name = path.Base(base.Path)
	}
	if !allStreams {
		return []plannedJob{{target: base, name: outputName(name, base)}}, nil
	}

	streams := services.DataStreams(record)
	if len(streams) == 0 {
		err := types.NewError(types.ErrAttributeNotFound, "Extract", "no $DATA streams").
			WithRecord(record.SegmentNumber()).WithAttribute(types.AttrData)
		return nil, app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot extract %s", base.String()), err)
	}

	// Later jobs address the record directly so every stream comes from the same file
	ref := record.Reference
	jobs := make([]plannedJob, 0, len(streams))
	for _, stream := range streams {
		jt := base
		jt.Path = ""
		jt.Record = &ref
		jt.VerifySequence = true
		jt.StreamName = stream
		jobs = append(jobs, plannedJob{target: jt, name: outputName(name, jt)})
	}
	return jobs, nil
}

func locate(volume *services.Volume, target types.ExtractionTarget) (*types.FileRecord, error) {
	loader := volume.Loader()
	if target.Record != nil {
		if target.VerifySequence {
			return loader.LoadReference(*target.Record)
		}
		return loader.LoadRecord(target.Record.SegmentNumber())
	}
	ref, err := volume.Resolver().Resolve(target.Path)
	if err != nil {
		return nil, err
	}
	return loader.LoadReference(ref)
}

// primaryName returns the record's long file name, falling back to its number
func primaryName(record *types.FileRecord) string {
	names, _ := services.FileNames(record)
	var fallback string
	for _, name := range names {
		if !name.IsDOSOnly() {
			return name.Name
		}
		fallback = name.Name
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("record_%d", record.SegmentNumber())
}

// outputName appends the stream name or a non-$DATA attribute type to name
func outputName(name string, target types.ExtractionTarget) string {
	if name == "" || name == "/" || name == "." {
		name = "root"
	}
	if attrType := target.AttributeTypeOrDefault(); attrType != types.AttrData {
		name += "_" + strings.TrimPrefix(attrType.String(), "$")
	}
	if target.StreamName != "" {
		name += "_" + target.StreamName
	}
	return name
}

// destination picks the output path. Several streams, an existing directory
// or a trailing separator make Destination a directory.
func destination(req *Request, name string, compression output.Compression) string {
	dest := req.Destination
	name += compression.Extension()
	if dest == "" {
		return name
	}
	if req.AllStreams || strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, string(os.PathSeparator)) {
		return filepath.Join(dest, name)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return filepath.Join(dest, name)
	}
	return dest
}

func run(ctx *app.Context, ec *app.ExecutionContext, req *Request, t *target, job plannedJob) (*FileResult, error) {
	var sink interfaces.Sink
	dest := StdoutDestination
	if req.Destination == StdoutDestination {
		sink = output.NewWriterSink(ctx.Stdout)
	} else {
		dest = destination(req, job.name, t.compression)
		fileSink, err := output.NewFileSink(dest, output.FileSinkOptions{
			Overwrite:     req.Overwrite,
			PreserveTimes: req.PreserveTimes,
		})
		if err != nil {
			return nil, app.NewError(app.ErrCodeOperationFailed, "cannot create output", err)
		}
		sink = fileSink
	}

	pipeline, err := output.NewPipeline(sink, output.Options{Compression: t.compression, Hash: t.hash})
	if err != nil {
		sink.Abort()
		return nil, app.NewError(app.ErrCodeOperationFailed, "cannot create output", err)
	}

	extraction := ec.NewJob(job.target, pipeline)
	if err := ec.PerformOperation(ctx, extraction); err != nil {
		return nil, err
	}

	result := extraction.Result
	file := &FileResult{
		Target:        job.target.String(),
		Record:        result.Reference.String(),
		Attribute:     result.Attribute,
		Stream:        job.target.StreamName,
		Destination:   dest,
		Bytes:         result.BytesExtracted,
		SparseBytes:   result.SparseBytes,
		Resident:      result.Resident,
		Compressed:    result.Compressed,
		Encrypted:     result.Encrypted,
		HashAlgorithm: string(pipeline.HashAlgorithm()),
		Hash:          pipeline.Digest(),
	}
	if result.Standard != nil {
		file.Modified = result.Standard.Modified
	}
	return file, nil
}
