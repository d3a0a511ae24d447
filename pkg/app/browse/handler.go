package browse

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/services"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Handle processes a directory listing request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	dir, ref, err := req.resolve()
	if err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Listing %s on: %s", dir, req.Source.String()))
	ctx.Progress("Opening volume...", 10)

	response := &Response{Volume: req.Source.String(), Directory: dir}
	err = app.Run(req.Source, ctx.Config, func(ec *app.ExecutionContext) error {
		volume, err := ec.Volume()
		if err != nil {
			return app.NewError(app.ErrCodeOperationFailed, "volume unavailable", err)
		}

		ctx.Progress("Resolving directory...", 30)
		record, err := resolveDirectory(volume, dir, ref)
		if err != nil {
			return app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot open directory %s", response.Directory), err)
		}
		response.Record = record.Reference.String()
		if ref != nil {
			response.Directory = fmt.Sprintf("record %d", ref.SegmentNumber())
		}

		ctx.Progress("Reading index...", 60)
		entries, err := volume.Walker().List(record)
		if err != nil {
			return app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot list %s", response.Directory), err)
		}
		response.Entries = toResults(entries, req.IncludeDOSNames)
		return nil
	})
	if err != nil {
		return nil, err
	}

	response.TotalEntries = len(response.Entries)
	response.ListTime = time.Since(startTime)
	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Listed %d entries in %v", response.TotalEntries, response.ListTime))
	return response, nil
}

func resolveDirectory(volume *services.Volume, dir string, ref *types.FileReference) (*types.FileRecord, error) {
	loader := volume.Loader()
	if ref != nil {
		if ref.SequenceNumber() == 0 {
			return loader.LoadRecord(ref.SegmentNumber())
		}
		return loader.LoadReference(*ref)
	}
	resolved, err := volume.Resolver().Resolve(dir)
	if err != nil {
		return nil, err
	}
	return loader.LoadReference(resolved)
}

// toResults converts index entries. DOS-only names duplicate a long name of
// the same record and are dropped unless requested.
func toResults(entries []types.DirectoryEntry, includeDOS bool) []EntryResult {
	results := make([]EntryResult, 0, len(entries))
	for _, entry := range entries {
		fileName := entry.FileName
		if fileName == nil {
			continue
		}
		if fileName.IsDOSOnly() && !includeDOS {
			continue
		}
		results = append(results, EntryResult{
			Name:          entry.Name,
			Record:        entry.Reference.SegmentNumber(),
			Sequence:      entry.Reference.SequenceNumber(),
			Directory:     fileName.IsDirectory(),
			Size:          fileName.RealSize,
			AllocatedSize: fileName.AllocatedSize,
			Attributes:    attributeString(fileName.Flags),
			Namespace:     namespaceName(fileName.Namespace),
			Created:       fileName.Created,
			Modified:      fileName.Modified,
			MFTChanged:    fileName.MFTChanged,
			Accessed:      fileName.Accessed,
		})
	}
	return results
}
