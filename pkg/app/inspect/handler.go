package inspect

import (
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/services"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Handle processes an inspection request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	ref, verify, err := req.resolve()
	if err != nil {
		return nil, err
	}

	ctx.Log(fmt.Sprintf("Inspecting volume: %s", req.Source.String()))
	ctx.Progress("Opening volume...", 10)

	response := &Response{}
	err = app.Run(req.Source, ctx.Config, func(ec *app.ExecutionContext) error {
		volume, err := ec.Volume()
		if err != nil {
			return app.NewError(app.ErrCodeOperationFailed, "volume unavailable", err)
		}

		ctx.Progress("Reading $Volume...", 40)
		info, err := volume.Info()
		if err != nil {
			return app.NewError(app.ErrCodeOperationFailed, "cannot read volume information", err)
		}
		response.Volume = volumeResult(req.Source.String(), info, volume.MFT().Extents())

		if ref != nil {
			ctx.Progress(fmt.Sprintf("Reading record %d...", ref.SegmentNumber()), 70)
			record, err := loadRecord(volume, *ref, verify)
			if err != nil {
				return app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot read record %s", req.Record), err)
			}
			response.Record, err = recordResult(record)
			if err != nil {
				return app.NewError(app.ErrCodeOperationFailed, fmt.Sprintf("cannot decode record %s", req.Record), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	response.InspectTime = time.Since(startTime)
	ctx.Progress("Complete", 100)
	return response, nil
}

// loadRecord also returns records that are no longer in use, so freed
// records can be examined. Their attribute lists are not followed.
func loadRecord(volume *services.Volume, ref types.FileReference, verify bool) (*types.FileRecord, error) {
	loader := volume.Loader()
	if verify {
		record, err := loader.LoadReference(ref)
		if !errors.Is(err, types.ErrRecordNotInUse) {
			return record, err
		}
	} else {
		record, err := loader.LoadRecord(ref.SegmentNumber())
		if !errors.Is(err, types.ErrRecordNotInUse) {
			return record, err
		}
	}
	return loader.LoadRaw(ref.SegmentNumber())
}

func volumeResult(source string, info *services.VolumeInfo, extents []types.Extent) VolumeResult {
	boot := info.Boot
	result := VolumeResult{
		Source:            source,
		Label:             info.Label,
		Flags:             info.Flags,
		SerialNumber:      fmt.Sprintf("%016X", boot.SerialNumber),
		BytesPerSector:    boot.BytesPerSector,
		SectorsPerCluster: boot.SectorsPerCluster,
		ClusterSize:       info.ClusterSize,
		TotalSectors:      boot.TotalSectors,
		VolumeSize:        boot.VolumeSize(),
		MftCluster:        boot.MftStartCluster,
		MftMirrorCluster:  boot.MftMirrorCluster,
		RecordSize:        boot.BytesPerFileRecordSegment,
		IndexBlockSize:    boot.BytesPerIndexBlock,
		MftRecords:        info.MftRecordCount,
		MftExtents:        extentResults(extents),
		UpCaseSource:      "default",
	}
	if info.MajorVersion != 0 || info.MinorVersion != 0 {
		result.Version = fmt.Sprintf("%d.%d", info.MajorVersion, info.MinorVersion)
	}
	if info.UpCaseFromVolume {
		result.UpCaseSource = "$UpCase"
	}
	return result
}

func extentResults(extents []types.Extent) []ExtentResult {
	results := make([]ExtentResult, 0, len(extents))
	for _, e := range extents {
		results = append(results, ExtentResult{VCN: e.VCN, LCN: e.LCN, Clusters: e.ClusterCount, Sparse: e.Sparse})
	}
	return results
}

func recordResult(record *types.FileRecord) (*RecordResult, error) {
	result := &RecordResult{
		Reference:  types.NewFileReference(record.SegmentNumber(), record.Header.Sequence).String(),
		InUse:      record.InUse(),
		Directory:  record.IsDirectory(),
		Extensions: record.Extensions,
	}

	names, err := services.FileNames(record)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		result.Names = append(result.Names, name.Name)
	}

	for _, attr := range record.Attributes {
		a := AttributeResult{
			Type:       attr.Type.String(),
			Name:       attr.Name,
			Resident:   attr.IsResident(),
			Size:       attr.Size(),
			Compressed: attr.IsCompressed(),
			Encrypted:  attr.IsEncrypted(),
			Sparse:     attr.IsSparse(),
			Segment:    attr.Record,
		}
		if attr.Type.String() == "UNKNOWN" {
			a.Type = fmt.Sprintf("0x%X", uint32(attr.Type))
		}
		if content, ok := attr.NonResident(); ok {
			a.AllocatedSize = content.AllocatedSize
			a.InitializedSize = content.InitializedSize
			extents, err := content.Runs.Extents()
			if err != nil {
				return nil, types.NewError(types.ErrMalformedRecord, "Inspect", "run list").
					WithRecord(attr.Record).WithAttribute(attr.Type).WithCause(err)
			}
			a.Extents = extentResults(extents)
		}
		result.Attributes = append(result.Attributes, a)
	}
	return result, nil
}
