package extract

import (
	"strings"

	"github.com/deploymenttheory/go-rawcopy/internal/output"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// StdoutDestination streams the extracted bytes to standard output
const StdoutDestination = "-"

// target is a validated request in engine terms
type target struct {
	types.ExtractionTarget
	compression output.Compression
	hash        output.HashAlgorithm
}

// Validate validates an extraction request
func (r *Request) Validate() error {
	_, err := r.resolve()
	return err
}

// resolve checks the request and maps it to an extraction target. A drive
// prefix on the path names the volume when no volume was given.
func (r *Request) resolve() (*target, error) {
	t := &target{}

	hasPath := strings.TrimSpace(r.Path) != ""
	hasRecord := strings.TrimSpace(r.Record) != ""
	switch {
	case hasPath && hasRecord:
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot specify both path and record", nil)
	case !hasPath && !hasRecord:
		return nil, app.NewError(app.ErrCodeInvalidInput, "a path or a record number is required", nil)
	}

	if hasPath {
		parsed, err := app.ParseTargetPath(r.Path)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "invalid path", err)
		}
		if parsed.Drive != "" {
			switch {
			case r.Source.Path == "":
				r.Source.Path = parsed.Drive
			case isDrive(r.Source.Path) && !strings.EqualFold(strings.TrimRight(r.Source.Path, `\`), parsed.Drive):
				return nil, app.NewError(app.ErrCodeInvalidInput, "path drive "+parsed.Drive+" does not match volume "+r.Source.Path, nil)
			}
		}
		t.Path = parsed.Path
		if parsed.Stream != "" {
			if r.Stream != "" && !strings.EqualFold(r.Stream, parsed.Stream) {
				return nil, app.NewError(app.ErrCodeInvalidInput, "stream given twice: "+parsed.Stream+" and "+r.Stream, nil)
			}
			t.StreamName = parsed.Stream
		}
	} else {
		ref, verify, err := app.ParseRecordTarget(r.Record)
		if err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, "invalid record", err)
		}
		t.Record = ref
		t.VerifySequence = verify
	}
	if r.Stream != "" {
		t.StreamName = r.Stream
	}

	if err := r.Source.Validate(); err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "invalid volume", err)
	}

	if r.AttributeType != "" {
		attrType, ok := types.ParseAttributeType(r.AttributeType)
		if !ok {
			return nil, app.NewError(app.ErrCodeInvalidInput, "unknown attribute type "+r.AttributeType, nil)
		}
		t.AttributeType = attrType
	}

	if r.AllStreams {
		if t.StreamName != "" {
			return nil, app.NewError(app.ErrCodeInvalidInput, "cannot combine a stream name with all-streams", nil)
		}
		if t.AttributeTypeOrDefault() != types.AttrData {
			return nil, app.NewError(app.ErrCodeInvalidInput, "all-streams only applies to $DATA", nil)
		}
		if r.Destination == StdoutDestination {
			return nil, app.NewError(app.ErrCodeInvalidInput, "cannot write several streams to stdout", nil)
		}
	}

	compression, err := output.ParseCompression(r.Compression)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "invalid compression", err)
	}
	t.compression = compression

	hash, err := output.ParseHashAlgorithm(r.Hash)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "invalid hash", err)
	}
	t.hash = hash

	return t, nil
}

func isDrive(volume string) bool {
	v := strings.TrimRight(volume, `\`)
	return len(v) == 2 && v[1] == ':'
}
