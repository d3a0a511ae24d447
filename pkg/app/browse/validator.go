package browse

import (
	"strings"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Validate validates a listing request
func (r *Request) Validate() error {
	_, _, err := r.resolve()
	return err
}

// resolve returns the directory path or record to list
func (r *Request) resolve() (string, *types.FileReference, error) {
	hasPath := strings.TrimSpace(r.Path) != ""
	hasRecord := strings.TrimSpace(r.Record) != ""
	if hasPath && hasRecord {
		return "", nil, app.NewError(app.ErrCodeInvalidInput, "cannot specify both path and record", nil)
	}

	dir := "/"
	var ref *types.FileReference
	switch {
	case hasPath:
		parsed, err := app.ParseTargetPath(r.Path)
		if err != nil {
			return "", nil, app.NewError(app.ErrCodeInvalidInput, "invalid path", err)
		}
		if parsed.Stream != "" {
			return "", nil, app.NewError(app.ErrCodeInvalidInput, "a directory has no stream to list", nil)
		}
		if parsed.Drive != "" && r.Source.Path == "" {
			r.Source.Path = parsed.Drive
		}
		dir = parsed.Path
	case hasRecord:
		parsedRef, verify, err := app.ParseRecordTarget(r.Record)
		if err != nil {
			return "", nil, app.NewError(app.ErrCodeInvalidInput, "invalid record", err)
		}
		if !verify {
			// Sequence zero disables the check in resolveDirectory
			*parsedRef = types.NewFileReference(parsedRef.SegmentNumber(), 0)
		}
		ref = parsedRef
	}

	if err := r.Source.Validate(); err != nil {
		return "", nil, app.NewError(app.ErrCodeInvalidInput, "invalid volume", err)
	}
	return dir, ref, nil
}
