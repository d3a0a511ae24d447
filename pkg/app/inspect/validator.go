package inspect

import (
	"strings"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Validate validates an inspection request
func (r *Request) Validate() error {
	_, _, err := r.resolve()
	return err
}

func (r *Request) resolve() (*types.FileReference, bool, error) {
	if err := r.Source.Validate(); err != nil {
		return nil, false, app.NewError(app.ErrCodeInvalidInput, "invalid volume", err)
	}
	if strings.TrimSpace(r.Record) == "" {
		return nil, false, nil
	}
	ref, verify, err := app.ParseRecordTarget(r.Record)
	if err != nil {
		return nil, false, app.NewError(app.ErrCodeInvalidInput, "invalid record", err)
	}
	return ref, verify, nil
}
