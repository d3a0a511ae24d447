package services

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentPathResolver = "PathResolver"

// PathResolver walks paths component by component through directory indexes
type PathResolver struct {
	loader interfaces.FileRecordLoader
	walker interfaces.IndexWalker
	log    *zap.SugaredLogger
}

var _ interfaces.PathResolver = (*PathResolver)(nil)

// NewPathResolver creates a resolver
func NewPathResolver(loader interfaces.FileRecordLoader, walker interfaces.IndexWalker) *PathResolver {
	return &PathResolver{
		loader: loader,
		walker: walker,
		log:    logger.Component(componentPathResolver),
	}
}

// SplitPath splits on both separators and drops empty components
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// RootReference returns the reference of the root directory as recorded in its own header
func (p *PathResolver) RootReference() (types.FileReference, error) {
	root, err := p.loader.LoadRecord(types.MftRecordRoot)
	if err != nil {
		return 0, err
	}
	return types.NewFileReference(types.MftRecordRoot, root.Header.Sequence), nil
}

// Resolve resolves a path from the root directory. The empty path and "/"
// resolve to the root itself.
func (p *PathResolver) Resolve(path string) (types.FileReference, error) {
	root, err := p.RootReference()
	if err != nil {
		return 0, err
	}
	return p.ResolveFrom(root, path)
}

// ResolveFrom resolves path relative to start. "." stays in place and ".."
// moves to the parent named in the directory's $FILE_NAME. A final reference
// taken from an index entry is checked against the live record, so a reused
// slot fails with StaleReference.
func (p *PathResolver) ResolveFrom(start types.FileReference, path string) (types.FileReference, error) {
	current := start
	var looked string
	for _, component := range SplitPath(path) {
		if component == "." {
			continue
		}

		dir, err := p.loader.LoadReference(current)
		if err != nil {
			return 0, annotate(err, component)
		}
		if !dir.IsDirectory() {
			return 0, types.NewError(types.ErrNotADirectory, componentPathResolver, "cannot descend into %s", current).
				WithRecord(current.SegmentNumber()).WithPathComponent(component)
		}

		if component == ".." {
			current, err = parentOf(dir)
			if err != nil {
				return 0, err
			}
			looked = ""
			continue
		}

		next, err := p.walker.Lookup(dir, component)
		if err != nil {
			return 0, annotate(err, component)
		}
		p.log.Debugw("resolved path component", "component", component, "parent", current.String(), "reference", next.String())
		current = next
		looked = component
	}

	if looked != "" {
		if _, err := p.loader.LoadReference(current); err != nil {
			return 0, annotate(err, looked)
		}
	}
	return current, nil
}

// parentOf returns the parent reference of a directory. The root is its own parent.
func parentOf(dir *types.FileRecord) (types.FileReference, error) {
	for _, attr := range dir.AttributesOfType(types.AttrFileName) {
		resident, ok := attr.Resident()
		if !ok {
			continue
		}
		name, err := records.ParseFileName(resident.Data)
		if err != nil {
			return 0, types.NewError(types.ErrMalformedRecord, componentPathResolver, "file name").
				WithRecord(dir.SegmentNumber()).WithAttribute(types.AttrFileName).WithCause(err)
		}
		return name.Parent, nil
	}
	return 0, types.NewError(types.ErrAttributeNotFound, componentPathResolver, "no $FILE_NAME to follow ..").
		WithRecord(dir.SegmentNumber()).WithAttribute(types.AttrFileName).WithPathComponent("..")
}

// annotate attaches the path component to an engine error that has none
func annotate(err error, component string) error {
	var ntfsErr *types.NTFSError
	if errors.As(err, &ntfsErr) && ntfsErr.PathComponent == "" {
		ntfsErr.WithPathComponent(component)
	}
	return err
}
