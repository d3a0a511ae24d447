package interfaces

import (
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// IndexWalker resolves names inside a directory's $I30 index
type IndexWalker interface {
	// Lookup returns the reference of the child named name
	Lookup(dir *types.FileRecord, name string) (types.FileReference, error)

	// List returns every child of the directory in collation order
	List(dir *types.FileRecord) ([]types.DirectoryEntry, error)
}

// PathResolver walks paths from the volume root
type PathResolver interface {
	// Resolve resolves an absolute path to a file reference
	Resolve(path string) (types.FileReference, error)

	// ResolveFrom resolves a path relative to the directory start
	ResolveFrom(start types.FileReference, path string) (types.FileReference, error)
}

// NameCollator orders file names the way the volume's directory indexes do
type NameCollator interface {
	// Compare returns -1, 0 or 1
	Compare(a, b string) int

	// CompareUnits compares names given as stored UTF-16 code units
	CompareUnits(a, b []uint16) int
}
