package browse

import (
	"fmt"
	"strings"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Request represents a directory listing request
type Request struct {
	Source app.VolumeSource

	// Directory selection: Path, or Record ("N" or "N-SEQ"); the root when both are empty
	Path   string
	Record string

	// IncludeDOSNames keeps the 8.3 aliases that duplicate a long name
	IncludeDOSNames bool
}

// Response represents a directory listing
type Response struct {
	Volume       string        `json:"volume" yaml:"volume"`
	Directory    string        `json:"directory" yaml:"directory"`
	Record       string        `json:"record" yaml:"record"`
	Entries      []EntryResult `json:"entries" yaml:"entries"`
	TotalEntries int           `json:"total_entries" yaml:"total_entries"`
	ListTime     time.Duration `json:"list_time" yaml:"list_time"`
}

// EntryResult is one name of the directory index
type EntryResult struct {
	Name          string    `json:"name" yaml:"name"`
	Record        uint64    `json:"record" yaml:"record"`
	Sequence      uint16    `json:"sequence" yaml:"sequence"`
	Directory     bool      `json:"directory" yaml:"directory"`
	Size          uint64    `json:"size" yaml:"size"`
	AllocatedSize uint64    `json:"allocated_size" yaml:"allocated_size"`
	Attributes    string    `json:"attributes" yaml:"attributes"`
	Namespace     string    `json:"namespace" yaml:"namespace"`
	Created       time.Time `json:"created" yaml:"created"`
	Modified      time.Time `json:"modified" yaml:"modified"`
	MFTChanged    time.Time `json:"mft_changed" yaml:"mft_changed"`
	Accessed      time.Time `json:"accessed" yaml:"accessed"`
}

// Reference renders the entry's file reference as "segment-sequence"
func (e *EntryResult) Reference() string {
	return types.NewFileReference(e.Record, e.Sequence).String()
}

// FormatSize returns a human-readable size string
func (e *EntryResult) FormatSize() string {
	if e.Directory {
		return "<DIR>"
	}
	const unit = 1024
	if e.Size < unit {
		return fmt.Sprintf("%d B", e.Size)
	}
	div, exp := uint64(unit), 0
	for n := e.Size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(e.Size)/float64(div), "KMGTPE"[exp])
}

var namespaceNames = map[uint8]string{
	types.NamespacePOSIX:       "posix",
	types.NamespaceWin32:       "win32",
	types.NamespaceDOS:         "dos",
	types.NamespaceWin32AndDOS: "win32+dos",
}

// namespaceName names a $FILE_NAME namespace
func namespaceName(ns uint8) string {
	if name, ok := namespaceNames[ns]; ok {
		return name
	}
	return fmt.Sprintf("ns%d", ns)
}

// attributeString renders file attribute flags in the style of attrib.exe
func attributeString(flags uint32) string {
	var b strings.Builder
	for _, f := range []struct {
		flag uint32
		char byte
	}{
		{types.FileAttrReadOnly, 'R'},
		{types.FileAttrHidden, 'H'},
		{types.FileAttrSystem, 'S'},
		{types.FileAttrArchive, 'A'},
		{types.FileAttrSparse, 'P'},
		{types.FileAttrReparsePoint, 'L'},
		{types.FileAttrCompressed, 'C'},
		{types.FileAttrEncrypted, 'E'},
	} {
		if flags&f.flag != 0 {
			b.WriteByte(f.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
