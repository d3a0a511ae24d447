package app

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// TargetPath is a user supplied path split into its parts
type TargetPath struct {
	// Drive is the "C:" prefix, empty when absent
	Drive string
	// Path is absolute and uses forward slashes
	Path string
	// Stream is the alternate data stream named after the last ':'
	Stream string
}

// ParseTargetPath accepts "C:\Windows\file.txt", "/dir/file.txt:stream" and
// "file.txt:stream:$DATA". A trailing attribute type other than $DATA is rejected.
func ParseTargetPath(raw string) (TargetPath, error) {
	var target TargetPath
	p := strings.TrimSpace(raw)
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		target.Drive = strings.ToUpper(p[:2])
		p = p[2:]
	}
	p = strings.ReplaceAll(p, `\`, "/")

	dir, last := "", p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		dir, last = p[:i+1], p[i+1:]
	}
	if name, rest, found := strings.Cut(last, ":"); found {
		stream, attrType, hasType := strings.Cut(rest, ":")
		if hasType {
			parsed, ok := types.ParseAttributeType(attrType)
			if !ok || parsed != types.AttrData {
				return TargetPath{}, fmt.Errorf("unsupported stream type %q in %q", attrType, raw)
			}
		}
		if name == "" {
			return TargetPath{}, fmt.Errorf("stream %q has no file name in %q", stream, raw)
		}
		last = name
		target.Stream = stream
	}

	target.Path = "/" + strings.TrimLeft(dir+last, "/")
	return target, nil
}

// Volume returns the drive as a volume argument, empty when the path had no drive
func (t TargetPath) Volume() string {
	return t.Drive
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ParseRecordTarget parses "N" or "N-SEQ"; the sequence is verified only when given
func ParseRecordTarget(s string) (*types.FileReference, bool, error) {
	ref, verify, err := types.ParseFileReference(s)
	if err != nil {
		return nil, false, err
	}
	return &ref, verify, nil
}
