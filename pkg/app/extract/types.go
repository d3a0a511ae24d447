package extract

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Request represents a raw file extraction request
type Request struct {
	Source app.VolumeSource

	// Target selection: exactly one of Path or Record
	Path   string
	Record string

	// Attribute selection
	Stream        string
	AttributeType string
	AllStreams    bool

	// Destination is a file, an existing directory, or "-" for stdout
	Destination string

	// Output options
	Compression   string
	Hash          string
	Overwrite     bool
	PreserveTimes bool
}

// Response represents the outcome of an extraction
type Response struct {
	JobID      string        `json:"job_id" yaml:"job_id"`
	Volume     string        `json:"volume" yaml:"volume"`
	Files      []FileResult  `json:"files" yaml:"files"`
	TotalBytes uint64        `json:"total_bytes" yaml:"total_bytes"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	DeviceIO   DeviceIO      `json:"device_io" yaml:"device_io"`
}

// FileResult describes one extracted attribute value
type FileResult struct {
	Target        string    `json:"target" yaml:"target"`
	Record        string    `json:"record" yaml:"record"`
	Attribute     string    `json:"attribute" yaml:"attribute"`
	Stream        string    `json:"stream,omitempty" yaml:"stream,omitempty"`
	Destination   string    `json:"destination" yaml:"destination"`
	Bytes         uint64    `json:"bytes" yaml:"bytes"`
	SparseBytes   uint64    `json:"sparse_bytes" yaml:"sparse_bytes"`
	Resident      bool      `json:"resident" yaml:"resident"`
	Compressed    bool      `json:"compressed" yaml:"compressed"`
	Encrypted     bool      `json:"encrypted" yaml:"encrypted"`
	HashAlgorithm string    `json:"hash_algorithm,omitempty" yaml:"hash_algorithm,omitempty"`
	Hash          string    `json:"hash,omitempty" yaml:"hash,omitempty"`
	Modified      time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// DeviceIO summarises raw device activity during the job
type DeviceIO struct {
	Reads     uint64 `json:"reads" yaml:"reads"`
	BytesRead uint64 `json:"bytes_read" yaml:"bytes_read"`
	Retries   uint64 `json:"retries" yaml:"retries"`
}

// FormatSize returns a human-readable size string
func (f *FileResult) FormatSize() string {
	return formatBytes(f.Bytes)
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
