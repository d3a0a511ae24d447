package inspect

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// Request represents a volume inspection request
type Request struct {
	Source app.VolumeSource

	// Record additionally describes one MFT record ("N" or "N-SEQ")
	Record string
}

// Response represents volume geometry and metadata
type Response struct {
	Volume      VolumeResult  `json:"volume" yaml:"volume"`
	Record      *RecordResult `json:"record,omitempty" yaml:"record,omitempty"`
	InspectTime time.Duration `json:"inspect_time" yaml:"inspect_time"`
}

// VolumeResult describes the boot sector and $MFT layout
type VolumeResult struct {
	Source            string         `json:"source" yaml:"source"`
	Label             string         `json:"label" yaml:"label"`
	Version           string         `json:"version" yaml:"version"`
	Flags             uint16         `json:"flags" yaml:"flags"`
	SerialNumber      string         `json:"serial_number" yaml:"serial_number"`
	BytesPerSector    uint16         `json:"bytes_per_sector" yaml:"bytes_per_sector"`
	SectorsPerCluster uint32         `json:"sectors_per_cluster" yaml:"sectors_per_cluster"`
	ClusterSize       uint64         `json:"cluster_size" yaml:"cluster_size"`
	TotalSectors      uint64         `json:"total_sectors" yaml:"total_sectors"`
	VolumeSize        uint64         `json:"volume_size" yaml:"volume_size"`
	MftCluster        uint64         `json:"mft_cluster" yaml:"mft_cluster"`
	MftMirrorCluster  uint64         `json:"mft_mirror_cluster" yaml:"mft_mirror_cluster"`
	RecordSize        uint32         `json:"record_size" yaml:"record_size"`
	IndexBlockSize    uint32         `json:"index_block_size" yaml:"index_block_size"`
	MftRecords        uint64         `json:"mft_records" yaml:"mft_records"`
	MftExtents        []ExtentResult `json:"mft_extents" yaml:"mft_extents"`
	UpCaseSource      string         `json:"upcase_source" yaml:"upcase_source"`
}

// ExtentResult is one fragment of a run list
type ExtentResult struct {
	VCN      uint64 `json:"vcn" yaml:"vcn"`
	LCN      uint64 `json:"lcn" yaml:"lcn"`
	Clusters uint64 `json:"clusters" yaml:"clusters"`
	Sparse   bool   `json:"sparse,omitempty" yaml:"sparse,omitempty"`
}

// RecordResult describes one MFT record and its attributes
type RecordResult struct {
	Reference  string            `json:"reference" yaml:"reference"`
	InUse      bool              `json:"in_use" yaml:"in_use"`
	Directory  bool              `json:"directory" yaml:"directory"`
	Names      []string          `json:"names" yaml:"names"`
	Extensions []uint64          `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Attributes []AttributeResult `json:"attributes" yaml:"attributes"`
}

// AttributeResult describes one attribute of a record
type AttributeResult struct {
	Type            string         `json:"type" yaml:"type"`
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	Resident        bool           `json:"resident" yaml:"resident"`
	Size            uint64         `json:"size" yaml:"size"`
	AllocatedSize   uint64         `json:"allocated_size,omitempty" yaml:"allocated_size,omitempty"`
	InitializedSize uint64         `json:"initialized_size,omitempty" yaml:"initialized_size,omitempty"`
	Compressed      bool           `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	Encrypted       bool           `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
	Sparse          bool           `json:"sparse,omitempty" yaml:"sparse,omitempty"`
	Segment         uint64         `json:"segment" yaml:"segment"`
	Extents         []ExtentResult `json:"extents,omitempty" yaml:"extents,omitempty"`
}

// formatBytes formats byte count as human readable
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
