package volumes

import (
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/device"
	"github.com/deploymenttheory/go-rawcopy/internal/disk"
)

// Request represents a volume enumeration request
type Request struct {
	// Image lists the partitions of a whole-disk image instead of the host's volumes
	Image string
}

// Response lists extraction sources
type Response struct {
	Source     string              `json:"source" yaml:"source"`
	Host       []device.HostVolume `json:"host,omitempty" yaml:"host,omitempty"`
	Partitions []disk.Partition    `json:"partitions,omitempty" yaml:"partitions,omitempty"`
	ListTime   time.Duration       `json:"list_time" yaml:"list_time"`
}

// Count returns the number of listed volumes or partitions
func (r *Response) Count() int {
	return len(r.Host) + len(r.Partitions)
}
