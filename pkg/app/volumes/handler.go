package volumes

import (
	"fmt"
	"os"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/device"
	"github.com/deploymenttheory/go-rawcopy/internal/disk"
	"github.com/deploymenttheory/go-rawcopy/pkg/app"
)

// hostSource labels a listing of the running host's volumes
const hostSource = "host"

var listHostVolumes = device.ListNTFSVolumes

// Handle enumerates NTFS volumes of the host, or the partitions of req.Image
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()
	response := &Response{Source: hostSource}

	if req.Image != "" {
		if _, err := os.Stat(req.Image); err != nil {
			return nil, app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("cannot access image %s", req.Image), err)
		}
		ctx.Log(fmt.Sprintf("Reading partition table of: %s", req.Image))
		partitions, err := disk.FindPartitions(req.Image)
		if err != nil {
			return nil, app.NewError(app.ErrCodeSetupFailed, "cannot read partition table", err)
		}
		response.Source = req.Image
		response.Partitions = partitions
	} else {
		ctx.Log("Enumerating host NTFS volumes")
		host, err := listHostVolumes()
		if err != nil {
			return nil, app.NewError(app.ErrCodeDeviceAccess, "cannot enumerate volumes", err)
		}
		response.Host = host
	}

	response.ListTime = time.Since(startTime)
	ctx.Log(fmt.Sprintf("Found %d volume(s) in %v", response.Count(), response.ListTime))
	return response, nil
}
