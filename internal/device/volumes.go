package device

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/disk"
)

// HostVolume is a mounted NTFS volume of the running host
type HostVolume struct {
	Device     string `json:"device" yaml:"device"`
	Mountpoint string `json:"mountpoint" yaml:"mountpoint"`
	Fstype     string `json:"fstype" yaml:"fstype"`
	RawPath    string `json:"raw_path" yaml:"raw_path"`
}

var ntfsFilesystems = map[string]bool{
	"ntfs":    true,
	"ntfs3":   true,
	"ntfs-3g": true,
	"fuseblk": true,
}

// ListNTFSVolumes enumerates the host's mounted NTFS volumes
func ListNTFSVolumes() ([]HostVolume, error) {
	partitions, err := disk.Partitions(true)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate partitions: %w", err)
	}

	var volumes []HostVolume
	for _, p := range partitions {
		if !ntfsFilesystems[strings.ToLower(p.Fstype)] {
			continue
		}
		volumes = append(volumes, HostVolume{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Fstype:     p.Fstype,
			RawPath:    RawDevicePath(p.Device),
		})
	}
	return volumes, nil
}
