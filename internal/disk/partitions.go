package disk

import (
	"bytes"
	"fmt"
	"io"
	"os"

	diskfs "github.com/diskfs/go-diskfs"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// Partition is one entry of a whole-disk image's partition table
type Partition struct {
	Index  int    `json:"index" yaml:"index"`
	Table  string `json:"table" yaml:"table"`
	Start  int64  `json:"start" yaml:"start"`
	Size   int64  `json:"size" yaml:"size"`
	IsNTFS bool   `json:"is_ntfs" yaml:"is_ntfs"`
}

// FindPartitions reads the MBR or GPT partition table of an image file and
// reports which partitions start with an NTFS boot sector
func FindPartitions(path string) ([]Partition, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}
	defer d.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk image: %w", err)
	}
	defer file.Close()

	var partitions []Partition
	for i, p := range table.GetPartitions() {
		if p == nil || p.GetSize() <= 0 {
			continue
		}
		partitions = append(partitions, Partition{
			Index:  i + 1,
			Table:  table.Type(),
			Start:  p.GetStart(),
			Size:   p.GetSize(),
			IsNTFS: HasNTFSBootSector(file, p.GetStart()),
		})
	}
	return partitions, nil
}

// PartitionOffset returns the byte offset of the 1-based partition index
func PartitionOffset(path string, index int) (int64, error) {
	partitions, err := FindPartitions(path)
	if err != nil {
		return 0, err
	}
	for _, p := range partitions {
		if p.Index == index {
			if !p.IsNTFS {
				return 0, fmt.Errorf("partition %d does not contain an NTFS volume", index)
			}
			return p.Start, nil
		}
	}
	return 0, fmt.Errorf("partition %d not found (image has %d partitions)", index, len(partitions))
}

// HasNTFSBootSector reports whether the OEM identifier at offset is "NTFS    "
func HasNTFSBootSector(r io.ReaderAt, offset int64) bool {
	oem := make([]byte, 8)
	if _, err := r.ReadAt(oem, offset+3); err != nil {
		return false
	}
	return bytes.Equal(oem, []byte(types.NTFSOEMID))
}

// DetectNTFSOffset locates the NTFS volume inside an image: a bare volume at
// offset 0 first, then the first NTFS partition of the partition table
func DetectNTFSOffset(path string) (int64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open image: %w", err)
	}
	isVolume := HasNTFSBootSector(file, 0)
	file.Close()
	if isVolume {
		return 0, "volume", nil
	}

	partitions, err := FindPartitions(path)
	if err != nil {
		return 0, "", err
	}
	for _, p := range partitions {
		if p.IsNTFS {
			return p.Start, fmt.Sprintf("%s partition %d", p.Table, p.Index), nil
		}
	}
	return 0, "", fmt.Errorf("no NTFS volume found in %s", path)
}
