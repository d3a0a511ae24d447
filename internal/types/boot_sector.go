package types

// BootSectorInfo holds the volume geometry decoded from the NTFS boot sector.
// Reference: NTFS boot sector (BIOS parameter block at 0x0B, extended BPB at 0x24)
type BootSectorInfo struct {
	// Bytes per logical sector (offset 0x0B)
	BytesPerSector uint16
	// Sectors per cluster, decoded from offset 0x0D
	SectorsPerCluster uint32
	// Media descriptor (offset 0x15)
	MediaDescriptor uint8
	// Number of sectors in the volume (offset 0x28)
	TotalSectors uint64
	// LCN of the first cluster of $MFT (offset 0x30)
	MftStartCluster uint64
	// LCN of the first cluster of $MFTMirr (offset 0x38)
	MftMirrorCluster uint64
	// Size of one MFT record, decoded from offset 0x40
	BytesPerFileRecordSegment uint32
	// Size of one index block, decoded from offset 0x44
	BytesPerIndexBlock uint32
	// Volume serial number (offset 0x48)
	SerialNumber uint64
}

// ClusterSize returns bytesPerSector × sectorsPerCluster
func (b *BootSectorInfo) ClusterSize() uint64 {
	return uint64(b.BytesPerSector) * uint64(b.SectorsPerCluster)
}

// ClusterToByteOffset converts a logical cluster number to a byte offset on the volume
func (b *BootSectorInfo) ClusterToByteOffset(lcn uint64) uint64 {
	return lcn * b.ClusterSize()
}

// TotalClusters returns the number of clusters in the volume
func (b *BootSectorInfo) TotalClusters() uint64 {
	if b.SectorsPerCluster == 0 {
		return 0
	}
	return b.TotalSectors / uint64(b.SectorsPerCluster)
}

// VolumeSize returns the volume size in bytes
func (b *BootSectorInfo) VolumeSize() uint64 {
	return b.TotalSectors * uint64(b.BytesPerSector)
}

// MftByteOffset returns the byte offset of MFT record 0
func (b *BootSectorInfo) MftByteOffset() uint64 {
	return b.ClusterToByteOffset(b.MftStartCluster)
}
