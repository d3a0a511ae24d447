package services

import (
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/boot"
	"github.com/deploymenttheory/go-rawcopy/internal/parsers/records"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const componentVolume = "Volume"

// VolumeOptions tunes OpenVolume
type VolumeOptions struct {
	// ReadChunkSize caps a single device read; zero selects DefaultReadChunkSize
	ReadChunkSize int
}

// Volume is an opened NTFS volume with its MFT bootstrapped. It holds no
// device handle of its own; the caller owns the DiskAccessor.
type Volume struct {
	disk       interfaces.DiskAccessor
	descriptor interfaces.VolumeDescriptor
	reader     *AttributeReader
	mft        *MftReader
	loader     *RecordLoader
	upcase     *UpCaseTable
	walker     *IndexWalker
	resolver   *PathResolver

	upcaseFromVolume bool
	log              *zap.SugaredLogger
}

// VolumeInfo describes the geometry and metadata of a volume
type VolumeInfo struct {
	Boot             *types.BootSectorInfo
	ClusterSize      uint64
	Label            string
	MajorVersion     uint8
	MinorVersion     uint8
	Flags            uint16
	MftRecordCount   uint64
	MftFragments     int
	UpCaseFromVolume bool
}

// OpenVolume parses the boot sector and bootstraps the MFT. A missing or
// unreadable $UpCase falls back to DefaultUpCaseTable.
func OpenVolume(disk interfaces.DiskAccessor, opts VolumeOptions) (*Volume, error) {
	log := logger.Component(componentVolume)

	bootSector, err := disk.ReadBytes(0, types.BootSectorSize)
	if err != nil {
		return nil, err
	}
	descriptor, err := boot.NewVolumeDescriptor(bootSector)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		disk:       disk,
		descriptor: descriptor,
		reader:     NewAttributeReader(disk, descriptor, opts.ReadChunkSize),
		log:        log,
	}

	v.mft, err = NewMftReader(disk, descriptor, v.reader)
	if err != nil {
		return nil, err
	}
	v.loader = NewRecordLoader(v.mft, v.reader)

	upcase, err := LoadUpCase(v.loader, v.reader)
	if err != nil {
		log.Warnw("using built-in upper case table", "error", err)
		upcase = DefaultUpCaseTable()
	} else {
		v.upcaseFromVolume = true
	}
	v.upcase = upcase
	v.walker = NewIndexWalker(v.reader, descriptor, upcase)
	v.resolver = NewPathResolver(v.loader, v.walker)

	info := descriptor.Info()
	log.Infow("opened NTFS volume",
		"cluster_size", descriptor.ClusterSize(),
		"mft_lcn", info.MftStartCluster,
		"record_size", info.BytesPerFileRecordSegment,
		"records", v.mft.RecordCount(),
	)
	return v, nil
}

// Descriptor returns the volume geometry
func (v *Volume) Descriptor() interfaces.VolumeDescriptor { return v.descriptor }

// Reader returns the attribute reader
func (v *Volume) Reader() *AttributeReader { return v.reader }

// MFT returns the MFT reader
func (v *Volume) MFT() *MftReader { return v.mft }

// Loader returns the record loader
func (v *Volume) Loader() *RecordLoader { return v.loader }

// Walker returns the directory index walker
func (v *Volume) Walker() *IndexWalker { return v.walker }

// Resolver returns the path resolver
func (v *Volume) Resolver() *PathResolver { return v.resolver }

// UpCase returns the collation table in use
func (v *Volume) UpCase() *UpCaseTable { return v.upcase }

// NewExtractionProcessor creates a processor for one extraction job
func (v *Volume) NewExtractionProcessor(opts ExtractionOptions) *ExtractionProcessor {
	return NewExtractionProcessor(v.loader, v.resolver, v.reader, opts)
}

// Info collects geometry and the $Volume metadata. Label and version are left
// empty when record 3 cannot be read.
func (v *Volume) Info() (*VolumeInfo, error) {
	info := &VolumeInfo{
		Boot:             v.descriptor.Info(),
		ClusterSize:      v.descriptor.ClusterSize(),
		MftRecordCount:   v.mft.RecordCount(),
		MftFragments:     len(v.mft.Extents()),
		UpCaseFromVolume: v.upcaseFromVolume,
	}

	record, err := v.loader.LoadRecord(types.MftRecordVolume)
	if err != nil {
		v.log.Warnw("cannot read $Volume", "error", err)
		return info, nil
	}
	if attr, ok := record.FindAttribute(types.AttrVolumeName, ""); ok {
		data, err := v.reader.ReadAll(attr)
		if err != nil {
			return nil, err
		}
		if info.Label, err = records.DecodeName(data); err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, componentVolume, "volume label").
				WithRecord(types.MftRecordVolume).WithAttribute(types.AttrVolumeName).WithCause(err)
		}
	}
	if attr, ok := record.FindAttribute(types.AttrVolumeInformation, ""); ok {
		data, err := v.reader.ReadAll(attr)
		if err != nil {
			return nil, err
		}
		volumeInfo, err := records.ParseVolumeInformation(data)
		if err != nil {
			return nil, types.NewError(types.ErrMalformedRecord, componentVolume, "volume information").
				WithRecord(types.MftRecordVolume).WithAttribute(types.AttrVolumeInformation).WithCause(err)
		}
		info.MajorVersion = volumeInfo.MajorVersion
		info.MinorVersion = volumeInfo.MinorVersion
		info.Flags = volumeInfo.Flags
	}
	return info, nil
}
