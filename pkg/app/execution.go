package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawcopy/internal/config"
	"github.com/deploymenttheory/go-rawcopy/internal/device"
	"github.com/deploymenttheory/go-rawcopy/internal/disk"
	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/logger"
	"github.com/deploymenttheory/go-rawcopy/internal/services"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ErrContextClosed is returned when an ExecutionContext is used after Close
var ErrContextClosed = errors.New("execution context is closed")

// ExtractionJob is one extraction owned by an ExecutionContext
type ExtractionJob struct {
	ID     string
	Target types.ExtractionTarget
	Sink   interfaces.Sink

	BytesExtracted uint64
	Result         *types.ExtractionResult
	Duration       time.Duration
}

// ExecutionContext owns the open volume handle for one operation. Close
// releases it and is safe to call more than once, on a nil context, and
// after a failed Setup.
type ExecutionContext struct {
	ID     string
	source VolumeSource
	cfg    *config.Config

	device   interfaces.SectorReader
	accessor *device.DiskAccessor
	volume   *services.Volume

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
	log       *zap.SugaredLogger
}

// Setup opens the volume named by source and bootstraps its MFT
func Setup(source VolumeSource, cfg *config.Config) (*ExecutionContext, error) {
	if err := source.Validate(); err != nil {
		return nil, NewError(ErrCodeInvalidInput, "invalid volume source", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}

	path := device.RawDevicePath(source.Path)
	offset, err := volumeOffset(path, source)
	if err != nil {
		return nil, NewError(ErrCodeSetupFailed, "cannot locate NTFS volume", err)
	}

	dev, err := device.Open(path, device.OpenOptions{Offset: offset, SectorSize: cfg.Device.SectorSize})
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, NewError(ErrCodePermission, fmt.Sprintf("access to %s denied", path), err)
		}
		return nil, NewError(ErrCodeDeviceAccess, fmt.Sprintf("cannot open %s", path), err)
	}

	ec, err := SetupDevice(dev, cfg)
	if err != nil {
		return nil, err
	}
	ec.source = source
	ec.log.Infow("volume opened", "path", path, "offset", offset)
	return ec, nil
}

// volumeOffset resolves --partition through the image's partition table. An
// image file with neither offset nor partition is scanned for the first NTFS
// partition when it does not start with a boot sector.
func volumeOffset(path string, source VolumeSource) (int64, error) {
	if source.Partition != 0 {
		return disk.PartitionOffset(path, source.Partition)
	}
	if source.ImageOffset != 0 {
		return source.ImageOffset, nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, nil
	}
	offset, where, err := disk.DetectNTFSOffset(path)
	if err != nil {
		return 0, nil
	}
	if offset != 0 {
		logger.Component("ExecutionContext").Infow("using NTFS volume inside image", "location", where, "offset", offset)
	}
	return offset, nil
}

// SetupDevice builds an ExecutionContext over an already opened device. The
// context takes ownership of dev and closes it on failure.
func SetupDevice(dev interfaces.SectorReader, cfg *config.Config) (*ExecutionContext, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	id := uuid.NewString()
	log := logger.WithJob(id).With("component", "ExecutionContext")

	accessor := device.NewDiskAccessor(dev, device.AccessorOptions{
		SectorSize:       cfg.Device.SectorSize,
		ShortReadRetries: cfg.Device.ShortReadRetries,
	})
	volume, err := services.OpenVolume(accessor, services.VolumeOptions{ReadChunkSize: cfg.Device.ReadChunkSize})
	if err != nil {
		dev.Close()
		return nil, NewError(ErrCodeSetupFailed, "cannot open NTFS volume", err)
	}

	return &ExecutionContext{
		ID:       id,
		cfg:      cfg,
		device:   dev,
		accessor: accessor,
		volume:   volume,
		log:      log,
	}, nil
}

// Run opens the volume, calls fn and always releases the volume afterwards
func Run(source VolumeSource, cfg *config.Config, fn func(*ExecutionContext) error) (err error) {
	ec, err := Setup(source, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ec.Close(); closeErr != nil && err == nil {
			err = NewError(ErrCodeOperationFailed, "failed to release volume", closeErr)
		}
	}()
	return fn(ec)
}

// Volume returns the opened volume
func (e *ExecutionContext) Volume() (*services.Volume, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrContextClosed
	}
	return e.volume, nil
}

// Source returns the volume selection the context was set up with
func (e *ExecutionContext) Source() VolumeSource {
	return e.source
}

// Statistics returns the device read counters
func (e *ExecutionContext) Statistics() device.AccessorStatistics {
	return e.accessor.Statistics()
}

// NewJob creates a job for target delivering into sink
func (e *ExecutionContext) NewJob(target types.ExtractionTarget, sink interfaces.Sink) *ExtractionJob {
	return &ExtractionJob{
		ID:     uuid.NewString(),
		Target: target,
		Sink:   sink,
	}
}

// PerformOperation runs job to completion. The sink is committed on success
// and aborted on any failure, so a failed job leaves no output behind.
func (e *ExecutionContext) PerformOperation(ctx context.Context, job *ExtractionJob) error {
	volume, err := e.Volume()
	if err != nil {
		return NewError(ErrCodeOperationFailed, "cannot run job", err)
	}
	log := logger.WithJob(job.ID).With("component", "ExecutionContext", "target", job.Target.String())

	started := time.Now()
	processor := volume.NewExtractionProcessor(services.ExtractionOptions{
		AllowEncrypted: e.cfg.Extraction.AllowEncrypted,
	})
	log.Debugw("job started")

	result, err := processor.Extract(ctx, job.Target, job.Sink)
	job.Duration = time.Since(started)
	if err != nil {
		if abortErr := job.Sink.Abort(); abortErr != nil {
			log.Warnw("cannot discard partial output", "error", abortErr)
		}
		log.Debugw("job failed", "state", processor.State().String(), "kind", types.ErrorKind(err), "error", err)
		return NewError(ErrCodeOperationFailed, fmt.Sprintf("extraction of %s failed", job.Target), err)
	}
	if timed, ok := job.Sink.(interfaces.TimestampSetter); ok && result.Standard != nil {
		timed.SetTimes(result.Standard.Modified, result.Standard.Accessed)
	}
	if err := job.Sink.Commit(); err != nil {
		return NewError(ErrCodeOperationFailed, "cannot finalise output", err)
	}

	job.Result = result
	job.BytesExtracted = result.BytesExtracted
	log.Infow("job complete", "record", result.Reference.String(), "bytes", result.BytesExtracted, "duration", job.Duration)
	return nil
}

// Close releases the volume handle
func (e *ExecutionContext) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		if e.device != nil {
			e.closeErr = e.device.Close()
		}
		if e.accessor == nil {
			return
		}
		stats := e.accessor.Statistics()
		e.log.Debugw("volume released", "reads", stats.Reads, "bytes_read", stats.BytesRead, "retries", stats.Retries)
	})
	return e.closeErr
}
