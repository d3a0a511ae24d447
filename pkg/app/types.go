package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VolumeSource selects the NTFS volume an operation reads
type VolumeSource struct {
	// Path is a raw device (\\.\C:, /dev/sdb1), a drive letter (C:) or an image file
	Path string
	// ImageOffset is the byte offset of the boot sector inside Path
	ImageOffset int64
	// Partition selects a 1-based partition of a whole-disk image
	Partition int
}

// Validate ensures the volume source is usable
func (s *VolumeSource) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("volume path is required")
	}
	if s.ImageOffset < 0 {
		return errors.New("image offset must not be negative")
	}
	if s.Partition < 0 {
		return errors.New("partition must not be negative")
	}
	if s.ImageOffset != 0 && s.Partition != 0 {
		return errors.New("cannot specify both image-offset and partition")
	}
	return nil
}

// String returns a string representation of the volume source
func (s *VolumeSource) String() string {
	switch {
	case s.Partition != 0:
		return fmt.Sprintf("%s (partition %d)", s.Path, s.Partition)
	case s.ImageOffset != 0:
		return fmt.Sprintf("%s (offset %d)", s.Path, s.ImageOffset)
	default:
		return s.Path
	}
}

// ProgressUpdate represents progress information
type ProgressUpdate struct {
	Message     string
	Completed   int64
	Total       int64
	StartedAt   time.Time
	ElapsedTime time.Duration
}

// String renders the update as a single status line
func (p *ProgressUpdate) String() string {
	return fmt.Sprintf("[%3d%%] %s (%.2fs)", p.Percent(), p.Message, p.ElapsedTime.Seconds())
}

// Percent calculates completion percentage
func (p *ProgressUpdate) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return int((p.Completed * 100) / p.Total)
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeSetupFailed     = "SETUP_FAILED"
	ErrCodeOperationFailed = "OPERATION_FAILED"
	ErrCodeDeviceAccess    = "DEVICE_ACCESS"
	ErrCodePermission      = "PERMISSION_DENIED"
)

// Process exit codes
const (
	ExitSuccess         = 0
	ExitSetupFailure    = 1
	ExitOperationFailed = 2
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode returns the CommonError code found in err's chain, or ""
func ErrorCode(err error) string {
	var commonErr *CommonError
	if errors.As(err, &commonErr) {
		return commonErr.Code
	}
	return ""
}

// ExitCode maps an error to the process exit code. Anything that prevented the
// volume from being opened is a setup failure; everything after is an operation failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch ErrorCode(err) {
	case ErrCodeOperationFailed:
		return ExitOperationFailed
	default:
		return ExitSetupFailure
	}
}
