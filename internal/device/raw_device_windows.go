//go:build windows

package device

import (
	"os"
	"regexp"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	ioctlDiskGetDriveGeometry = 0x00070000
	ioctlDiskGetLengthInfo    = 0x0007405C
)

// diskGeometry mirrors DISK_GEOMETRY
type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

var driveLetter = regexp.MustCompile(`^[A-Za-z]:\\?$`)

// RawDevicePath maps a drive letter such as "C:" to the volume device path \\.\C:
func RawDevicePath(volume string) string {
	if driveLetter.MatchString(volume) {
		return `\\.\` + strings.ToUpper(volume[:2])
	}
	return volume
}

func openRaw(path string) (*os.File, error) {
	path = RawDevicePath(path)
	if !strings.HasPrefix(path, `\\.\`) {
		return os.Open(path)
	}

	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(handle), path), nil
}

func queryGeometry(file *os.File) (int64, int, error) {
	handle := windows.Handle(file.Fd())

	var length int64
	var returned uint32
	err := windows.DeviceIoControl(handle, ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&length)), uint32(unsafe.Sizeof(length)), &returned, nil)
	if err != nil {
		// Image files do not answer disk ioctls
		size, statErr := statSize(file)
		return size, DefaultSectorSize, statErr
	}

	sectorSize := DefaultSectorSize
	var geometry diskGeometry
	err = windows.DeviceIoControl(handle, ioctlDiskGetDriveGeometry, nil, 0,
		(*byte)(unsafe.Pointer(&geometry)), uint32(unsafe.Sizeof(geometry)), &returned, nil)
	if err == nil && geometry.BytesPerSector != 0 {
		sectorSize = int(geometry.BytesPerSector)
	}
	return length, sectorSize, nil
}
