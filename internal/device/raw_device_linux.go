//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// RawDevicePath returns volume unchanged; block devices are addressed by path
func RawDevicePath(volume string) string {
	return volume
}

func openRaw(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

func queryGeometry(file *os.File) (int64, int, error) {
	size, err := statSize(file)
	if err != nil {
		return 0, 0, err
	}

	info, err := file.Stat()
	if err != nil {
		return 0, 0, err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return size, DefaultSectorSize, nil
	}

	sectorSize, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err != nil || sectorSize <= 0 {
		return size, DefaultSectorSize, nil
	}
	return size, sectorSize, nil
}
