//go:build !windows && !linux

package device

import "os"

// RawDevicePath returns volume unchanged
func RawDevicePath(volume string) string {
	return volume
}

func openRaw(path string) (*os.File, error) {
	return os.Open(path)
}

func queryGeometry(file *os.File) (int64, int, error) {
	size, err := statSize(file)
	return size, DefaultSectorSize, err
}
