package records

import "fmt"

const component = "FileRecordParser"

func errShort(have, need int) error {
	return fmt.Errorf("data too small: %d bytes, need %d", have, need)
}

func errRunOffset(offset uint16, length int) error {
	return fmt.Errorf("run list offset 0x%X outside attribute of %d bytes", offset, length)
}
