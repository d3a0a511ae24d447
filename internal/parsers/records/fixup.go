package records

import (
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

// ApplyFixups verifies and undoes the multi-sector transfer protection of a FILE
// record or INDX block in place. The last two bytes of every 512-byte stride must
// equal the update sequence number; a mismatch means a torn write. The array
// must cover every stride of the buffer.
func ApplyFixups(buf *types.ByteBuffer, component string) error {
	usaOffset, err := buf.Uint16At(types.OffsetRecordUSAOffset)
	if err != nil {
		return types.NewError(types.ErrMalformedRecord, component, "missing update sequence header").WithCause(err)
	}
	usaCount, _ := buf.Uint16At(types.OffsetRecordUSACount)

	strides := buf.Len() / types.FixupStride
	if int(usaCount)-1 != strides || strides == 0 {
		return types.NewError(types.ErrMalformedRecord, component,
			"update sequence count %d does not fit %d bytes", usaCount, buf.Len())
	}

	usa, err := buf.Slice(int(usaOffset), int(usaCount)*2)
	if err != nil {
		return types.NewError(types.ErrMalformedRecord, component,
			"update sequence array at 0x%X outside record", usaOffset).WithCause(err)
	}
	usn := uint16(usa[0]) | uint16(usa[1])<<8

	data := buf.Bytes()
	for i := 1; i < int(usaCount); i++ {
		pos := i*types.FixupStride - 2
		stored := uint16(data[pos]) | uint16(data[pos+1])<<8
		if stored != usn {
			return types.NewError(types.ErrRecordDamaged, component,
				"fixup mismatch in stride %d: found 0x%04X, expected 0x%04X", i-1, stored, usn)
		}
	}
	for i := 1; i < int(usaCount); i++ {
		pos := i*types.FixupStride - 2
		data[pos] = usa[2*i]
		data[pos+1] = usa[2*i+1]
	}
	return nil
}
