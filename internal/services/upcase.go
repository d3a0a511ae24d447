package services

import (
	"encoding/binary"
	"sync"
	"unicode"
	"unicode/utf16"

	"github.com/deploymenttheory/go-rawcopy/internal/interfaces"
	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

const (
	componentUpCase = "UpCase"

	// upCaseEntries is the number of UTF-16 code units the $UpCase table maps
	upCaseEntries = 0x10000
)

// UpCaseTable maps UTF-16 code units to upper case. Directory indexes are
// sorted by the table of the volume that wrote them.
type UpCaseTable struct {
	table []uint16
}

var _ interfaces.NameCollator = (*UpCaseTable)(nil)

var (
	defaultUpCase     *UpCaseTable
	defaultUpCaseOnce sync.Once
)

// NewUpCaseTable decodes a 128KB $UpCase value
func NewUpCaseTable(data []byte) (*UpCaseTable, error) {
	if len(data) != upCaseEntries*2 {
		return nil, types.NewError(types.ErrMalformedRecord, componentUpCase,
			"$UpCase holds %d bytes, expected %d", len(data), upCaseEntries*2).WithRecord(types.MftRecordUpCase)
	}
	table := make([]uint16, upCaseEntries)
	for i := range table {
		table[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return &UpCaseTable{table: table}, nil
}

// DefaultUpCaseTable derives a table from the Unicode simple case mappings. It
// is used when a volume's $UpCase cannot be read.
func DefaultUpCaseTable() *UpCaseTable {
	defaultUpCaseOnce.Do(func() {
		table := make([]uint16, upCaseEntries)
		for i := range table {
			table[i] = uint16(i)
			if utf16.IsSurrogate(rune(i)) {
				continue
			}
			if upper := unicode.ToUpper(rune(i)); upper <= 0xFFFF {
				table[i] = uint16(upper)
			}
		}
		defaultUpCase = &UpCaseTable{table: table}
	})
	return defaultUpCase
}

// LoadUpCase reads the $UpCase table from record 10
func LoadUpCase(loader interfaces.FileRecordLoader, reader interfaces.AttributeReader) (*UpCaseTable, error) {
	record, err := loader.LoadRecord(types.MftRecordUpCase)
	if err != nil {
		return nil, err
	}
	attr, ok := record.FindAttribute(types.AttrData, "")
	if !ok {
		return nil, types.NewError(types.ErrAttributeNotFound, componentUpCase, "$UpCase has no data").
			WithRecord(types.MftRecordUpCase).WithAttribute(types.AttrData)
	}
	data, err := reader.ReadAll(attr)
	if err != nil {
		return nil, err
	}
	return NewUpCaseTable(data)
}

// ToUpper maps one code unit
func (t *UpCaseTable) ToUpper(u uint16) uint16 {
	return t.table[u]
}

// Compare orders names by their upper-cased code units, then by length
func (t *UpCaseTable) Compare(a, b string) int {
	return t.CompareUnits(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// CompareUnits is Compare on raw code units. Unpaired surrogates keep their
// own value, as in the on-disk index order.
func (t *UpCaseTable) CompareUnits(ua, ub []uint16) int {
	for i := 0; i < len(ua) && i < len(ub); i++ {
		x, y := t.table[ua[i]], t.table[ub[i]]
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}

// Equal reports whether two names are the same ignoring case
func (t *UpCaseTable) Equal(a, b string) bool {
	return t.Compare(a, b) == 0
}
