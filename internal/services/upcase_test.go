package services

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawcopy/internal/types"
)

func TestUpCaseTableCompare(t *testing.T) {
	table := DefaultUpCaseTable()

	tests := []struct {
		a, b string
		want int
	}{
		{a: "abc", b: "ABC", want: 0},
		{a: "abc", b: "abd", want: -1},
		{a: "ab", b: "abc", want: -1},
		{a: "b", b: "ABC", want: 1},
		{a: "_", b: "a", want: 1},
		{a: "ärger", b: "ÄRGER", want: 0},
		{a: "$MFT", b: "$MftMirr", want: -1},
		{a: "z", b: "\U0001F600", want: -1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Compare(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, -tt.want, table.Compare(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
	assert.True(t, table.Equal("System32", "SYSTEM32"))
	assert.False(t, table.Equal("System32", "System3"))
}

func TestUpCaseTableCompareUnits(t *testing.T) {
	table := DefaultUpCaseTable()

	tests := []struct {
		name string
		a, b []uint16
		want int
	}{
		{name: "case folded", a: []uint16{'a', 'b'}, b: []uint16{'A', 'B'}, want: 0},
		{name: "unpaired high surrogate below private use", a: []uint16{0xD800, 'x'}, b: []uint16{0xE000, 'y'}, want: -1},
		{name: "unpaired low surrogate below replacement char", a: []uint16{0xDC00}, b: []uint16{0xFFFD}, want: -1},
		{name: "distinct unpaired surrogates", a: []uint16{0xD800}, b: []uint16{0xDBFF}, want: -1},
		{name: "prefix", a: []uint16{0xD800}, b: []uint16{0xD800, 'a'}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.CompareUnits(tt.a, tt.b))
			assert.Equal(t, -tt.want, table.CompareUnits(tt.b, tt.a))
		})
	}
}

func TestNewUpCaseTable(t *testing.T) {
	data := make([]byte, upCaseEntries*2)
	for i := 0; i < upCaseEntries; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i))
	}
	// a table that folds nothing
	identity, err := NewUpCaseTable(data)
	require.NoError(t, err)
	assert.Equal(t, uint16('a'), identity.ToUpper('a'))
	assert.Equal(t, 1, identity.Compare("a", "B"))
	assert.Equal(t, -1, DefaultUpCaseTable().Compare("a", "B"))

	_, err = NewUpCaseTable(data[:100])
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
}

func TestDefaultUpCaseTable(t *testing.T) {
	table := DefaultUpCaseTable()
	assert.Same(t, table, DefaultUpCaseTable())
	assert.Equal(t, uint16('A'), table.ToUpper('a'))
	assert.Equal(t, uint16(0x00C4), table.ToUpper(0x00E4))
	assert.Equal(t, uint16(0xD83D), table.ToUpper(0xD83D), "surrogates map to themselves")
	assert.Equal(t, uint16('1'), table.ToUpper('1'))
}
