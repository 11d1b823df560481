package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractorFixedWidthReads(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ext := NewExtractor(data, nil, true)

	var cur uint32
	u8, err := ext.ReadU8(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), u8)
	assert.Equal(t, uint32(1), cur)

	u16, err := ext.ReadU16(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := ext.ReadU32(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), u32)
}

func TestExtractorReadPastEndLeavesCursorUntouched(t *testing.T) {
	ext := NewExtractor([]byte{0x01, 0x02}, nil, true)
	cur := uint32(1)
	_, err := ext.ReadU32(&cur)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, uint32(1), cur)
}

func TestExtractorULEB128(t *testing.T) {
	// 624485 encodes as E5 8E 26 per the DWARF spec's worked example.
	ext := NewExtractor([]byte{0xE5, 0x8E, 0x26}, nil, true)
	var cur uint32
	v, err := ext.ReadULEB128(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint64(624485), v)
	assert.Equal(t, uint32(3), cur)
}

func TestExtractorSLEB128(t *testing.T) {
	// -624485 encodes as 9B F1 59 per the DWARF spec's worked example.
	ext := NewExtractor([]byte{0x9B, 0xF1, 0x59}, nil, true)
	var cur uint32
	v, err := ext.ReadSLEB128(&cur)
	require.NoError(t, err)
	assert.Equal(t, int64(-624485), v)
}

func TestExtractorRelocatedRead(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	relocs := Relocations{0: 0xdeadbeef}
	ext := NewExtractor(data, relocs, true)

	var cur uint32
	v, err := ext.ReadRelocatedU32(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
	assert.Equal(t, uint32(4), cur)
}

func TestExtractorUnrelocatedReadReturnsRawBytes(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00, 0x00}
	ext := NewExtractor(data, nil, true)
	var cur uint32
	v, err := ext.ReadRelocatedU32(&cur)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestExtractorIsValidRangeDetectsOverflow(t *testing.T) {
	ext := NewExtractor(make([]byte, 8), nil, true)
	assert.True(t, ext.IsValidRange(0, 8))
	assert.False(t, ext.IsValidRange(0, 9))
	assert.False(t, ext.IsValidRange(1, 0xFFFFFFFF))
}

func TestExtractorReadCStringUnterminatedFails(t *testing.T) {
	ext := NewExtractor([]byte{'a', 'b', 'c'}, nil, true)
	var cur uint32
	_, err := ext.ReadCString(&cur)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}
