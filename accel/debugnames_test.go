package accel

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nameIndexBuilder assembles a single .debug_names unit contribution,
// mirroring the on-disk layout field by field.
type nameIndexBuilder struct {
	cuCount, localTUCount, foreignTUCount uint32
	bucketCount, nameCount                uint32
	augmentation                          []byte
	abbrevTable                           []byte
	stringOffsets, entryOffsets           []uint32
	buckets, hashes                       []uint32
	entries                               []byte
}

func (b *nameIndexBuilder) build() []byte {
	body := new(bytes.Buffer)
	binary.Write(body, binary.LittleEndian, uint16(5)) // version
	binary.Write(body, binary.LittleEndian, uint16(0)) // padding
	binary.Write(body, binary.LittleEndian, b.cuCount)
	binary.Write(body, binary.LittleEndian, b.localTUCount)
	binary.Write(body, binary.LittleEndian, b.foreignTUCount)
	binary.Write(body, binary.LittleEndian, b.bucketCount)
	binary.Write(body, binary.LittleEndian, b.nameCount)
	binary.Write(body, binary.LittleEndian, uint32(len(b.abbrevTable)))
	binary.Write(body, binary.LittleEndian, uint32(len(b.augmentation)))
	padded := (len(b.augmentation) + 3) &^ 3
	augPadded := make([]byte, padded)
	copy(augPadded, b.augmentation)
	body.Write(augPadded)

	for _, v := range b.buckets {
		binary.Write(body, binary.LittleEndian, v)
	}
	for _, v := range b.hashes {
		binary.Write(body, binary.LittleEndian, v)
	}
	for _, v := range b.stringOffsets {
		binary.Write(body, binary.LittleEndian, v)
	}
	for _, v := range b.entryOffsets {
		binary.Write(body, binary.LittleEndian, v)
	}
	body.Write(b.abbrevTable)
	body.Write(b.entries)

	out := new(bytes.Buffer)
	binary.Write(out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func strSectionWithNamesAt(offsets []uint32, names []string) *StringSection {
	size := uint32(0)
	for i, off := range offsets {
		end := off + uint32(len(names[i])) + 1
		if end > size {
			size = end
		}
	}
	data := make([]byte, size)
	for i, off := range offsets {
		copy(data[off:], names[i])
	}
	return NewStringSection(data)
}

func TestDebugNamesNoHashTable(t *testing.T) {
	stringOffsets := []uint32{10, 20, 30}
	names := []string{"alpha", "beta", "gamma"}
	b := &nameIndexBuilder{
		bucketCount:   0,
		nameCount:     3,
		abbrevTable:   []byte{0x00}, // empty abbrev table: immediate terminator
		stringOffsets: stringOffsets,
		entryOffsets:  []uint32{0, 0, 0},
		entries:       []byte{0x00}, // every name's entry list is immediately empty
	}
	data := b.build()
	strs := strSectionWithNamesAt(stringOffsets, names)

	dn, err := ExtractDebugNames(data, nil, strs, true)
	require.NoError(t, err)
	require.Len(t, dn.Units, 1)

	unit := dn.Units[0]
	assert.Equal(t, uint32(0), unit.header.BucketCount)
	for i, want := range names {
		got, _, err := unit.GetNameTableEntry(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDebugNamesDuplicateAbbrevCode(t *testing.T) {
	// Two abbreviations both declaring code=1: ULEB128 code(1) tag(0x24)
	// terminator(0,0), then code(1) tag(0x25) terminator(0,0), then the
	// table terminator 0.
	abbrev := []byte{
		0x01, 0x24, 0x00, 0x00,
		0x01, 0x25, 0x00, 0x00,
		0x00,
	}
	b := &nameIndexBuilder{
		bucketCount: 0,
		nameCount:   0,
		abbrevTable: abbrev,
	}
	data := b.build()

	_, err := ExtractDebugNames(data, nil, NewStringSection(nil), true)
	assert.ErrorIs(t, err, ErrMalformedAbbrev)
}

func TestDebugNamesTruncatedAugmentation(t *testing.T) {
	body := new(bytes.Buffer)
	binary.Write(body, binary.LittleEndian, uint16(5))
	binary.Write(body, binary.LittleEndian, uint16(0))
	binary.Write(body, binary.LittleEndian, uint32(0)) // cu_count
	binary.Write(body, binary.LittleEndian, uint32(0)) // local_tu_count
	binary.Write(body, binary.LittleEndian, uint32(0)) // foreign_tu_count
	binary.Write(body, binary.LittleEndian, uint32(0)) // bucket_count
	binary.Write(body, binary.LittleEndian, uint32(0)) // name_count
	binary.Write(body, binary.LittleEndian, uint32(0)) // abbrev_table_size
	binary.Write(body, binary.LittleEndian, uint32(8)) // augmentation_string_size: claims 8
	body.Write([]byte{'a', 'b', 'c', 'd'})              // only 4 bytes actually present

	out := new(bytes.Buffer)
	binary.Write(out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())

	_, err := ExtractDebugNames(out.Bytes(), nil, NewStringSection(nil), true)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDebugNamesAbbrevCodesAreUnique(t *testing.T) {
	abbrev := []byte{
		0x01, 0x24, 0x03, 0x08, 0x00, 0x00, // code 1, tag 0x24, one attr (idx=3,form=8)
		0x02, 0x2e, 0x00, 0x00, // code 2, tag 0x2e, no attrs
		0x00,
	}
	b := &nameIndexBuilder{abbrevTable: abbrev}
	data := b.build()

	dn, err := ExtractDebugNames(data, nil, NewStringSection(nil), true)
	require.NoError(t, err)
	unit := dn.Units[0]

	seen := map[uint64]bool{}
	for _, code := range unit.abbrevs.order {
		assert.False(t, seen[code], "duplicate code in insertion order %d", code)
		seen[code] = true
	}
	assert.Len(t, unit.abbrevs.order, 2)
}

func TestDebugNamesGetEntrySentinelOnEmptyList(t *testing.T) {
	b := &nameIndexBuilder{
		nameCount:     1,
		abbrevTable:   []byte{0x00},
		stringOffsets: []uint32{0},
		entryOffsets:  []uint32{0},
		entries:       []byte{0x00},
	}
	data := b.build()
	strs := strSectionWithNamesAt([]uint32{0}, []string{"x"})

	dn, err := ExtractDebugNames(data, nil, strs, true)
	require.NoError(t, err)
	unit := dn.Units[0]

	_, entryOffset, err := unit.GetNameTableEntry(0)
	require.NoError(t, err)
	cur := entryOffset
	entry, err := unit.GetEntry(&cur)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
