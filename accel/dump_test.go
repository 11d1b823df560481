package accel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDictClosesOnPanic(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTreeSink(&buf)

	func() {
		defer func() { recover() }()
		WithDict(sink, "outer", func() {
			panic("boom")
		})
	}()

	out := buf.String()
	assert.Contains(t, out, "outer")
	assert.Equal(t, 1, strings.Count(out, "{"))
	assert.Equal(t, 1, strings.Count(out, "}"))
}

func TestWithListNesting(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTreeSink(&buf)

	WithList(sink, "items", func() {
		sink.PrintString("a", "1")
		WithDict(sink, "nested", func() {
			sink.PrintNumber("b", 2)
		})
	})

	out := buf.String()
	assert.Contains(t, out, "items")
	assert.Contains(t, out, "nested")
	assert.Equal(t, 1, strings.Count(out, "["))
	assert.Equal(t, 1, strings.Count(out, "]"))
}

func TestTreeSinkPrintHexFormatsLowercase(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTreeSink(&buf)
	sink.PrintHex("die_offset", 0xABCDEF)
	assert.Contains(t, buf.String(), "0xabcdef")
}

func TestAppleDumpShowsEmptyBuckets(t *testing.T) {
	b := newAppleBuilder(2, 0, nil)
	b.writeHeader()
	b.writeBuckets([]uint32{appleEmptyBucket, appleEmptyBucket})

	table := NewAppleTable(b.bytes(), nil, NewStringSection(nil), true)
	require.NoError(t, table.Extract())

	var buf bytes.Buffer
	sink := NewTreeSink(&buf)
	require.NoError(t, table.Dump(sink))

	out := buf.String()
	assert.Contains(t, out, "Bucket 0")
	assert.Contains(t, out, "Bucket 1")
	assert.Contains(t, out, "EMPTY")
}

func TestDebugNamesDumpListsNamesWithoutHashTable(t *testing.T) {
	stringOffsets := []uint32{10, 20, 30}
	names := []string{"alpha", "beta", "gamma"}
	b := &nameIndexBuilder{
		bucketCount:   0,
		nameCount:     3,
		abbrevTable:   []byte{0x00},
		stringOffsets: stringOffsets,
		entryOffsets:  []uint32{0, 0, 0},
		entries:       []byte{0x00},
	}
	data := b.build()
	strs := strSectionWithNamesAt(stringOffsets, names)

	dn, err := ExtractDebugNames(data, nil, strs, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	sink := NewTreeSink(&buf)
	require.NoError(t, dn.Dump(sink))

	out := buf.String()
	for _, name := range names {
		assert.Contains(t, out, name)
	}
}
