package accel

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appleBuilder assembles a synthetic Apple accelerator table section byte
// by byte, mirroring the on-disk layout in order, so scenario tests read
// like the layout table in the accompanying specification.
type appleBuilder struct {
	buf          bytes.Buffer
	bucketCount  uint32
	hashCount    uint32
	atoms        []Atom
	headerDataSz uint32
}

func newAppleBuilder(bucketCount, hashCount uint32, atoms []Atom) *appleBuilder {
	return &appleBuilder{bucketCount: bucketCount, hashCount: hashCount, atoms: atoms, headerDataSz: 8 + uint32(len(atoms))*4}
}

func (b *appleBuilder) writeHeader() {
	binary.Write(&b.buf, binary.LittleEndian, AppleHashMagic)
	binary.Write(&b.buf, binary.LittleEndian, uint16(1))
	binary.Write(&b.buf, binary.LittleEndian, uint16(0))
	binary.Write(&b.buf, binary.LittleEndian, b.bucketCount)
	binary.Write(&b.buf, binary.LittleEndian, b.hashCount)
	binary.Write(&b.buf, binary.LittleEndian, b.headerDataSz)
	binary.Write(&b.buf, binary.LittleEndian, uint32(0)) // die_offset_base
	binary.Write(&b.buf, binary.LittleEndian, uint32(len(b.atoms)))
	for _, a := range b.atoms {
		binary.Write(&b.buf, binary.LittleEndian, uint16(a.Type))
		binary.Write(&b.buf, binary.LittleEndian, uint16(a.Form))
	}
}

func (b *appleBuilder) writeBuckets(entries []uint32) {
	for _, e := range entries {
		binary.Write(&b.buf, binary.LittleEndian, e)
	}
}

func (b *appleBuilder) writeU32s(vals []uint32) {
	for _, v := range vals {
		binary.Write(&b.buf, binary.LittleEndian, v)
	}
}

func (b *appleBuilder) bytes() []byte { return b.buf.Bytes() }

func strSectionWithNameAt(offset int, name string) *StringSection {
	data := make([]byte, offset+len(name)+1)
	copy(data[offset:], name)
	return NewStringSection(data)
}

func TestAppleEmptyBuckets(t *testing.T) {
	b := newAppleBuilder(2, 0, nil)
	b.writeHeader()
	b.writeBuckets([]uint32{appleEmptyBucket, appleEmptyBucket})

	table := NewAppleTable(b.bytes(), nil, NewStringSection(nil), true)
	require.NoError(t, table.Extract())

	it, err := table.EqualRange("x")
	require.NoError(t, err)
	assert.True(t, it.Exhausted())
}

func buildSingleHitTable(t *testing.T) (*Table, *StringSection) {
	t.Helper()
	atoms := []Atom{{Type: AtomTypeDIEOffset, Form: FormData4}}
	b := newAppleBuilder(1, 1, atoms)
	b.writeHeader()

	hash := djbHash("foo")
	bucket := hash % 1
	_ = bucket

	// offsets[0] points just past the fixed header+buckets+hashes+offsets
	// regions, where the name chain begins.
	chainOffset := uint32(20) + b.headerDataSz + 4*b.bucketCount + 4*b.hashCount + 4*b.hashCount

	b.writeBuckets([]uint32{0})
	b.writeU32s([]uint32{hash})
	b.writeU32s([]uint32{chainOffset})

	binary.Write(&b.buf, binary.LittleEndian, uint32(5)) // string_offset
	binary.Write(&b.buf, binary.LittleEndian, uint32(1)) // num_data
	binary.Write(&b.buf, binary.LittleEndian, uint32(0x100))

	strs := strSectionWithNameAt(5, "foo")
	table := NewAppleTable(b.bytes(), nil, strs, true)
	require.NoError(t, table.Extract())
	assert.True(t, table.ValidateForms())
	return table, strs
}

func TestAppleSingleHit(t *testing.T) {
	table, _ := buildSingleHitTable(t)

	it, err := table.EqualRange("foo")
	require.NoError(t, err)
	require.False(t, it.Exhausted())
	_, dieOffset, _ := it.Current()
	assert.Equal(t, uint32(0x100), dieOffset)
	it.Next()
	assert.True(t, it.Exhausted())

	miss, err := table.EqualRange("bar")
	require.NoError(t, err)
	assert.True(t, miss.Exhausted())
}

func TestAppleTwoEntriesSameName(t *testing.T) {
	atoms := []Atom{{Type: AtomTypeDIEOffset, Form: FormData4}}
	b := newAppleBuilder(1, 1, atoms)
	b.writeHeader()

	hash := djbHash("foo")
	chainOffset := uint32(20) + b.headerDataSz + 4*b.bucketCount + 4*b.hashCount + 4*b.hashCount

	b.writeBuckets([]uint32{0})
	b.writeU32s([]uint32{hash})
	b.writeU32s([]uint32{chainOffset})

	binary.Write(&b.buf, binary.LittleEndian, uint32(5)) // string_offset
	binary.Write(&b.buf, binary.LittleEndian, uint32(2)) // num_data
	binary.Write(&b.buf, binary.LittleEndian, uint32(0x10))
	binary.Write(&b.buf, binary.LittleEndian, uint32(0x20))
	binary.Write(&b.buf, binary.LittleEndian, uint32(0)) // chain terminator

	strs := strSectionWithNameAt(5, "foo")
	table := NewAppleTable(b.bytes(), nil, strs, true)
	require.NoError(t, table.Extract())

	it, err := table.EqualRange("foo")
	require.NoError(t, err)

	var offsets []uint32
	for !it.Exhausted() {
		_, dieOffset, _ := it.Current()
		offsets = append(offsets, dieOffset)
		it.Next()
	}
	assert.Equal(t, []uint32{0x10, 0x20}, offsets)
}

func TestAppleValidateFormsRejectsSdataForDieOffset(t *testing.T) {
	table := &Table{atoms: []Atom{{Type: AtomTypeDIEOffset, Form: FormSdata}}}
	assert.False(t, table.ValidateForms())
}

func TestAppleValidateFormsRejectsNonConstantFlagForm(t *testing.T) {
	table := &Table{atoms: []Atom{{Type: AtomTypeTag, Form: FormStrp}}}
	assert.False(t, table.ValidateForms())
}

func TestAppleValidateFormsAcceptsFlagAndConstant(t *testing.T) {
	table := &Table{atoms: []Atom{
		{Type: AtomTypeDIEOffset, Form: FormData4},
		{Type: AtomTypeTypeFlags, Form: FormFlag},
		{Type: AtomTypeCUOffset, Form: FormStrp}, // non-restricted atom type, any form ok
	}}
	assert.True(t, table.ValidateForms())
}

func TestAppleTruncatedHeaderFails(t *testing.T) {
	table := NewAppleTable([]byte{0x01, 0x02}, nil, nil, true)
	err := table.Extract()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDJBHashMatchesKnownValue(t *testing.T) {
	// The empty string hashes to the DJB seed, h=5381.
	h := djbHash("")
	assert.Equal(t, uint32(5381), h)
}
