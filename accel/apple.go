package accel

import (
	"fmt"
)

// AppleHashMagic is the only magic value real producers emit ('HASH').
const AppleHashMagic uint32 = 0x48415348

// AppleHashFunctionDJB is the only hash function any real producer uses;
// Header.HashFunction is still recorded and dumped for headers that claim
// otherwise, but EqualRange refuses to guess at an unknown algorithm.
const AppleHashFunctionDJB uint16 = 0

const appleEmptyBucket uint32 = 0xFFFFFFFF

// DWInvalidOffset and DWTagNull are the sentinel defaults read_atoms uses
// when an entry carries no die_offset/die_tag atom.
const (
	DWInvalidOffset uint32 = 0xFFFFFFFF
	DWTagNull       uint32 = 0x00
)

// AtomType is the Apple-table atom field naming what a hash-match payload
// field means.
type AtomType uint16

const (
	AtomTypeNull         AtomType = 0
	AtomTypeDIEOffset    AtomType = 1
	AtomTypeCUOffset     AtomType = 2
	AtomTypeTag          AtomType = 3
	AtomTypeNameFlags    AtomType = 4
	AtomTypeTypeFlags    AtomType = 5
	AtomTypeQualNameHash AtomType = 6
)

var atomTypeNames = map[AtomType]string{
	AtomTypeNull:         "null",
	AtomTypeDIEOffset:    "die_offset",
	AtomTypeCUOffset:     "cu_offset",
	AtomTypeTag:          "die_tag",
	AtomTypeNameFlags:    "name_flags",
	AtomTypeTypeFlags:    "type_flags",
	AtomTypeQualNameHash: "qual_name_hash",
}

func (t AtomType) String() string {
	if name, ok := atomTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("atom_type_0x%x", uint16(t))
}

// Atom is one (type, form) descriptor from the header data's abbreviation
// list; it describes one field of every hash-match payload.
type Atom struct {
	Type AtomType
	Form Form
}

// Header is the Apple accelerator table's fixed 20-byte header.
type Header struct {
	Magic            uint32
	Version          uint16
	HashFunction     uint16
	BucketCount      uint32
	HashCount        uint32
	HeaderDataLength uint32
}

const appleHeaderSize = 20

// Table is a parsed Apple accelerator table (.apple_names, .apple_types,
// .apple_namespaces, or .apple_objc — the four sections share one
// on-disk layout and differ only in which atoms they carry).
type Table struct {
	ext  *Extractor
	strs *StringSection

	header        Header
	dieOffsetBase uint32
	atoms         []Atom

	bucketsBase uint32
	hashesBase  uint32
	offsetsBase uint32

	valid bool
}

// NewAppleTable wraps the raw section bytes, any relocations covering
// them, and the associated string section. Call Extract before using it.
func NewAppleTable(data []byte, relocs Relocations, strs *StringSection, littleEndian bool) *Table {
	return &Table{ext: NewExtractor(data, relocs, littleEndian), strs: strs}
}

// Extract parses the header, header data, and atom descriptors, and
// validates that every computed region fits within the section.
func (t *Table) Extract() error {
	if !t.ext.IsValidRange(0, appleHeaderSize) {
		return fmt.Errorf("%w: Section too small: cannot read header.", ErrTruncated)
	}

	var cur uint32
	magic, _ := t.ext.ReadU32(&cur)
	version, _ := t.ext.ReadU16(&cur)
	hashFunction, _ := t.ext.ReadU16(&cur)
	bucketCount, _ := t.ext.ReadU32(&cur)
	hashCount, _ := t.ext.ReadU32(&cur)
	headerDataLength, _ := t.ext.ReadU32(&cur)

	if magic != AppleHashMagic {
		return fmt.Errorf("bad apple accelerator table magic 0x%x", magic)
	}
	if version != 1 {
		return fmt.Errorf("unsupported apple accelerator table version %d", version)
	}

	required := uint64(appleHeaderSize) + uint64(headerDataLength) + 4*uint64(bucketCount) + 8*uint64(hashCount)
	if required > uint64(t.ext.Len()) {
		return fmt.Errorf("%w: Section too small: cannot read buckets and hashes.", ErrTruncated)
	}

	dieOffsetBase, err := t.ext.ReadU32(&cur)
	if err != nil {
		return fmt.Errorf("%w: Section too small: cannot read header.", ErrTruncated)
	}
	numAtoms, err := t.ext.ReadU32(&cur)
	if err != nil {
		return fmt.Errorf("%w: Section too small: cannot read header.", ErrTruncated)
	}

	atoms := make([]Atom, numAtoms)
	for i := range atoms {
		typ, err := t.ext.ReadU16(&cur)
		if err != nil {
			return fmt.Errorf("%w: Section too small: cannot read header.", ErrTruncated)
		}
		form, err := t.ext.ReadU16(&cur)
		if err != nil {
			return fmt.Errorf("%w: Section too small: cannot read header.", ErrTruncated)
		}
		atoms[i] = Atom{Type: AtomType(typ), Form: Form(form)}
	}

	t.header = Header{
		Magic:            magic,
		Version:          version,
		HashFunction:     hashFunction,
		BucketCount:      bucketCount,
		HashCount:        hashCount,
		HeaderDataLength: headerDataLength,
	}
	t.dieOffsetBase = dieOffsetBase
	t.atoms = atoms
	t.bucketsBase = appleHeaderSize + headerDataLength
	t.hashesBase = t.bucketsBase + 4*bucketCount
	t.offsetsBase = t.hashesBase + 4*hashCount
	t.valid = true
	return nil
}

// ValidateForms rejects atoms of type die_offset, die_tag, or type_flags
// whose form isn't in the constant or flag class, or is specifically
// DW_FORM_sdata (which both classes elsewhere accept but this format
// never uses for these fields).
func (t *Table) ValidateForms() bool {
	for _, atom := range t.atoms {
		switch atom.Type {
		case AtomTypeDIEOffset, AtomTypeTag, AtomTypeTypeFlags:
			if atom.Form == FormSdata {
				return false
			}
			switch atom.Form.Class() {
			case ClassConstant, ClassFlag:
			default:
				return false
			}
		}
	}
	return true
}

// GetNumBuckets returns the header's bucket count.
func (t *Table) GetNumBuckets() uint32 { return t.header.BucketCount }

// GetNumHashes returns the header's hash count.
func (t *Table) GetNumHashes() uint32 { return t.header.HashCount }

// GetAtomsDesc renders the atom descriptor list for display.
func (t *Table) GetAtomsDesc() string {
	s := ""
	for i, a := range t.atoms {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("Atom[%d]: %s (%s)", i, a.Type, a.Form)
	}
	return s
}

// djbHash computes the DJB hash (h=5381; h = 33*h + c for each byte).
func djbHash(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// readAtoms decodes one payload's worth of atom values starting at
// cursor, advancing it, and captures the die_offset/die_tag atoms (if
// present) using the defaults DW_INVALID_OFFSET/DW_TAG_null otherwise.
func (t *Table) readAtoms(cursor *uint32) ([]FormValue, uint32, uint32, error) {
	values := make([]FormValue, len(t.atoms))
	dieOffset := DWInvalidOffset
	dieTag := DWTagNull
	params := FormatParams{Version: t.header.Version, AddrSize: 0, DwarfFormat: Dwarf32}

	for i, atom := range t.atoms {
		v, err := ExtractFormValue(t.ext, cursor, atom.Form, params)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: atom %d (%s)", ErrFormExtract, i, atom.Type)
		}
		values[i] = v
		switch atom.Type {
		case AtomTypeDIEOffset:
			if u, ok := v.Unsigned(); ok {
				dieOffset = uint32(u)
			}
		case AtomTypeTag:
			if u, ok := v.Unsigned(); ok {
				dieTag = uint32(u)
			}
		}
	}
	return values, dieOffset, dieTag, nil
}

// ValueIterator lazily walks the payload entries a matching EqualRange
// hash chain points at. It pre-fetches the first entry on construction;
// callers loop `for !it.Exhausted() { ...; it.Next() }`.
type ValueIterator struct {
	table      *Table
	dataOffset uint32
	numData    uint32
	data       uint32
	exhausted  bool
	current    []FormValue
	dieOffset  uint32
	dieTag     uint32
	err        error
}

func emptyIterator(t *Table) *ValueIterator {
	return &ValueIterator{table: t, exhausted: true}
}

func newValueIterator(t *Table, cursor uint32) (*ValueIterator, error) {
	if !t.ext.IsValidRange(cursor, 4) {
		return nil, fmt.Errorf("%w: apple hash payload at offset %d", ErrTruncated, cursor)
	}
	c := cursor
	numData, err := t.ext.ReadU32(&c)
	if err != nil {
		return nil, err
	}
	it := &ValueIterator{table: t, dataOffset: c, numData: numData}
	it.advance()
	return it, it.err
}

func (it *ValueIterator) advance() {
	if it.exhausted {
		return
	}
	if it.data >= it.numData || !it.table.ext.IsValidOffset(it.dataOffset) {
		it.exhausted = true
		it.current = nil
		return
	}
	values, dieOffset, dieTag, err := it.table.readAtoms(&it.dataOffset)
	if err != nil {
		it.err = err
		it.exhausted = true
		it.current = nil
		return
	}
	it.current = values
	it.dieOffset = dieOffset
	it.dieTag = dieTag
	it.data++
}

// Exhausted reports whether iteration is complete.
func (it *ValueIterator) Exhausted() bool { return it.exhausted }

// Err returns any error encountered while decoding the current or a prior
// entry.
func (it *ValueIterator) Err() error { return it.err }

// Current returns the atom values, die offset, and die tag of the current
// entry.
func (it *ValueIterator) Current() ([]FormValue, uint32, uint32) {
	return it.current, it.dieOffset, it.dieTag
}

// Next advances to the following entry.
func (it *ValueIterator) Next() { it.advance() }

// Equal reports whether two iterators denote the same position: both
// exhausted, or the same table at the same data offset.
func (it *ValueIterator) Equal(other *ValueIterator) bool {
	if it.exhausted || other.exhausted {
		return it.exhausted == other.exhausted
	}
	return it.table == other.table && it.dataOffset == other.dataOffset
}

// EqualRange returns an iterator over every hash-match entry whose stored
// name equals key. A table that hasn't been extracted, or has no
// buckets, yields an (empty) exhausted iterator.
func (t *Table) EqualRange(key string) (*ValueIterator, error) {
	if !t.valid || t.header.BucketCount == 0 {
		return emptyIterator(t), nil
	}
	if t.header.HashFunction != AppleHashFunctionDJB {
		return nil, ErrUnsupportedHashFunction
	}

	hash := djbHash(key)
	bucket := hash % t.header.BucketCount

	index, err := readU32At(t.ext, t.bucketsBase+4*bucket)
	if err != nil {
		return nil, err
	}
	if index == appleEmptyBucket {
		return emptyIterator(t), nil
	}

	for hashIdx := index; hashIdx < t.header.HashCount; hashIdx++ {
		h, err := readU32At(t.ext, t.hashesBase+4*hashIdx)
		if err != nil {
			return nil, err
		}
		if h%t.header.BucketCount != bucket {
			break
		}
		dataOffset, err := readU32At(t.ext, t.offsetsBase+4*hashIdx)
		if err != nil {
			return nil, err
		}
		cur := dataOffset
		strOff, err := t.ext.ReadRelocatedU32(&cur)
		if err != nil {
			return nil, err
		}
		if strOff == 0 {
			break
		}
		s, err := t.strs.StringAt(strOff)
		if err != nil {
			return nil, err
		}
		if s == key {
			return newValueIterator(t, cur)
		}
	}
	return emptyIterator(t), nil
}

// Dump walks the table and writes a structured tree to sink.
func (t *Table) Dump(sink Sink) error {
	WithDict(sink, "Apple Accelerator Table", func() {
		sink.PrintHex("magic", uint64(t.header.Magic))
		sink.PrintNumber("version", uint64(t.header.Version))
		sink.PrintNumber("hash_function", uint64(t.header.HashFunction))
		sink.PrintNumber("bucket_count", uint64(t.header.BucketCount))
		sink.PrintNumber("hash_count", uint64(t.header.HashCount))
		sink.PrintNumber("header_data_length", uint64(t.header.HeaderDataLength))
		sink.PrintHex("die_offset_base", uint64(t.dieOffsetBase))

		WithList(sink, "atoms", func() {
			for i, a := range t.atoms {
				sink.PrintString(fmt.Sprintf("atom[%d]", i), fmt.Sprintf("%s (%s)", a.Type, a.Form))
			}
		})

		WithList(sink, "buckets", func() {
			for b := uint32(0); b < t.header.BucketCount; b++ {
				t.dumpBucket(sink, b)
			}
		})
	})
	return nil
}

func (t *Table) dumpBucket(sink Sink, bucket uint32) {
	label := fmt.Sprintf("Bucket %d", bucket)
	index, err := readU32At(t.ext, t.bucketsBase+4*bucket)
	if err != nil || index == appleEmptyBucket {
		sink.PrintString(label, "EMPTY")
		return
	}
	WithDict(sink, label, func() {
		for hashIdx := index; hashIdx < t.header.HashCount; hashIdx++ {
			h, err := readU32At(t.ext, t.hashesBase+4*hashIdx)
			if err != nil || h%t.header.BucketCount != bucket {
				return
			}
			dataOffset, err := readU32At(t.ext, t.offsetsBase+4*hashIdx)
			if err != nil {
				return
			}
			t.dumpNamesAt(sink, dataOffset)
		}
	})
}

func (t *Table) dumpNamesAt(sink Sink, dataOffset uint32) {
	cur := dataOffset
	for {
		site := cur
		strOff, err := t.ext.ReadRelocatedU32(&cur)
		if err != nil || strOff == 0 {
			return
		}
		name, nameErr := t.strs.StringAt(strOff)
		if nameErr != nil {
			name = fmt.Sprintf("<invalid string offset 0x%x>", strOff)
		}
		it, err := newValueIterator(t, cur)
		if err != nil {
			sink.PrintString(fmt.Sprintf("name@0x%x", site), fmt.Sprintf("error: %v", err))
			return
		}
		WithDict(sink, name, func() {
			idx := 0
			for !it.Exhausted() {
				values, dieOffset, dieTag := it.Current()
				WithDict(sink, fmt.Sprintf("data[%d]", idx), func() {
					sink.PrintHex("die_offset", uint64(dieOffset))
					sink.PrintHex("die_tag", uint64(dieTag))
					for i, v := range values {
						v.PrintTo(sink, fmt.Sprintf("atom[%d]", i), t.strs)
					}
				})
				idx++
				it.Next()
			}
			if it.Err() != nil {
				sink.PrintString("error", it.Err().Error())
			}
		})
		cur = it.dataOffset
	}
}
