package accel

import (
	"fmt"
)

// AttributeEncoding is a DWARF v5 DW_IDX_* index attribute code naming
// what one abbreviation's value slot means.
type AttributeEncoding uint32

const (
	IdxCompileUnit AttributeEncoding = 1
	IdxTypeUnit    AttributeEncoding = 2
	IdxDieOffset   AttributeEncoding = 3
	IdxParent      AttributeEncoding = 4
	IdxTypeHash    AttributeEncoding = 5
)

var idxNames = map[AttributeEncoding]string{
	IdxCompileUnit: "DW_IDX_compile_unit",
	IdxTypeUnit:    "DW_IDX_type_unit",
	IdxDieOffset:   "DW_IDX_die_offset",
	IdxParent:      "DW_IDX_parent",
	IdxTypeHash:    "DW_IDX_type_hash",
}

func (a AttributeEncoding) String() string {
	if name, ok := idxNames[a]; ok {
		return name
	}
	return fmt.Sprintf("DW_IDX_unknown_0x%x", uint32(a))
}

// AbbrevAttr is one (index attribute, form) pair within an abbreviation.
type AbbrevAttr struct {
	Index AttributeEncoding
	Form  Form
}

// Abbrev is one .debug_names abbreviation declaration: a DIE tag plus the
// ordered list of index attributes every entry using this code carries.
type Abbrev struct {
	Code  uint64
	Tag   uint32
	Attrs []AbbrevAttr
}

// AbbrevSet is an insertion-ordered set of abbreviations keyed by code.
// Code 0 is the table terminator and is never a member.
type AbbrevSet struct {
	order  []uint64
	byCode map[uint64]*Abbrev
}

func newAbbrevSet() *AbbrevSet {
	return &AbbrevSet{byCode: make(map[uint64]*Abbrev)}
}

func (s *AbbrevSet) insert(a *Abbrev) error {
	if a.Code == 0 {
		return fmt.Errorf("%w: abbreviation code 0 is reserved as the table terminator", ErrMalformedAbbrev)
	}
	if _, exists := s.byCode[a.Code]; exists {
		return fmt.Errorf("%w: duplicate abbreviation code %d", ErrMalformedAbbrev, a.Code)
	}
	s.byCode[a.Code] = a
	s.order = append(s.order, a.Code)
	return nil
}

func (s *AbbrevSet) get(code uint64) (*Abbrev, bool) {
	a, ok := s.byCode[code]
	return a, ok
}

// Entry is one decoded name-index entry: a DIE tag plus the index
// attribute values an Abbrev declared for it.
type Entry struct {
	Abbrev *Abbrev
	Values []FormValue
}

// Tag reports the entry's DW_TAG code.
func (e *Entry) Tag() uint32 { return e.Abbrev.Tag }

func (e *Entry) valueFor(idx AttributeEncoding) (FormValue, bool) {
	for i, a := range e.Abbrev.Attrs {
		if a.Index == idx {
			return e.Values[i], true
		}
	}
	return FormValue{}, false
}

// CUIndex reports the entry's DW_IDX_compile_unit value, if present.
func (e *Entry) CUIndex() (uint64, bool) {
	v, ok := e.valueFor(IdxCompileUnit)
	if !ok {
		return 0, false
	}
	u, _ := v.Unsigned()
	return u, true
}

// DieOffset reports the entry's DW_IDX_die_offset value, if present.
func (e *Entry) DieOffset() (uint64, bool) {
	v, ok := e.valueFor(IdxDieOffset)
	if !ok {
		return 0, false
	}
	u, _ := v.Unsigned()
	return u, true
}

// Parent reports the entry's DW_IDX_parent offset into the entry pool,
// if present and not DW_FORM_flag_present (which marks "no parent").
func (e *Entry) Parent() (uint64, bool) {
	v, ok := e.valueFor(IdxParent)
	if !ok || v.Form == FormFlagPresent {
		return 0, false
	}
	u, _ := v.Unsigned()
	return u, true
}

// UnitHeader is one .debug_names contribution's fixed-layout header, up
// to and including the augmentation string.
type UnitHeader struct {
	UnitLength             uint64
	Version                uint16
	CUCount                uint32
	LocalTUCount           uint32
	ForeignTUCount         uint32
	BucketCount            uint32
	NameCount              uint32
	AbbrevTableSize        uint32
	AugmentationStringSize uint32
	Augmentation           string
	Format                 DwarfFormat

	unitStart uint32 // offset of the initial length field
	unitEnd   uint32 // one past the last byte of this unit's contribution
	headerEnd uint32 // offset of the first byte after the augmentation string
}

func offsetSizeFor(f DwarfFormat) uint32 {
	if f == Dwarf64 {
		return 8
	}
	return 4
}

func parseUnitHeader(ext *Extractor, cursor *uint32) (UnitHeader, error) {
	var h UnitHeader
	h.unitStart = *cursor

	initial, err := ext.ReadU32(cursor)
	if err != nil {
		return h, fmt.Errorf("%w: .debug_names unit header truncated (initial length)", ErrTruncated)
	}
	if initial == 0xffffffff {
		h.Format = Dwarf64
		length, err := ext.ReadU64(cursor)
		if err != nil {
			return h, fmt.Errorf("%w: .debug_names unit header truncated (64-bit length)", ErrTruncated)
		}
		h.UnitLength = length
	} else {
		h.Format = Dwarf32
		h.UnitLength = uint64(initial)
	}
	lengthFieldEnd := *cursor
	h.unitEnd = lengthFieldEnd + uint32(h.UnitLength)

	version, err := ext.ReadU16(cursor)
	if err != nil {
		return h, fmt.Errorf("%w: .debug_names unit header truncated (version)", ErrTruncated)
	}
	h.Version = version
	if _, err := ext.ReadU16(cursor); err != nil { // padding
		return h, fmt.Errorf("%w: .debug_names unit header truncated (padding)", ErrTruncated)
	}

	fields := []*uint32{&h.CUCount, &h.LocalTUCount, &h.ForeignTUCount, &h.BucketCount, &h.NameCount, &h.AbbrevTableSize, &h.AugmentationStringSize}
	for _, f := range fields {
		v, err := ext.ReadU32(cursor)
		if err != nil {
			return h, fmt.Errorf("%w: .debug_names unit header truncated (counts)", ErrTruncated)
		}
		*f = v
	}

	padded := (h.AugmentationStringSize + 3) &^ 3
	aug, err := ext.ReadBytes(cursor, padded)
	if err != nil {
		return h, fmt.Errorf("%w: .debug_names augmentation string truncated", ErrTruncated)
	}
	h.Augmentation = decodeAugmentation(aug[:h.AugmentationStringSize])
	h.headerEnd = *cursor
	return h, nil
}

// NameIndex is one parsed .debug_names unit: a compile-unit/type-unit
// index, its hash table, its name table, its abbreviation table, and the
// entry pool those abbreviations describe.
type NameIndex struct {
	ext    *Extractor
	strs   *StringSection
	header UnitHeader

	cusBase           uint32
	localTusBase      uint32
	foreignTusBase    uint32
	bucketsBase       uint32
	hashesBase        uint32
	stringOffsetsBase uint32
	entryOffsetsBase  uint32
	abbrevBase        uint32
	entriesBase       uint32

	abbrevs *AbbrevSet
}

func (n *NameIndex) offsetSize() uint32 { return offsetSizeFor(n.header.Format) }

func extractNameIndex(ext *Extractor, strs *StringSection, cursor *uint32) (*NameIndex, error) {
	header, err := parseUnitHeader(ext, cursor)
	if err != nil {
		return nil, err
	}
	n := &NameIndex{ext: ext, strs: strs, header: header}
	osz := n.offsetSize()

	n.cusBase = header.headerEnd
	n.localTusBase = n.cusBase + osz*header.CUCount
	n.foreignTusBase = n.localTusBase + osz*header.LocalTUCount
	n.bucketsBase = n.foreignTusBase + 8*header.ForeignTUCount
	n.hashesBase = n.bucketsBase + 4*header.BucketCount
	hashArraySize := uint32(0)
	if header.BucketCount > 0 {
		hashArraySize = 4 * header.NameCount
	}
	n.stringOffsetsBase = n.hashesBase + hashArraySize
	n.entryOffsetsBase = n.stringOffsetsBase + osz*header.NameCount
	n.abbrevBase = n.entryOffsetsBase + osz*header.NameCount
	n.entriesBase = n.abbrevBase + header.AbbrevTableSize

	if !ext.IsValidOffset(n.entriesBase) {
		return nil, fmt.Errorf("%w: .debug_names unit regions exceed section size", ErrTruncated)
	}

	abbrevs, err := parseAbbrevs(ext, n.abbrevBase, header.AbbrevTableSize)
	if err != nil {
		return nil, err
	}
	n.abbrevs = abbrevs

	*cursor = header.unitEnd
	return n, nil
}

// errAbbrevPastEnd is returned whenever a read inside the abbreviation
// table would step past entries_base; the format gives that region a
// fixed size, so overrunning it means the table is missing its (0,0)/
// code-0 terminator.
func errAbbrevPastEnd() error {
	return fmt.Errorf("%w: Incorrectly terminated abbreviation table.", ErrMalformedAbbrev)
}

func parseAbbrevs(ext *Extractor, base, size uint32) (*AbbrevSet, error) {
	set := newAbbrevSet()
	end := base + size
	cur := base
	for cur < end {
		code, err := ext.ReadULEB128(&cur)
		if err != nil {
			return nil, errAbbrevPastEnd()
		}
		if cur > end {
			return nil, errAbbrevPastEnd()
		}
		if code == 0 {
			return set, nil
		}
		tag, err := ext.ReadULEB128(&cur)
		if err != nil {
			return nil, errAbbrevPastEnd()
		}
		if cur > end {
			return nil, errAbbrevPastEnd()
		}
		a := &Abbrev{Code: code, Tag: uint32(tag)}
		for {
			idx, err := ext.ReadULEB128(&cur)
			if err != nil {
				return nil, errAbbrevPastEnd()
			}
			if cur > end {
				return nil, errAbbrevPastEnd()
			}
			form, err := ext.ReadULEB128(&cur)
			if err != nil {
				return nil, errAbbrevPastEnd()
			}
			if cur > end {
				return nil, errAbbrevPastEnd()
			}
			if idx == 0 && form == 0 {
				break
			}
			a.Attrs = append(a.Attrs, AbbrevAttr{Index: AttributeEncoding(idx), Form: Form(form)})
		}
		if err := set.insert(a); err != nil {
			return nil, err
		}
	}
	return nil, errAbbrevPastEnd()
}

// GetCUOffset returns the absolute .debug_info offset of compile unit i.
func (n *NameIndex) GetCUOffset(i uint32) (uint64, error) {
	if i >= n.header.CUCount {
		return 0, fmt.Errorf("%w: compile unit index %d out of range", ErrOutOfBounds, i)
	}
	c := n.cusBase + n.offsetSize()*i
	return n.ext.ReadUintN(&c, n.offsetSize())
}

// GetLocalTUOffset returns the absolute .debug_info offset of local type
// unit i.
func (n *NameIndex) GetLocalTUOffset(i uint32) (uint64, error) {
	if i >= n.header.LocalTUCount {
		return 0, fmt.Errorf("%w: local type unit index %d out of range", ErrOutOfBounds, i)
	}
	c := n.localTusBase + n.offsetSize()*i
	return n.ext.ReadUintN(&c, n.offsetSize())
}

// GetForeignTUOffset returns the 64-bit type signature of foreign type
// unit i (foreign type units are identified by signature, not offset, so
// this always reads 8 bytes regardless of the section's offset size).
func (n *NameIndex) GetForeignTUOffset(i uint32) (uint64, error) {
	if i >= n.header.ForeignTUCount {
		return 0, fmt.Errorf("%w: foreign type unit index %d out of range", ErrOutOfBounds, i)
	}
	c := n.foreignTusBase + 8*i
	return n.ext.ReadU64(&c)
}

// GetBucketArrayEntry returns the raw value stored in hash bucket b: 0 for
// an empty bucket, otherwise the 1-based index of the first name in that
// bucket's chain.
func (n *NameIndex) GetBucketArrayEntry(b uint32) (uint32, error) {
	if b >= n.header.BucketCount {
		return 0, fmt.Errorf("%w: bucket index %d out of range", ErrOutOfBounds, b)
	}
	return readU32At(n.ext, n.bucketsBase+4*b)
}

// GetHashArrayEntry returns the full 32-bit hash stored for name i
// (0-based).
func (n *NameIndex) GetHashArrayEntry(i uint32) (uint32, error) {
	if n.header.BucketCount == 0 || i >= n.header.NameCount {
		return 0, fmt.Errorf("%w: hash index %d out of range", ErrOutOfBounds, i)
	}
	return readU32At(n.ext, n.hashesBase+4*i)
}

// GetNameTableEntry returns the name string and the entry-pool offset for
// name i (0-based).
func (n *NameIndex) GetNameTableEntry(i uint32) (string, uint32, error) {
	if i >= n.header.NameCount {
		return "", 0, fmt.Errorf("%w: name index %d out of range", ErrOutOfBounds, i)
	}
	osz := n.offsetSize()
	strCur := n.stringOffsetsBase + osz*i
	var strOff uint64
	var err error
	if osz == 4 {
		var u32 uint32
		u32, err = n.ext.ReadRelocatedU32(&strCur)
		strOff = uint64(u32)
	} else {
		strOff, err = n.ext.ReadUintN(&strCur, osz)
	}
	if err != nil {
		return "", 0, err
	}
	entryCur := n.entryOffsetsBase + osz*i
	entryOff, err := n.ext.ReadUintN(&entryCur, osz)
	if err != nil {
		return "", 0, err
	}
	s, err := n.strs.StringAt(uint32(strOff))
	if err != nil {
		return "", 0, err
	}
	return s, n.entriesBase + uint32(entryOff), nil
}

// GetEntry decodes one entry at cursor, advancing it past the entry.
// A 0 abbreviation code signals the end of an entry list, not an error:
// GetEntry returns (nil, nil) and leaves cursor just past the code so a
// caller can tell exhaustion apart from a read failure.
func (n *NameIndex) GetEntry(cursor *uint32) (*Entry, error) {
	if !n.ext.IsValidOffset(*cursor) {
		return nil, fmt.Errorf("%w: Incorrectly terminated entry list", ErrTruncated)
	}
	code, err := n.ext.ReadULEB128(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: Incorrectly terminated entry list", ErrTruncated)
	}
	if code == 0 {
		return nil, nil
	}
	abbrev, ok := n.abbrevs.get(code)
	if !ok {
		return nil, fmt.Errorf("%w: abbreviation code %d not found", ErrInvalidAbbrev, code)
	}
	// Index attribute values are always decoded as 32-bit DWARF,
	// independent of the unit's own 32/64-bit offset size.
	params := FormatParams{Version: n.header.Version, AddrSize: 0, DwarfFormat: Dwarf32}
	values := make([]FormValue, len(abbrev.Attrs))
	for i, attr := range abbrev.Attrs {
		v, err := ExtractFormValue(n.ext, cursor, attr.Form, params)
		if err != nil {
			return nil, fmt.Errorf("%w: entry attribute %s", ErrFormExtract, attr.Index)
		}
		values[i] = v
	}
	return &Entry{Abbrev: abbrev, Values: values}, nil
}

// EntriesAt returns every entry in the list starting at entryOffset, in
// on-disk order.
func (n *NameIndex) EntriesAt(entryOffset uint32) ([]*Entry, error) {
	var entries []*Entry
	cur := entryOffset
	for {
		e, err := n.GetEntry(&cur)
		if err != nil {
			return entries, err
		}
		if e == nil {
			return entries, nil
		}
		entries = append(entries, e)
	}
}

// DebugNames is a full .debug_names section: zero or more chained unit
// contributions, one per (possibly partitioned) compile-unit group.
type DebugNames struct {
	Units []*NameIndex
}

// ExtractDebugNames parses every unit contribution in data.
func ExtractDebugNames(data []byte, relocs Relocations, strs *StringSection, littleEndian bool) (*DebugNames, error) {
	ext := NewExtractor(data, relocs, littleEndian)
	dn := &DebugNames{}
	var cursor uint32
	for cursor < ext.Len() {
		unit, err := extractNameIndex(ext, strs, &cursor)
		if err != nil {
			return nil, err
		}
		dn.Units = append(dn.Units, unit)
	}
	return dn, nil
}

// Dump walks every unit and writes a structured tree to sink.
func (d *DebugNames) Dump(sink Sink) error {
	WithList(sink, ".debug_names", func() {
		for i, unit := range d.Units {
			unit.dump(sink, i)
		}
	})
	return nil
}

func (n *NameIndex) dump(sink Sink, index int) {
	WithDict(sink, fmt.Sprintf("Name Index @ %d", index), func() {
		sink.PrintNumber("version", uint64(n.header.Version))
		sink.PrintNumber("comp_unit_count", uint64(n.header.CUCount))
		sink.PrintNumber("local_type_unit_count", uint64(n.header.LocalTUCount))
		sink.PrintNumber("foreign_type_unit_count", uint64(n.header.ForeignTUCount))
		sink.PrintNumber("bucket_count", uint64(n.header.BucketCount))
		sink.PrintNumber("name_count", uint64(n.header.NameCount))
		sink.PrintNumber("abbrev_table_size", uint64(n.header.AbbrevTableSize))
		sink.PrintString("augmentation", n.header.Augmentation)

		WithList(sink, "compile_units", func() {
			for i := uint32(0); i < n.header.CUCount; i++ {
				off, err := n.GetCUOffset(i)
				if err != nil {
					sink.PrintString(fmt.Sprintf("cu[%d]", i), err.Error())
					continue
				}
				sink.PrintHex(fmt.Sprintf("cu[%d]", i), off)
			}
		})

		if n.header.LocalTUCount > 0 {
			WithList(sink, "local_type_units", func() {
				for i := uint32(0); i < n.header.LocalTUCount; i++ {
					off, err := n.GetLocalTUOffset(i)
					if err != nil {
						sink.PrintString(fmt.Sprintf("local_tu[%d]", i), err.Error())
						continue
					}
					sink.PrintHex(fmt.Sprintf("local_tu[%d]", i), off)
				}
			})
		}

		if n.header.ForeignTUCount > 0 {
			WithList(sink, "foreign_type_units", func() {
				for i := uint32(0); i < n.header.ForeignTUCount; i++ {
					sig, err := n.GetForeignTUOffset(i)
					if err != nil {
						sink.PrintString(fmt.Sprintf("foreign_tu[%d]", i), err.Error())
						continue
					}
					sink.PrintHex(fmt.Sprintf("foreign_tu[%d]", i), sig)
				}
			})
		}

		WithList(sink, "abbreviations", func() {
			for _, code := range n.abbrevs.order {
				n.dumpAbbrev(sink, n.abbrevs.byCode[code])
			}
		})

		WithList(sink, "names", func() {
			if n.header.BucketCount == 0 {
				for i := uint32(0); i < n.header.NameCount; i++ {
					n.dumpName(sink, i)
				}
				return
			}
			for b := uint32(0); b < n.header.BucketCount; b++ {
				n.dumpBucket(sink, b)
			}
		})
	})
}

// dumpBucket walks bucket b's chain of names, per the contiguity rule: a
// chain runs from the bucket's 1-based start index while each name's
// stored hash still maps to this bucket.
func (n *NameIndex) dumpBucket(sink Sink, b uint32) {
	label := fmt.Sprintf("Bucket %d", b)
	start, err := n.GetBucketArrayEntry(b)
	if err != nil || start == 0 {
		sink.PrintString(label, "EMPTY")
		return
	}
	if start > n.header.NameCount {
		sink.PrintString(label, "invalid bucket start")
		return
	}
	WithDict(sink, label, func() {
		for i := start; i <= n.header.NameCount; i++ {
			h, err := n.GetHashArrayEntry(i - 1)
			if err != nil || h%n.header.BucketCount != b {
				return
			}
			n.dumpName(sink, i-1)
		}
	})
}

func (n *NameIndex) dumpAbbrev(sink Sink, a *Abbrev) {
	WithDict(sink, fmt.Sprintf("Abbrev 0x%x", a.Code), func() {
		sink.PrintHex("tag", uint64(a.Tag))
		for _, attr := range a.Attrs {
			sink.PrintString(attr.Index.String(), attr.Form.String())
		}
	})
}

func (n *NameIndex) dumpName(sink Sink, i uint32) {
	name, entryOffset, err := n.GetNameTableEntry(i)
	if err != nil {
		sink.PrintString(fmt.Sprintf("name[%d]", i), err.Error())
		return
	}
	WithDict(sink, name, func() {
		cur := entryOffset
		idx := 0
		for {
			e, err := n.GetEntry(&cur)
			if err != nil {
				sink.PrintString("error", err.Error())
				return
			}
			if e == nil {
				return
			}
			n.dumpEntry(sink, idx, e)
			idx++
		}
	})
}

func (n *NameIndex) dumpEntry(sink Sink, idx int, e *Entry) {
	WithDict(sink, fmt.Sprintf("entry[%d]", idx), func() {
		sink.PrintHex("tag", uint64(e.Tag()))
		for i, attr := range e.Abbrev.Attrs {
			e.Values[i].PrintTo(sink, attr.Index.String(), n.strs)
		}
	})
}
