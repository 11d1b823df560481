package accel

import (
	"encoding/binary"
	"fmt"
)

// DwarfFormat selects the 32- or 64-bit DWARF offset encoding.
type DwarfFormat uint8

const (
	Dwarf32 DwarfFormat = iota
	Dwarf64
)

// FormatParams is the triple threaded into every form-value extraction.
type FormatParams struct {
	Version     uint16
	AddrSize    uint8
	DwarfFormat DwarfFormat
}

// Relocations is an immutable offset->value side table. A relocated read
// at an offset present in the map substitutes the map's value for the
// bytes actually stored in the blob.
type Relocations map[uint32]uint32

// Extractor is a bounds-checked reader over an immutable byte blob. Every
// read takes the cursor by pointer and advances it only on success; a
// failed read leaves the cursor untouched, the same contract the teacher's
// myReader/readUleb pair gave bufio.Reader, generalized to direct
// random-access offsets instead of a forward-only stream.
type Extractor struct {
	data   []byte
	order  binary.ByteOrder
	relocs Relocations
}

// NewExtractor wraps data for bounds-checked reading. relocs may be nil.
func NewExtractor(data []byte, relocs Relocations, littleEndian bool) *Extractor {
	order := binary.ByteOrder(binary.BigEndian)
	if littleEndian {
		order = binary.LittleEndian
	}
	if relocs == nil {
		relocs = Relocations{}
	}
	return &Extractor{data: data, order: order, relocs: relocs}
}

// Len reports the size of the backing blob.
func (e *Extractor) Len() uint32 {
	return uint32(len(e.data))
}

// IsValidOffset reports whether off is within (or exactly at the end of)
// the blob, without consuming any bytes.
func (e *Extractor) IsValidOffset(off uint32) bool {
	return off <= uint32(len(e.data))
}

// IsValidRange reports whether the half-open range [off, off+n) fits
// entirely within the blob.
func (e *Extractor) IsValidRange(off, n uint32) bool {
	if off > uint32(len(e.data)) {
		return false
	}
	end := off + n
	if end < off {
		return false // overflow
	}
	return end <= uint32(len(e.data))
}

func (e *Extractor) ReadU8(cursor *uint32) (uint8, error) {
	if !e.IsValidRange(*cursor, 1) {
		return 0, fmt.Errorf("%w: u8 at offset %d", ErrOutOfBounds, *cursor)
	}
	v := e.data[*cursor]
	*cursor++
	return v, nil
}

func (e *Extractor) ReadU16(cursor *uint32) (uint16, error) {
	if !e.IsValidRange(*cursor, 2) {
		return 0, fmt.Errorf("%w: u16 at offset %d", ErrOutOfBounds, *cursor)
	}
	v := e.order.Uint16(e.data[*cursor:])
	*cursor += 2
	return v, nil
}

func (e *Extractor) ReadU32(cursor *uint32) (uint32, error) {
	if !e.IsValidRange(*cursor, 4) {
		return 0, fmt.Errorf("%w: u32 at offset %d", ErrOutOfBounds, *cursor)
	}
	v := e.order.Uint32(e.data[*cursor:])
	*cursor += 4
	return v, nil
}

func (e *Extractor) ReadU64(cursor *uint32) (uint64, error) {
	if !e.IsValidRange(*cursor, 8) {
		return 0, fmt.Errorf("%w: u64 at offset %d", ErrOutOfBounds, *cursor)
	}
	v := e.order.Uint64(e.data[*cursor:])
	*cursor += 8
	return v, nil
}

// ReadUintN reads an n-byte (n <= 8) unsigned integer in the extractor's
// byte order. It generalizes ReadU8/16/32/64 to the odd widths (3-byte
// strx/addrx forms) the DWARF v5 index forms use.
func (e *Extractor) ReadUintN(cursor *uint32, n uint32) (uint64, error) {
	switch n {
	case 1:
		v, err := e.ReadU8(cursor)
		return uint64(v), err
	case 2:
		v, err := e.ReadU16(cursor)
		return uint64(v), err
	case 4:
		v, err := e.ReadU32(cursor)
		return uint64(v), err
	case 8:
		return e.ReadU64(cursor)
	}
	if !e.IsValidRange(*cursor, n) {
		return 0, fmt.Errorf("%w: uint%d at offset %d", ErrOutOfBounds, n*8, *cursor)
	}
	buf := e.data[*cursor : *cursor+n]
	var v uint64
	if e.order == binary.BigEndian {
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
	} else {
		for i := len(buf) - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
	}
	*cursor += n
	return v, nil
}

// ReadULEB128 decodes a variable-length unsigned integer, the same
// algorithm as the teacher's readUleb but bounds-checked per byte and
// advancing a caller-owned cursor instead of rebinding a slice.
func (e *Extractor) ReadULEB128(cursor *uint32) (uint64, error) {
	start := *cursor
	c := *cursor
	var result uint64
	var shift uint
	for {
		if !e.IsValidRange(c, 1) {
			return 0, fmt.Errorf("%w: uleb128 at offset %d", ErrOutOfBounds, start)
		}
		b := e.data[c]
		c++
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	*cursor = c
	return result, nil
}

// ReadSLEB128 decodes a variable-length signed integer, sign-extending
// the final shift the way the teacher's readSleb does.
func (e *Extractor) ReadSLEB128(cursor *uint32) (int64, error) {
	start := *cursor
	c := *cursor
	var result int64
	var shift uint
	var b byte
	for {
		if !e.IsValidRange(c, 1) {
			return 0, fmt.Errorf("%w: sleb128 at offset %d", ErrOutOfBounds, start)
		}
		b = e.data[c]
		c++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	*cursor = c
	return result, nil
}

// ReadBytes returns a copy of n raw bytes at cursor, advancing it.
func (e *Extractor) ReadBytes(cursor *uint32, n uint32) ([]byte, error) {
	if !e.IsValidRange(*cursor, n) {
		return nil, fmt.Errorf("%w: %d bytes at offset %d", ErrOutOfBounds, n, *cursor)
	}
	b := make([]byte, n)
	copy(b, e.data[*cursor:*cursor+n])
	*cursor += n
	return b, nil
}

// ReadCString reads a NUL-terminated string inline from the blob (used by
// DW_FORM_string, which embeds the string in the stream rather than
// referencing a string-section offset).
func (e *Extractor) ReadCString(cursor *uint32) (string, error) {
	start := *cursor
	if !e.IsValidOffset(start) {
		return "", fmt.Errorf("%w: cstring at offset %d", ErrOutOfBounds, start)
	}
	for i := start; i < uint32(len(e.data)); i++ {
		if e.data[i] == 0 {
			s := string(e.data[start:i])
			*cursor = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unterminated cstring at offset %d", ErrOutOfBounds, start)
}

// ReadRelocatedU32 reads a 32-bit word and substitutes any relocation
// registered at the pre-read cursor position.
func (e *Extractor) ReadRelocatedU32(cursor *uint32) (uint32, error) {
	site := *cursor
	v, err := e.ReadU32(cursor)
	if err != nil {
		return 0, err
	}
	if relocated, ok := e.relocs[site]; ok {
		return relocated, nil
	}
	return v, nil
}

func readU32At(e *Extractor, offset uint32) (uint32, error) {
	c := offset
	return e.ReadU32(&c)
}
