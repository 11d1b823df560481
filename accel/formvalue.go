package accel

import "fmt"

// FormValue is one decoded DWARF form-value: a typed slot extracted from
// an Extractor at a cursor, per the form code that declared it. It can be
// projected to an unsigned constant, a signed constant, a flag, or a
// string, and it knows how to print itself to a Sink.
type FormValue struct {
	Form     Form
	u        uint64
	i        int64
	isSigned bool
	bytes    []byte
	isBlock  bool
}

// Class reports the DWARF value class this form belongs to.
func (v FormValue) Class() Class {
	return v.Form.Class()
}

// Unsigned projects the value as an unsigned constant. ok is false for
// block/exprloc values, which have no scalar projection.
func (v FormValue) Unsigned() (uint64, bool) {
	if v.isBlock {
		return 0, false
	}
	if v.isSigned {
		return uint64(v.i), true
	}
	return v.u, true
}

// Signed projects the value as a signed constant.
func (v FormValue) Signed() (int64, bool) {
	if v.isBlock {
		return 0, false
	}
	if v.isSigned {
		return v.i, true
	}
	return int64(v.u), true
}

// Flag reports the value as a boolean; ok is false unless Class() is
// ClassFlag.
func (v FormValue) Flag() (bool, bool) {
	if v.Class() != ClassFlag {
		return false, false
	}
	return v.u != 0, true
}

// StringOffset reports the string-section offset this value refers to;
// ok is false unless Class() is ClassString and the form is one of the
// offset-based string forms (not DW_FORM_string, which is inline).
func (v FormValue) StringOffset() (uint64, bool) {
	if v.Class() != ClassString || v.Form == FormString {
		return 0, false
	}
	return v.u, true
}

// Bytes returns the raw bytes of a block/exprloc value.
func (v FormValue) Bytes() ([]byte, bool) {
	if !v.isBlock {
		return nil, false
	}
	return v.bytes, true
}

// String renders the value for debugging/%v use.
func (v FormValue) String() string {
	if v.Form == FormString {
		return string(v.bytes)
	}
	switch v.Class() {
	case ClassFlag:
		b, _ := v.Flag()
		return fmt.Sprintf("%v", b)
	case ClassBlock, ClassExprLoc:
		return fmt.Sprintf("% x", v.bytes)
	default:
		if v.isSigned {
			return fmt.Sprintf("%d", v.i)
		}
		return fmt.Sprintf("0x%x", v.u)
	}
}

// PrintTo renders the value through a Sink, resolving string-offset
// values against strs when available.
func (v FormValue) PrintTo(sink Sink, key string, strs *StringSection) {
	if v.Form == FormString {
		sink.PrintString(key, string(v.bytes))
		return
	}
	switch v.Class() {
	case ClassFlag:
		b, _ := v.Flag()
		sink.PrintNumber(key, boolToUint(b))
	case ClassString:
		off, _ := v.StringOffset()
		if strs != nil {
			if s, err := strs.StringAt(uint32(off)); err == nil {
				sink.PrintString(key, s)
				return
			}
		}
		sink.PrintHex(key, off)
	case ClassBlock, ClassExprLoc:
		b, _ := v.Bytes()
		sink.PrintString(key, fmt.Sprintf("% x", b))
	case ClassReference, ClassAddress, ClassLinePtr, ClassLocList, ClassRngList:
		u, _ := v.Unsigned()
		sink.PrintHex(key, u)
	default:
		if v.isSigned {
			i, _ := v.Signed()
			sink.PrintNumber(key, uint64(i))
			return
		}
		u, _ := v.Unsigned()
		sink.PrintNumber(key, u)
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// ExtractFormValue decodes one value of the given form at cursor,
// advancing it. This is the core's only dependency on the form-value
// decoder contract described in the accompanying specification: given a
// form code and format parameters, it extracts one typed value.
func ExtractFormValue(ext *Extractor, cursor *uint32, form Form, params FormatParams) (FormValue, error) {
	offsetSize := uint32(4)
	if params.DwarfFormat == Dwarf64 {
		offsetSize = 8
	}

	switch form {
	case FormIndirect:
		actual, err := ext.ReadULEB128(cursor)
		if err != nil {
			return FormValue{}, err
		}
		return ExtractFormValue(ext, cursor, Form(actual), params)

	case FormAddr:
		if params.AddrSize == 8 {
			u, err := ext.ReadU64(cursor)
			return FormValue{Form: form, u: u}, err
		}
		u, err := ext.ReadU32(cursor)
		return FormValue{Form: form, u: uint64(u)}, err

	case FormFlag:
		u, err := ext.ReadU8(cursor)
		return FormValue{Form: form, u: uint64(u)}, err

	case FormFlagPresent:
		return FormValue{Form: form, u: 1}, nil

	case FormData1, FormRef1, FormStrx1, FormAddrx1:
		u, err := ext.ReadU8(cursor)
		return FormValue{Form: form, u: uint64(u)}, err

	case FormData2, FormRef2, FormStrx2, FormAddrx2:
		u, err := ext.ReadUintN(cursor, 2)
		return FormValue{Form: form, u: u}, err

	case FormStrx3, FormAddrx3:
		u, err := ext.ReadUintN(cursor, 3)
		return FormValue{Form: form, u: u}, err

	case FormData4, FormRef4, FormRefSup4, FormStrx4, FormAddrx4:
		u, err := ext.ReadU32(cursor)
		return FormValue{Form: form, u: uint64(u)}, err

	case FormData8, FormRef8, FormRefSig8, FormRefSup8:
		u, err := ext.ReadU64(cursor)
		return FormValue{Form: form, u: u}, err

	case FormData16:
		b, err := ext.ReadBytes(cursor, 16)
		if err != nil {
			return FormValue{}, err
		}
		return FormValue{Form: form, isBlock: true, bytes: b}, nil

	case FormSdata:
		i, err := ext.ReadSLEB128(cursor)
		return FormValue{Form: form, i: i, isSigned: true}, err

	case FormUdata, FormRefUdata, FormStrx, FormAddrx, FormLoclistx, FormRnglistx:
		u, err := ext.ReadULEB128(cursor)
		return FormValue{Form: form, u: u}, err

	case FormString:
		s, err := ext.ReadCString(cursor)
		if err != nil {
			return FormValue{}, err
		}
		return FormValue{Form: form, bytes: []byte(s)}, nil

	case FormStrp, FormLineStrp, FormStrpSup, FormRefAddr, FormSecOffset:
		u, err := ext.ReadUintN(cursor, offsetSize)
		return FormValue{Form: form, u: u}, err

	case FormBlock1:
		n, err := ext.ReadU8(cursor)
		if err != nil {
			return FormValue{}, err
		}
		b, err := ext.ReadBytes(cursor, uint32(n))
		return FormValue{Form: form, isBlock: true, bytes: b}, err

	case FormBlock2:
		n, err := ext.ReadU16(cursor)
		if err != nil {
			return FormValue{}, err
		}
		b, err := ext.ReadBytes(cursor, uint32(n))
		return FormValue{Form: form, isBlock: true, bytes: b}, err

	case FormBlock4:
		n, err := ext.ReadU32(cursor)
		if err != nil {
			return FormValue{}, err
		}
		b, err := ext.ReadBytes(cursor, n)
		return FormValue{Form: form, isBlock: true, bytes: b}, err

	case FormBlock, FormExprloc:
		n, err := ext.ReadULEB128(cursor)
		if err != nil {
			return FormValue{}, err
		}
		b, err := ext.ReadBytes(cursor, uint32(n))
		return FormValue{Form: form, isBlock: true, bytes: b}, err

	case FormImplicitConst:
		// The constant lives in the abbreviation declaration in ordinary
		// .debug_info; no accelerator-table producer emits this form for
		// an atom or index attribute, so there is nothing on the entry
		// stream to consume.
		return FormValue{Form: form, u: 0}, nil

	default:
		return FormValue{}, fmt.Errorf("%w: unsupported form %s", ErrFormExtract, form)
	}
}
