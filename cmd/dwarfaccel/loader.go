package main

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"github.com/mcmengchen/dwarfaccel/accel"
)

// appleSectionNames are the legacy Apple accelerator table sections, by
// the name they carry in every one of ELF/Mach-O/PE.
var appleSectionNames = []string{"apple_names", "apple_types", "apple_namespaces", "apple_objc"}

// objectSections is the subset of an object file this command cares
// about: accelerator-table section bytes, the string section they
// reference, and any relocations covering the accelerator sections.
type objectSections struct {
	littleEndian bool
	sections     map[string][]byte
	relocs       map[string]accel.Relocations
}

func (o *objectSections) stringSection() *accel.StringSection {
	if data, ok := o.sections["debug_str"]; ok {
		return accel.NewStringSection(data)
	}
	return accel.NewStringSection(nil)
}

// loadObject opens path, identifies its object file format by magic, and
// collects every DWARF/accelerator section it names plus any ELF
// relocations covering them. Mach-O and PE object files carry their
// sections pre-relocated by the linker, so only ELF relocatable objects
// need the relocation side table.
func loadObject(path string) (*objectSections, error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return loadELF(f)
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return loadMachO(f)
	}
	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		return loadPE(f)
	}
	return nil, fmt.Errorf("dwarfaccel: %s is not a recognized ELF, Mach-O, or PE object file", path)
}

func allSectionNames() []string {
	names := append([]string{}, appleSectionNames...)
	return append(names, "debug_names", "debug_str")
}

func loadELF(f *elf.File) (*objectSections, error) {
	out := &objectSections{
		littleEndian: f.ByteOrder == binary.LittleEndian,
		sections:     map[string][]byte{},
		relocs:       map[string]accel.Relocations{},
	}
	for _, want := range allSectionNames() {
		sec := findELFSection(f, want)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("dwarfaccel: reading section %s: %w", sec.Name, err)
		}
		out.sections[want] = data

		relSec := findELFSection(f, "rel."+want)
		if relSec == nil {
			relSec = findELFSection(f, "rela."+want)
		}
		if relSec != nil {
			relocs, err := parseELFRelocations(f, relSec)
			if err != nil {
				return nil, err
			}
			out.relocs[want] = relocs
		}
	}
	return out, nil
}

func findELFSection(f *elf.File, suffix string) *elf.Section {
	for _, sec := range f.Sections {
		name := sec.Name
		for len(name) > 0 && (name[0] == '.' || name[0] == '_') {
			name = name[1:]
		}
		if name == suffix {
			return sec
		}
	}
	return nil
}

// parseELFRelocations decodes a RELA (or REL, treated as zero-addend)
// section into the offset->value table accel.Extractor expects, keyed by
// the 32-bit word each relocation overwrites.
func parseELFRelocations(f *elf.File, relSec *elf.Section) (accel.Relocations, error) {
	data, err := relSec.Data()
	if err != nil {
		return nil, fmt.Errorf("dwarfaccel: reading %s: %w", relSec.Name, err)
	}
	out := accel.Relocations{}
	switch f.Class {
	case elf.ELFCLASS64:
		const entSize = 24
		for off := 0; off+entSize <= len(data); off += entSize {
			r := data[off : off+entSize]
			relOffset := f.ByteOrder.Uint64(r[0:8])
			addend := f.ByteOrder.Uint64(r[16:24])
			out[uint32(relOffset)] = uint32(addend)
		}
	case elf.ELFCLASS32:
		const entSize = 8
		for off := 0; off+entSize <= len(data); off += entSize {
			r := data[off : off+entSize]
			relOffset := f.ByteOrder.Uint32(r[0:4])
			out[relOffset] = 0
		}
	}
	return out, nil
}

func loadMachO(f *macho.File) (*objectSections, error) {
	out := &objectSections{
		littleEndian: f.ByteOrder == binary.LittleEndian,
		sections:     map[string][]byte{},
		relocs:       map[string]accel.Relocations{},
	}
	for _, want := range allSectionNames() {
		sec := f.Section("__" + want)
		if sec == nil {
			sec = f.Section(want)
		}
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("dwarfaccel: reading section %s: %w", sec.Name, err)
		}
		out.sections[want] = data
	}
	return out, nil
}

func loadPE(f *pe.File) (*objectSections, error) {
	out := &objectSections{
		littleEndian: true,
		sections:     map[string][]byte{},
		relocs:       map[string]accel.Relocations{},
	}
	for _, want := range allSectionNames() {
		sec := f.Section("." + want)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("dwarfaccel: reading section %s: %w", sec.Name, err)
		}
		out.sections[want] = data
	}
	return out, nil
}
