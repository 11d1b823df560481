// Package accel reads the two DWARF accelerator table formats found in
// object files: the legacy Apple tables (.apple_names, .apple_types,
// .apple_namespaces, .apple_objc) and the DWARF v5 .debug_names section.
//
// The package is a pure decoder. It does not load object files, does not
// resolve relocations on its own (the caller supplies an offset->value
// side table), and does not know how to encode either format back to
// disk.
package accel
