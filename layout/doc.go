// Package layout computes C-compatible memory layouts.
//
// A Layout is a closed tagged variant describing a primitive, a pointer, a
// fixed-length array, a structure, or synthetic padding. Every layout carries
// its byte size and byte alignment; structures also carry their ordered
// members (fields and the padding inserted between them).
//
// # Layout Rules
//
// Structures follow the natural-alignment rules of C:
//   - each field starts at an offset that is a multiple of its own alignment
//   - the structure alignment is the largest field alignment
//   - trailing padding rounds the size up to a multiple of that alignment
//
// No ABI table is consulted beyond the alignment each primitive declares.
// Data models (LP64, ILP32, LLP64) only decide the size of pointers and of
// the C long type.
//
// # Usage
//
//	point, err := layout.Struct(
//		layout.F("tag", layout.Uint8),
//		layout.F("x", layout.Int32),
//		layout.F("flags", layout.Uint8),
//	)
//	// point.Size() == 12, point.Offset("x") == 4
//
// Size accumulation is checked: a layout whose size does not fit in 64 bits
// is rejected with an overflow error rather than wrapping.
package layout
