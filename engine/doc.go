// Package engine runs WebAssembly modules as native libraries with wazero.
//
// A module instance plays the part of a shared library: its exported
// functions are the symbols, its exported linear memory is the address space
// arguments are marshaled into, and its allocator exports serve temporary
// allocations. Library implements nativebind.SymbolTable and bind.Backend, so
// it can be passed to bind.Load directly.
//
// # Engines and Libraries
//
//	Engine   - owns a wazero runtime; compiles and instantiates modules
//	Library  - one module instance: symbols, memory, allocator, thunks
//	Host     - builds a Library from Go functions (wazero host module)
//
// # Calling Convention
//
// Layouts map to core WebAssembly value types:
//
//	Layout                      Core type
//	──────────────────────────────────────
//	integers <= 4 bytes, bool   i32
//	pointers (wasm32)           i32
//	8-byte integers             i64
//	float32                     f32
//	float64                     f64
//
// Bind compares the descriptor with the export's function type and rejects
// any mismatch. Struct and array results are returned through a pointer
// passed as the first parameter, the way C compilers targeting wasm32 do.
//
// # Allocation
//
// The allocator is looked up in order: cabi_realloc, canonical_abi_realloc,
// malloc, alloc. Frees use cabi_free, free or the realloc export with a new
// size of zero.
//
// # Thread Safety
//
// wazero module instances are not safe for concurrent calls. A Library
// serializes calls with a mutex.
package engine
