// Package bind turns function declarations into callable bindings.
//
// A Declaration names a native function, its parameters and result. The
// Resolver turns each declaration into a Descriptor, resolves the entrypoint
// in a nativebind.SymbolTable, and asks a Backend for a Thunk that calls the
// symbol with raw machine words. Load resolves a whole set of declarations
// into a Library, the object calling code works with.
//
// # Resolution
//
// The entrypoint is the declaration's Entrypoint when set, otherwise its
// Name. A missing symbol fails the load unless the declaration is Tolerant,
// in which case the binding has no thunk and every call returns the
// declared Default without entering native code. Loading is all-or-nothing:
// every missing symbol of a load is reported in a single
// errors.MissingSymbolsError and no Library is returned.
//
// # Marshaling
//
// Library.Call converts Go arguments to machine words:
//
//	integers, bool, uintptr  -> scalar parameters (range checked)
//	float32, float64         -> float parameters
//	slices                   -> array parameters, copied into backend memory
//	[]byte                   -> struct parameters, copied into backend memory
//
// Arrays with a fixed Size are checked with config.Config.CheckArraySize.
// InOut arrays are copied back into the caller's slice after the call.
// Struct and array results are returned through a buffer allocated by the
// call's allocator and come back as []byte.
//
// # Concurrency
//
// A Library never changes after Load and may be called from multiple
// goroutines, provided the backend's thunks allow it.
package bind
