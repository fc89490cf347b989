// Package nativebind turns declarations of a native library's functions and
// structures into type-checked call sites.
//
// Calling code never writes native-call glue, struct layout math, or argument
// validation by hand. A declaration names a function, its parameter and result
// layouts, and its marshaling policy; the binding engine resolves the symbol,
// builds a calling-convention descriptor, and produces a reusable call thunk.
//
// # Architecture Overview
//
//	nativebind/          Root package with Memory, Allocator and SymbolTable interfaces
//	├── layout/          C-compatible memory layouts (offsets, padding, alignment)
//	├── config/          Checks and configuration registry, diagnostic log sink
//	├── bind/            Binding resolver, descriptors, thunks, call dispatch façade
//	├── engine/          wazero backend: a WebAssembly module as a native library
//	├── native/          purego backend: shared libraries via dlopen/dlsym
//	├── decl/            HCL declaration files and WIT signatures
//	├── errors/          Structured error types
//	└── cmd/nativebind/  Command line inspector and call tool
//
// # Quick Start
//
//	cfg := config.New()
//	eng := engine.New(ctx, nil)
//	defer eng.Close(ctx)
//
//	lib, err := eng.Open(ctx, wasmBytes, "mathlib")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bound, err := bind.Load(lib, lib, cfg,
//	    bind.Declaration{Name: "add", Params: []bind.Param{
//	        {Name: "a", Layout: layout.Int32}, {Name: "b", Layout: layout.Int32},
//	    }, Result: &layout.Int32},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sum, err := bound.Call(ctx, "add", int32(2), int32(3))
//
// Shared libraries load the same way through native.Open, and declarations
// can be read from HCL files with decl.ParseFile.
//
// # Thread Safety
//
// A loaded bind.Library is immutable and safe for concurrent use. Config
// entries are synchronized; callers wanting deterministic settings must set
// them before concurrent use begins.
package nativebind
