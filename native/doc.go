// Package native loads shared libraries with purego and exposes them as
// nativebind symbol tables and bind backends, without cgo.
//
// Open dlopens a library; Find resolves symbols with dlsym. Bind produces
// thunks that call through purego.SyscallN, which passes integer-class
// arguments only, so descriptors with float parameters or results are
// rejected at load time.
//
// Array and struct arguments are marshaled into an Arena: a pinned Go heap
// buffer whose addresses can be handed to native code for the duration of
// a call. The arena size defaults to the configured stack size.
//
// The package builds on Linux and macOS.
package native
