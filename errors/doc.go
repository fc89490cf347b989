// Package errors provides structured error types for the nativebind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending symbol or field path, the expected and
// actual values where they apply, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindSizeMismatch).
//		Path("glUniform4fv", "value").
//		Detail("expected %d elements, got %d", 4, 3).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ArraySize(4, 3)
//	err := errors.SymbolMissing("glUniform4fv", "libGL.so.1")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
