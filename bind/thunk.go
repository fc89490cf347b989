package bind

import (
	"context"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/layout"
)

// Thunk invokes one resolved symbol with raw machine words. Integers are
// zero-extended from their layout size, floats carry their IEEE bits and
// pointers are addresses in the backend's Memory. Void functions return 0.
type Thunk interface {
	Call(ctx context.Context, args []uint64) (uint64, error)
}

// ThunkFunc adapts a function to Thunk.
type ThunkFunc func(ctx context.Context, args []uint64) (uint64, error)

func (f ThunkFunc) Call(ctx context.Context, args []uint64) (uint64, error) {
	return f(ctx, args)
}

// Backend produces thunks for resolved symbols and provides the memory
// that array and struct arguments are marshaled into.
type Backend interface {
	// Model is the data model of the backend's address space.
	Model() layout.Model
	// Bind creates a thunk for sym. It fails with KindUnsupported when
	// the backend cannot call the descriptor's shape.
	Bind(sym nativebind.Symbol, desc *Descriptor) (Thunk, error)
	// Memory returns the address space, or nil if the backend has none.
	Memory() nativebind.Memory
	// Allocator returns the library allocator, or nil if there is none.
	Allocator() nativebind.Allocator
}
