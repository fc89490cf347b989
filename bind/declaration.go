package bind

import "github.com/wippyai/nativebind/layout"

// AllocatorRequirement classifies whether a call needs a caller-supplied
// allocator.
type AllocatorRequirement uint8

const (
	// AllocatorNone uses the library allocator for any temporaries.
	AllocatorNone AllocatorRequirement = iota
	// AllocatorRequired calls fail unless the caller supplies an allocator.
	AllocatorRequired
	// AllocatorOptional uses the caller's allocator when given and the
	// library allocator otherwise.
	AllocatorOptional
)

func (r AllocatorRequirement) String() string {
	switch r {
	case AllocatorNone:
		return "none"
	case AllocatorRequired:
		return "required"
	case AllocatorOptional:
		return "optional"
	}
	return "unknown"
}

// ParseAllocatorRequirement parses "none", "required" or "optional".
// The empty string is none.
func ParseAllocatorRequirement(s string) (AllocatorRequirement, bool) {
	switch s {
	case "", "none":
		return AllocatorNone, true
	case "required":
		return AllocatorRequired, true
	case "optional":
		return AllocatorOptional, true
	}
	return AllocatorNone, false
}

// ArraySpec marks a parameter as an array passed by pointer.
type ArraySpec struct {
	// Elem is the element layout; it must be a scalar primitive.
	Elem layout.Layout
	// Size is the required element count; 0 means unbounded.
	Size int64
	// Wide allows Size beyond the 32-bit range.
	Wide bool
	// InOut copies the array back to the caller's slice after the call.
	InOut bool
	// Nullable accepts a nil slice, passed as a null pointer.
	Nullable bool
}

// Param is a declared parameter.
type Param struct {
	Array  *ArraySpec
	Name   string
	Layout layout.Layout
}

// Declaration describes one native function.
type Declaration struct {
	// Default is returned by calls to a Tolerant function whose symbol is
	// absent. It is converted to the result type at load time.
	Default any
	// Result is nil for functions returning nothing.
	Result *layout.Layout
	Name   string
	// Entrypoint overrides the symbol name; empty means Name.
	Entrypoint string
	Params     []Param
	// SkipFirst excludes the first parameter from the native call. It
	// stands for the allocator or context supplied through CallWith.
	SkipFirst bool
	Tolerant  bool
	Allocator AllocatorRequirement
}

// EntrypointName returns the native symbol the declaration resolves to.
func (d *Declaration) EntrypointName() string {
	if d.Entrypoint != "" {
		return d.Entrypoint
	}
	return d.Name
}

// NativeParams returns the parameters passed to the native symbol.
func (d *Declaration) NativeParams() []Param {
	if d.SkipFirst && len(d.Params) > 0 {
		return d.Params[1:]
	}
	return d.Params
}
