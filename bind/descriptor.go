package bind

import (
	"strings"

	"github.com/wippyai/nativebind/layout"
)

// Descriptor is the native call shape of one function: the parameter
// layouts as passed to the symbol and the result layout. Array and struct
// parameters appear as pointers. Descriptors are immutable.
type Descriptor struct {
	result     *layout.Layout
	name       string
	entrypoint string
	params     []layout.Layout
	indirect   bool
}

// Name returns the declared function name.
func (d *Descriptor) Name() string { return d.name }

// Entrypoint returns the native symbol name.
func (d *Descriptor) Entrypoint() string { return d.entrypoint }

// Params returns a copy of the parameter layouts.
func (d *Descriptor) Params() []layout.Layout {
	out := make([]layout.Layout, len(d.params))
	copy(out, d.params)
	return out
}

// Result returns the result layout, or false for void functions.
func (d *Descriptor) Result() (layout.Layout, bool) {
	if d.result == nil {
		return layout.Layout{}, false
	}
	return *d.result, true
}

// Indirect reports whether the result is returned through memory. The
// caller passes the result buffer address as a leading hidden parameter and
// the native function returns nothing.
func (d *Descriptor) Indirect() bool { return d.indirect }

// Lowered returns the machine-level signature a backend binds: the hidden
// result pointer first for indirect results, then the parameters, and the
// scalar result if any.
func (d *Descriptor) Lowered(ptr layout.Layout) (params []layout.Layout, result layout.Layout, ok bool) {
	params = make([]layout.Layout, 0, len(d.params)+1)
	if d.indirect {
		params = append(params, ptr)
	}
	params = append(params, d.params...)
	if d.result == nil || d.indirect {
		return params, layout.Layout{}, false
	}
	return params, *d.result, true
}

// String renders the descriptor as a C-like prototype.
func (d *Descriptor) String() string {
	var b strings.Builder
	if d.result != nil {
		b.WriteString(d.result.TypeName())
	} else {
		b.WriteString("void")
	}
	b.WriteByte(' ')
	b.WriteString(d.entrypoint)
	b.WriteByte('(')
	for i, p := range d.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	return b.String()
}
