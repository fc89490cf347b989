package bind

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// Binding is the result of resolving one declaration. It carries either a
// thunk or, for a tolerant function whose symbol is absent, the default
// value returned by every call.
type Binding struct {
	thunk  Thunk
	def    any
	desc   *Descriptor
	params []nativeParam
	decl   Declaration
}

// Descriptor returns the call shape.
func (b *Binding) Descriptor() *Descriptor { return b.desc }

// Thunk returns the bound thunk, or false when the symbol was absent.
func (b *Binding) Thunk() (Thunk, bool) { return b.thunk, b.thunk != nil }

// Resolved reports whether the symbol was found.
func (b *Binding) Resolved() bool { return b.thunk != nil }

// Default returns the value used when the symbol is absent.
func (b *Binding) Default() any { return b.def }

// Allocator returns the allocator requirement.
func (b *Binding) Allocator() AllocatorRequirement { return b.decl.Allocator }

// Declaration returns a copy of the declaration the binding was built from.
func (b *Binding) Declaration() Declaration {
	d := b.decl
	d.Params = append([]Param(nil), b.decl.Params...)
	return d
}

// Resolver builds bindings against one symbol table and backend.
type Resolver struct {
	table   nativebind.SymbolTable
	backend Backend
	cfg     *config.Config
}

// NewResolver creates a resolver. A nil cfg uses config.New().
func NewResolver(table nativebind.SymbolTable, backend Backend, cfg *config.Config) *Resolver {
	if cfg == nil {
		cfg = config.New()
	}
	return &Resolver{table: table, backend: backend, cfg: cfg}
}

// Resolve builds the descriptor for decl and binds its entrypoint. A missing
// symbol is a KindSymbolMissing error unless decl is Tolerant.
func (r *Resolver) Resolve(decl Declaration) (*Binding, error) {
	if decl.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseBind, "declaration without a name")
	}
	entry := decl.EntrypointName()

	desc, params, err := r.describe(&decl)
	if err != nil {
		return nil, withSymbol(err, entry)
	}
	b := &Binding{desc: desc, params: params, decl: decl}

	if decl.Tolerant {
		b.def, err = defaultFor(desc, decl.Default)
		if err != nil {
			return nil, withSymbol(err, entry)
		}
	} else if decl.Default != nil {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Symbol(entry).
			Detail("default declared on a function that is not tolerant").
			Build()
	}

	sym, ok := r.table.Find(entry)
	if !ok {
		if decl.Tolerant {
			Logger().Debug("symbol absent, using default",
				zap.String("library", r.table.Name()),
				zap.String("entrypoint", entry),
				zap.Any("default", b.def))
			r.cfg.Debugf("%s: %s absent, calls return %v", r.table.Name(), entry, b.def)
			return b, nil
		}
		return nil, errors.SymbolMissing(entry, r.table.Name())
	}

	thunk, err := r.backend.Bind(sym, desc)
	if err != nil {
		return nil, withSymbol(err, entry)
	}
	b.thunk = thunk
	Logger().Debug("bound", zap.String("entrypoint", entry), zap.Stringer("descriptor", desc))
	return b, nil
}

func (r *Resolver) describe(decl *Declaration) (*Descriptor, []nativeParam, error) {
	if decl.SkipFirst && len(decl.Params) == 0 {
		return nil, nil, errors.InvalidInput(errors.PhaseBind, "skip-first needs at least one parameter")
	}
	model := r.backend.Model()
	native := decl.NativeParams()

	desc := &Descriptor{
		name:       decl.Name,
		entrypoint: decl.EntrypointName(),
		params:     make([]layout.Layout, len(native)),
	}
	params := make([]nativeParam, len(native))
	for i, p := range native {
		np, l, err := normalizeParam(model, p, i)
		if err != nil {
			return nil, nil, err
		}
		params[i], desc.params[i] = np, l
	}

	if decl.Result != nil {
		res := *decl.Result
		switch res.Kind {
		case layout.KindPrimitive:
			if err := checkScalar(res, []string{"result"}); err != nil {
				return nil, nil, err
			}
		case layout.KindPointer:
			res = pointerIn(model, res)
		case layout.KindStruct, layout.KindArray:
			desc.indirect = true
		default:
			return nil, nil, errors.InvalidInput(errors.PhaseBind, "result cannot be "+res.Kind.String())
		}
		desc.result = &res
	}
	return desc, params, nil
}

func normalizeParam(model layout.Model, p Param, index int) (nativeParam, layout.Layout, error) {
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("arg%d", index)
	}
	path := []string{name}

	if p.Array != nil {
		spec := *p.Array
		if err := checkScalar(spec.Elem, path); err != nil {
			return nativeParam{}, layout.Layout{}, err
		}
		if spec.Size < 0 {
			return nativeParam{}, layout.Layout{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
				Path(path...).
				Detail("negative array size %d", spec.Size).
				Build()
		}
		if !spec.Wide && spec.Size > math.MaxInt32 {
			return nativeParam{}, layout.Layout{}, errors.Overflow(errors.PhaseBind, path, spec.Size, "32-bit array size")
		}
		return nativeParam{name: name, kind: paramArray, array: spec},
			model.PointerTo(spec.Elem).WithName(name), nil
	}

	l := p.Layout
	switch l.Kind {
	case layout.KindPrimitive:
		if err := checkScalar(l, path); err != nil {
			return nativeParam{}, layout.Layout{}, err
		}
		return nativeParam{name: name, kind: paramScalar, value: l}, l.WithName(name), nil

	case layout.KindPointer:
		ptr := pointerIn(model, l).WithName(name)
		return nativeParam{name: name, kind: paramScalar, value: ptr}, ptr, nil

	case layout.KindArray:
		elem, _ := l.Elem()
		if checkScalar(elem, path) == nil {
			if l.Count() > math.MaxInt64 {
				return nativeParam{}, layout.Layout{}, errors.Overflow(errors.PhaseBind, path, l.Count(), "array size")
			}
			spec := ArraySpec{Elem: elem, Size: int64(l.Count()), Wide: true}
			return nativeParam{name: name, kind: paramArray, array: spec},
				model.PointerTo(elem).WithName(name), nil
		}
		return nativeParam{name: name, kind: paramBlob, value: l}, model.PointerTo(l).WithName(name), nil

	case layout.KindStruct:
		return nativeParam{name: name, kind: paramBlob, value: l}, model.PointerTo(l).WithName(name), nil
	}
	return nativeParam{}, layout.Layout{}, errors.New(errors.PhaseBind, errors.KindInvalidInput).
		Path(path...).
		Detail("parameter cannot be %s", l.Kind).
		Build()
}

// checkScalar accepts primitives that fit a machine word.
func checkScalar(l layout.Layout, path []string) error {
	if l.Kind != layout.KindPrimitive && l.Kind != layout.KindPointer {
		return errors.New(errors.PhaseBind, errors.KindUnsupported).
			Path(path...).
			Detail("%s is not a scalar", l.TypeName()).
			Build()
	}
	switch l.Size() {
	case 1, 2, 4, 8:
	default:
		return errors.New(errors.PhaseBind, errors.KindUnsupported).
			Path(path...).
			Detail("scalar %s has size %d", l.TypeName(), l.Size()).
			Build()
	}
	if l.Class == layout.ClassNone {
		return errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(path...).
			Detail("scalar %s has no value class", l.TypeName()).
			Build()
	}
	if l.Class == layout.ClassFloat && l.Size() != 4 && l.Size() != 8 {
		return errors.New(errors.PhaseBind, errors.KindUnsupported).
			Path(path...).
			Detail("float of %d bytes", l.Size()).
			Build()
	}
	return nil
}

// pointerIn resizes a pointer layout to the backend's data model.
func pointerIn(model layout.Model, p layout.Layout) layout.Layout {
	var out layout.Layout
	if target, ok := p.Target(); ok {
		out = model.PointerTo(target)
	} else {
		out = model.Pointer()
	}
	return out.WithName(p.Name)
}

// defaultFor converts a declared default to the Go type of the result.
func defaultFor(desc *Descriptor, v any) (any, error) {
	res, ok := desc.Result()
	if !ok {
		if v != nil {
			return nil, errors.InvalidInput(errors.PhaseBind, "void function cannot declare a default")
		}
		return nil, nil
	}
	if desc.indirect {
		if v == nil {
			return make([]byte, res.Size()), nil
		}
		data, ok := v.([]byte)
		if !ok || uint64(len(data)) != res.Size() {
			return nil, errors.TypeMismatch(errors.PhaseBind, []string{"default"}, fmt.Sprintf("%T", v), res.TypeName())
		}
		return append([]byte(nil), data...), nil
	}
	if v == nil {
		return decodeScalar(res, 0), nil
	}
	w, err := encodeScalar(errors.PhaseBind, res, v, []string{"default"})
	if err != nil {
		return nil, err
	}
	return decodeScalar(res, w), nil
}

// withSymbol attaches the entrypoint to structured errors that lack one.
func withSymbol(err error, entry string) error {
	if e, ok := err.(*errors.Error); ok && e.Symbol == "" {
		e.Symbol = entry
	}
	return err
}
