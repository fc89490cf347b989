package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// Library is an instantiated module used as a native library. It is both
// the symbol table and the backend for bind.Load.
type Library struct {
	module   api.Module
	compiled wazero.CompiledModule
	mem      *Memory
	alloc    *allocator
	mu       *sync.Mutex
	name     string
}

func wrap(mod api.Module, name string) *Library {
	l := &Library{module: mod, name: name, mu: &sync.Mutex{}}
	if m := mod.Memory(); m != nil {
		l.mem = &Memory{mem: m}
	}
	l.alloc = newAllocator(mod, l.mu)
	return l
}

// Wrap adapts an already instantiated module.
func Wrap(mod api.Module) *Library {
	return wrap(mod, mod.Name())
}

// Name returns the library name.
func (l *Library) Name() string {
	if l.name == "" {
		return "<anonymous>"
	}
	return l.name
}

// Module returns the wazero module instance.
func (l *Library) Module() api.Module { return l.module }

// Find resolves an exported function.
func (l *Library) Find(name string) (nativebind.Symbol, bool) {
	fn := l.module.ExportedFunction(name)
	if fn == nil {
		return nativebind.Symbol{}, false
	}
	return nativebind.Symbol{Name: name, Ref: fn}, true
}

// Exports returns the names of the exported functions, sorted.
func (l *Library) Exports() []string {
	defs := l.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns ILP32; only 32-bit linear memories are supported.
func (l *Library) Model() layout.Model { return layout.ILP32 }

// Memory returns the exported linear memory, or nil.
func (l *Library) Memory() nativebind.Memory {
	if l.mem == nil {
		return nil
	}
	return l.mem
}

// Allocator returns the module allocator, or nil.
func (l *Library) Allocator() nativebind.Allocator {
	if l.alloc == nil {
		return nil
	}
	return l.alloc
}

// Bind checks the descriptor against the export's function type and returns
// a thunk calling it.
func (l *Library) Bind(sym nativebind.Symbol, desc *bind.Descriptor) (bind.Thunk, error) {
	fn, ok := sym.Ref.(api.Function)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseBind, fmt.Sprintf("symbol %s is not a wasm function", sym.Name))
	}
	def := fn.Definition()

	params, result, hasResult := desc.Lowered(l.Model().Pointer())
	want := make([]api.ValueType, len(params))
	for i, p := range params {
		want[i] = ValueType(p)
	}
	var wantResults []api.ValueType
	if hasResult {
		wantResults = []api.ValueType{ValueType(result)}
	}

	if !sameTypes(want, def.ParamTypes()) || !sameTypes(wantResults, def.ResultTypes()) {
		return nil, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
			Symbol(sym.Name).
			Detail("declared %s, export is %s", signature(want, wantResults), signature(def.ParamTypes(), def.ResultTypes())).
			Build()
	}

	return &thunk{
		fn:      fn,
		mu:      l.mu,
		stack:   max(len(want), len(wantResults)),
		results: len(wantResults),
	}, nil
}

// Close closes the module instance and its compiled code.
func (l *Library) Close(ctx context.Context) error {
	err := l.module.Close(ctx)
	if l.compiled != nil {
		if cerr := l.compiled.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// ValueType maps a scalar layout to its core value type.
func ValueType(l layout.Layout) api.ValueType {
	if l.Class == layout.ClassFloat {
		if l.Size() == 4 {
			return api.ValueTypeF32
		}
		return api.ValueTypeF64
	}
	if l.Size() <= 4 {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	s := "("
	for i, p := range params {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(p)
	}
	s += ") -> ("
	for i, r := range results {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(r)
	}
	return s + ")"
}

// thunk calls an exported function with a per-call stack.
type thunk struct {
	fn      api.Function
	mu      *sync.Mutex
	stack   int
	results int
}

func (t *thunk) Call(ctx context.Context, args []uint64) (uint64, error) {
	stack := make([]uint64, max(t.stack, len(args), 1))
	copy(stack, args)

	t.mu.Lock()
	err := t.fn.CallWithStack(ctx, stack)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if t.results == 0 {
		return 0, nil
	}
	return stack[0], nil
}
