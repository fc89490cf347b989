//go:build darwin || linux

package native

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// maxArgs is the most arguments purego.SyscallN passes.
const maxArgs = 15

// Library is a dlopened shared library. It is both the symbol table and
// the backend for bind.Load.
type Library struct {
	arena  *Arena
	path   string
	handle uintptr
	mu     sync.Mutex
	closed bool
}

// Open loads the shared library at path with RTLD_NOW|RTLD_GLOBAL. The
// scratch arena is sized from cfg.StackSizeKiB; a nil cfg uses defaults.
func Open(path string, cfg *config.Config) (*Library, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "library path is empty")
	}
	if cfg == nil {
		cfg = config.New()
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load("dlopen "+path, err)
	}

	lib := &Library{
		path:   path,
		handle: handle,
		arena:  NewArena(cfg.StackSizeKiB.Get() * 1024),
	}
	Logger().Debug("library opened",
		zap.String("path", path),
		zap.Uint64("arena", lib.arena.Size()))
	return lib, nil
}

// Name returns the path the library was opened with.
func (l *Library) Name() string { return l.path }

// Find resolves a symbol with dlsym.
func (l *Library) Find(name string) (nativebind.Symbol, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nativebind.Symbol{}, false
	}
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return nativebind.Symbol{}, false
	}
	return nativebind.Symbol{Name: name, Addr: uint64(addr)}, true
}

// Model returns the data model of the running process.
func (l *Library) Model() layout.Model { return layout.Host() }

// Memory returns the scratch arena.
func (l *Library) Memory() nativebind.Memory { return l.arena }

// Allocator returns the scratch arena.
func (l *Library) Allocator() nativebind.Allocator { return l.arena }

// Arena returns the scratch arena.
func (l *Library) Arena() *Arena { return l.arena }

// Bind returns a thunk calling sym through purego. Only integer-class
// parameters and results are supported.
func (l *Library) Bind(sym nativebind.Symbol, desc *bind.Descriptor) (bind.Thunk, error) {
	if sym.Addr == 0 {
		return nil, errors.InvalidInput(errors.PhaseBind, fmt.Sprintf("symbol %s has no address", sym.Name))
	}

	params, result, hasResult := desc.Lowered(l.Model().Pointer())
	if len(params) > maxArgs {
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Symbol(sym.Name).
			Detail("%d parameters, at most %d supported", len(params), maxArgs).
			Build()
	}
	for i, p := range params {
		if p.Class == layout.ClassFloat {
			return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
				Symbol(sym.Name).
				Path(fmt.Sprintf("param %d", i)).
				Detail("floating point arguments are not supported by native calls").
				Build()
		}
	}
	if hasResult && result.Class == layout.ClassFloat {
		return nil, errors.New(errors.PhaseBind, errors.KindUnsupported).
			Symbol(sym.Name).
			Detail("floating point results are not supported by native calls").
			Build()
	}

	return &thunk{fn: uintptr(sym.Addr), hasResult: hasResult}, nil
}

// Close unloads the library and releases the arena. Bindings must not be
// called afterwards.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.arena.Close()
	if err := purego.Dlclose(l.handle); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "dlclose "+l.path)
	}
	return nil
}

type thunk struct {
	fn        uintptr
	hasResult bool
}

// Call invokes the function. Native code cannot be interrupted, so ctx is
// only checked before the call.
func (t *thunk) Call(ctx context.Context, args []uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	words := make([]uintptr, len(args))
	for i, a := range args {
		words[i] = uintptr(a)
	}
	r1, _, _ := purego.SyscallN(t.fn, words...)
	if !t.hasResult {
		return 0, nil
	}
	return uint64(r1), nil
}
