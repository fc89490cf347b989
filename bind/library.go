package bind

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
)

// Library is the set of bindings of one loaded library. All maps are built
// once by Load and never change afterwards; accessors return copies.
type Library struct {
	table       nativebind.SymbolTable
	backend     Backend
	cfg         *config.Config
	bindings    map[string]*Binding // by entrypoint
	byName      map[string]*Binding
	descriptors map[string]*Descriptor
	thunks      map[string]Thunk
	names       []string
}

// Load resolves every declaration against table and binds the found
// symbols with backend. Either every non-tolerant symbol resolves and a
// Library is returned, or the load fails and nothing is returned. Missing
// symbols are collected into one *errors.MissingSymbolsError.
func Load(table nativebind.SymbolTable, backend Backend, cfg *config.Config, decls ...Declaration) (*Library, error) {
	if table == nil || backend == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "symbol table and backend are required")
	}
	if cfg == nil {
		cfg = config.New()
	}

	lib := &Library{
		table:       table,
		backend:     backend,
		cfg:         cfg,
		bindings:    make(map[string]*Binding, len(decls)),
		byName:      make(map[string]*Binding, len(decls)),
		descriptors: make(map[string]*Descriptor, len(decls)),
		thunks:      make(map[string]Thunk, len(decls)),
		names:       make([]string, 0, len(decls)),
	}

	r := NewResolver(table, backend, cfg)
	seenEntry := make(map[string]string, len(decls))
	seenName := make(map[string]struct{}, len(decls))
	var missing []errors.MissingSymbol

	for _, d := range decls {
		entry := d.EntrypointName()
		if prev, dup := seenEntry[entry]; dup {
			return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
				Symbol(entry).
				Detail("declared by both %s and %s", prev, d.Name).
				Build()
		}
		if _, dup := seenName[d.Name]; dup {
			return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
				Detail("function %s declared twice", d.Name).
				Build()
		}
		// a name that is another function's entrypoint would make Function
		// and Lookup disagree
		if owner, taken := seenEntry[d.Name]; taken && owner != d.Name {
			return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
				Symbol(d.Name).
				Detail("function %s shadows the entrypoint of %s", d.Name, owner).
				Build()
		}
		if _, taken := seenName[entry]; taken && entry != d.Name {
			return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
				Symbol(entry).
				Detail("entrypoint of %s is the name of another function", d.Name).
				Build()
		}
		seenEntry[entry] = d.Name
		seenName[d.Name] = struct{}{}

		b, err := r.Resolve(d)
		if err != nil {
			if e, ok := err.(*errors.Error); ok && e.Kind == errors.KindSymbolMissing {
				missing = append(missing, errors.MissingSymbol{
					Library:    table.Name(),
					Entrypoint: entry,
					Function:   d.Name,
				})
				continue
			}
			return nil, errors.Load("binding "+d.Name, err)
		}

		lib.bindings[entry] = b
		lib.byName[d.Name] = b
		lib.descriptors[entry] = b.desc
		if b.thunk != nil {
			lib.thunks[entry] = b.thunk
		}
		lib.names = append(lib.names, d.Name)
	}

	if len(missing) > 0 {
		Logger().Warn("library load failed",
			zap.String("library", table.Name()),
			zap.Int("missing", len(missing)))
		return nil, errors.NewMissingSymbolsError(missing)
	}

	defaulted := len(lib.bindings) - len(lib.thunks)
	Logger().Info("library loaded",
		zap.String("library", table.Name()),
		zap.Int("functions", len(lib.bindings)),
		zap.Int("defaulted", defaulted))
	cfg.Debugf("loaded %s: %d functions, %d defaulted", table.Name(), len(lib.bindings), defaulted)
	return lib, nil
}

// Name returns the symbol table name.
func (l *Library) Name() string { return l.table.Name() }

// Symbols returns the symbol table the library was resolved against.
func (l *Library) Symbols() nativebind.SymbolTable { return l.table }

// Backend returns the backend the thunks were created by.
func (l *Library) Backend() Backend { return l.backend }

// Config returns the configuration used for calls.
func (l *Library) Config() *config.Config { return l.cfg }

// Descriptors returns the descriptors keyed by entrypoint.
func (l *Library) Descriptors() map[string]*Descriptor {
	out := make(map[string]*Descriptor, len(l.descriptors))
	for k, v := range l.descriptors {
		out[k] = v
	}
	return out
}

// Thunks returns the thunks of resolved functions keyed by entrypoint.
// Tolerant functions whose symbol was absent have no entry.
func (l *Library) Thunks() map[string]Thunk {
	out := make(map[string]Thunk, len(l.thunks))
	for k, v := range l.thunks {
		out[k] = v
	}
	return out
}

// Lookup returns the thunk bound to an entrypoint.
func (l *Library) Lookup(entrypoint string) (Thunk, bool) {
	t, ok := l.thunks[entrypoint]
	return t, ok
}

// Function returns the binding for a declared name or entrypoint.
func (l *Library) Function(name string) (*Binding, bool) {
	if b, ok := l.byName[name]; ok {
		return b, true
	}
	b, ok := l.bindings[name]
	return b, ok
}

// Names returns the declared function names in declaration order.
func (l *Library) Names() []string {
	return append([]string(nil), l.names...)
}

// Call invokes a function by declared name or entrypoint without a
// caller-supplied allocator. Load guarantees a name never collides with
// another function's entrypoint, so both resolve to the same binding that
// Lookup returns.
func (l *Library) Call(ctx context.Context, name string, args ...any) (any, error) {
	return l.CallWith(ctx, nil, name, args...)
}

// CallWith invokes a function, marshaling temporaries and indirect results
// with alloc. A nil alloc falls back to the library allocator unless the
// function requires a caller-supplied one.
//
// The result is nil for void functions, []byte for struct and array
// results, and the Go scalar type matching the result layout otherwise.
func (l *Library) CallWith(ctx context.Context, alloc nativebind.Allocator, name string, args ...any) (any, error) {
	b, ok := l.Function(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "function", name)
	}
	if b.thunk == nil {
		if data, ok := b.def.([]byte); ok {
			return append([]byte(nil), data...), nil
		}
		return b.def, nil
	}
	return l.invoke(ctx, b, alloc, args)
}

func (l *Library) invoke(ctx context.Context, b *Binding, alloc nativebind.Allocator, args []any) (any, error) {
	entry := b.desc.entrypoint
	if len(args) != len(b.params) {
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Symbol(entry).
			Detail("expected %d arguments, got %d", len(b.params), len(args)).
			Build()
	}

	if alloc == nil {
		if b.decl.Allocator == AllocatorRequired {
			return nil, errors.New(errors.PhaseValidate, errors.KindNilPointer).
				Symbol(entry).
				Detail("function requires a caller-supplied allocator").
				Build()
		}
		alloc = l.backend.Allocator()
	}

	f := &frame{
		mem:    l.backend.Memory(),
		alloc:  alloc,
		allocs: newAllocationList(),
		cfg:    l.cfg,
		symbol: entry,
	}
	defer f.allocs.freeAndRelease(alloc)

	words := make([]uint64, 0, len(b.params)+1)
	var resultAddr uint64
	res, hasResult := b.desc.Result()
	if b.desc.indirect {
		addr, err := f.reserve(res.Size(), res.Align())
		if err != nil {
			return nil, withSymbol(err, entry)
		}
		resultAddr = addr
		words = append(words, addr)
	}
	for i, p := range b.params {
		w, err := f.marshal(p, args[i])
		if err != nil {
			return nil, withSymbol(err, entry)
		}
		words = append(words, w)
	}

	l.trace("call %s %v", entry, words)
	ret, err := b.thunk.Call(ctx, words)
	if err != nil {
		return nil, errors.New(errors.PhaseCall, errors.KindTrap).
			Symbol(entry).
			Cause(err).
			Detail("native call failed").
			Build()
	}
	if err := f.finish(); err != nil {
		return nil, withSymbol(err, entry)
	}

	switch {
	case !hasResult:
		return nil, nil
	case b.desc.indirect:
		out, err := f.readResult(resultAddr, res.Size())
		return out, withSymbol(err, entry)
	}
	return decodeScalar(res, ret), nil
}

// trace reports a call through the config sink when debugging is enabled.
func (l *Library) trace(format string, args ...any) {
	if !l.cfg.Debug.Get() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.cfg.DebugStack.Get() {
		msg += "\n" + callers(l.cfg.StackFrames.Get())
	}
	l.cfg.APILog(msg)
}

func callers(depth int) string {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(3, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		fr, more := frames.Next()
		fmt.Fprintf(&b, "\t%s %s:%d\n", fr.Function, fr.File, fr.Line)
		if !more {
			break
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
