package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/nativebind/errors"
)

type hostFunc struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// HostBuilder builds a Library from Go functions.
type HostBuilder struct {
	engine *Engine
	memory *Library
	name   string
	funcs  []hostFunc
}

// NewHost starts building a host library with the given module name.
func (e *Engine) NewHost(name string) *HostBuilder {
	return &HostBuilder{engine: e, name: name}
}

// Func adds a function operating on the raw value stack.
func (b *HostBuilder) Func(name string, fn api.GoModuleFunc, params, results []api.ValueType) *HostBuilder {
	b.funcs = append(b.funcs, hostFunc{fn: fn, name: name, params: params, results: results})
	return b
}

// WithMemory makes the library marshal arguments into another library's
// memory with that library's allocator. Host modules cannot export memory.
func (b *HostBuilder) WithMemory(lib *Library) *HostBuilder {
	b.memory = lib
	return b
}

// Build instantiates the host module into the engine's runtime.
func (b *HostBuilder) Build(ctx context.Context) (*Library, error) {
	if b.name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "host library needs a name")
	}
	builder := b.engine.runtime.NewHostModuleBuilder(b.name)
	for _, f := range b.funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Load("instantiate host module "+b.name, err)
	}

	lib := wrap(mod, b.name)
	if b.memory != nil {
		lib.mem = b.memory.mem
		lib.alloc = b.memory.alloc
	}
	return lib, nil
}
