package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

const wasiModuleName = "wasi_snapshot_preview1"

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 before the first module so
	// that modules built by wasi-sdk can be loaded.
	WASI bool

	// CloseOnContextDone interrupts running calls when their context ends.
	CloseOnContextDone bool
}

// Engine owns a wazero runtime.
type Engine struct {
	runtime      wazero.Runtime
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
	wasi         bool
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) *Engine {
	runtimeCfg := wazero.NewRuntimeConfig()
	e := &Engine{}
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
		e.wasi = cfg.WASI
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return e
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close closes the runtime and every module instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitWASI instantiates the WASI host module once per engine.
// Safe for concurrent calls.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return errors.Load("instantiate WASI", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// Open compiles and instantiates a module and wraps it as a Library.
// An empty name instantiates the module anonymously.
func (e *Engine) Open(ctx context.Context, wasm []byte, name string) (*Library, error) {
	if e.wasi {
		if err := e.InitWASI(ctx); err != nil {
			return nil, err
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	modConfig := wazero.NewModuleConfig().WithName(name)
	if _, ok := compiled.ExportedFunctions()["_initialize"]; ok {
		// reactor modules run their constructors through _initialize
		modConfig = modConfig.WithStartFunctions("_initialize")
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Load("instantiate module", err)
	}

	lib := wrap(mod, name)
	lib.compiled = compiled
	Logger().Debug("library opened",
		zap.String("name", lib.Name()),
		zap.Int("exports", len(lib.Exports())),
		zap.Bool("memory", lib.mem != nil),
		zap.Bool("allocator", lib.alloc != nil))
	return lib, nil
}
