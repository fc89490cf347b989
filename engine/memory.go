package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
)

const (
	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"

	// Fallbacks for modules built without the component model
	legacyRealloc = "canonical_abi_realloc"
	libcMalloc    = "malloc"
	simpleAlloc   = "alloc"
	libcFree      = "free"
)

// Memory adapts wazero api.Memory to nativebind.Memory.
type Memory struct {
	mem api.Memory
}

func bounds(addr, length uint64) (uint32, uint32, bool) {
	if addr > math.MaxUint32 || length > math.MaxUint32 {
		return 0, 0, false
	}
	return uint32(addr), uint32(length), true
}

// Read returns a view of length bytes at addr. The view is invalidated
// when the memory grows.
func (m *Memory) Read(addr, length uint64) ([]byte, error) {
	off, n, ok := bounds(addr, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, addr, length)
	}
	data, ok := m.mem.Read(off, n)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, addr, length)
	}
	return data, nil
}

// Write copies data to addr.
func (m *Memory) Write(addr uint64, data []byte) error {
	off, _, ok := bounds(addr, uint64(len(data)))
	if !ok || !m.mem.Write(off, data) {
		return errors.OutOfBounds(errors.PhaseCall, addr, uint64(len(data)))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Memory) ReadU32(addr uint64) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(uint32(addr))
	if !ok || addr > math.MaxUint32 {
		return 0, errors.OutOfBounds(errors.PhaseCall, addr, 4)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Memory) WriteU32(addr uint64, v uint32) error {
	if addr > math.MaxUint32 || !m.mem.WriteUint32Le(uint32(addr), v) {
		return errors.OutOfBounds(errors.PhaseCall, addr, 4)
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(m.mem.Size())
}

// allocator calls the module's allocation exports.
type allocator struct {
	allocFn   api.Function
	freeFn    api.Function
	mu        *sync.Mutex
	isRealloc bool
	freeArgs  int
}

func newAllocator(mod api.Module, mu *sync.Mutex) *allocator {
	a := &allocator{mu: mu}
	for _, name := range []string{CabiRealloc, legacyRealloc, libcMalloc, simpleAlloc} {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		def := fn.Definition()
		switch {
		case len(def.ParamTypes()) == 4 && len(def.ResultTypes()) == 1:
			a.allocFn, a.isRealloc = fn, true
		case len(def.ParamTypes()) == 1 && len(def.ResultTypes()) == 1:
			a.allocFn = fn
		default:
			continue
		}
		break
	}
	if a.allocFn == nil {
		return nil
	}

	for _, name := range []string{CabiFree, libcFree} {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		n := len(fn.Definition().ParamTypes())
		if n >= 1 && n <= 3 && len(fn.Definition().ResultTypes()) == 0 {
			a.freeFn, a.freeArgs = fn, n
			break
		}
	}
	return a
}

// Alloc allocates memory in the module.
func (a *allocator) Alloc(size, align uint64) (uint64, error) {
	if size > math.MaxUint32 {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, fmt.Errorf("exceeds 32-bit address space"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var stack []uint64
	if a.isRealloc {
		stack = []uint64{0, 0, align, size}
	} else {
		stack = []uint64{size}
	}
	if err := a.allocFn.CallWithStack(context.Background(), stack); err != nil {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, err)
	}
	addr := uint64(uint32(stack[0]))
	if addr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, fmt.Errorf("allocator returned null"))
	}
	return addr, nil
}

// Free releases memory. Without a free export it is a no-op unless the
// allocator is a realloc, which frees on a new size of zero.
func (a *allocator) Free(addr, size, align uint64) {
	if addr == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var fn api.Function
	var stack []uint64
	switch {
	case a.freeFn != nil:
		fn = a.freeFn
		stack = []uint64{addr, size, align}[:a.freeArgs]
	case a.isRealloc:
		fn = a.allocFn
		stack = []uint64{addr, size, align, 0}
	default:
		return
	}
	if err := fn.CallWithStack(context.Background(), stack); err != nil {
		Logger().Warn("free failed",
			zap.Uint64("addr", addr),
			zap.Uint64("size", size),
			zap.Error(err))
	}
}
