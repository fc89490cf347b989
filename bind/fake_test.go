package bind

import (
	"context"
	"fmt"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// fakeMemory is a bump-allocated byte slice starting at address 16 so that
// zero stays a null pointer.
type fakeMemory struct {
	data  []byte
	next  uint64
	live  map[uint64]uint64
	freed int
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{data: make([]byte, size), next: 16, live: map[uint64]uint64{}}
}

func (m *fakeMemory) Read(addr, length uint64) ([]byte, error) {
	if addr+length > uint64(len(m.data)) {
		return nil, errors.OutOfBounds(errors.PhaseCall, addr, length)
	}
	return m.data[addr : addr+length], nil
}

func (m *fakeMemory) Write(addr uint64, data []byte) error {
	if addr+uint64(len(data)) > uint64(len(m.data)) {
		return errors.OutOfBounds(errors.PhaseCall, addr, uint64(len(data)))
	}
	copy(m.data[addr:], data)
	return nil
}

func (m *fakeMemory) Alloc(size, align uint64) (uint64, error) {
	addr, _ := layout.AlignTo(m.next, align)
	if addr+size > uint64(len(m.data)) {
		return 0, fmt.Errorf("out of memory")
	}
	m.next = addr + size
	m.live[addr] = size
	return addr, nil
}

func (m *fakeMemory) Free(addr, size, align uint64) {
	delete(m.live, addr)
	m.freed++
}

// fakeBackend calls Go functions stored in Symbol.Ref.
type fakeBackend struct {
	mem      *fakeMemory
	model    layout.Model
	noFloats bool
	bound    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{mem: newFakeMemory(4096), model: layout.LP64}
}

func (b *fakeBackend) Model() layout.Model { return b.model }

func (b *fakeBackend) Bind(sym nativebind.Symbol, desc *Descriptor) (Thunk, error) {
	if b.noFloats {
		params, res, ok := desc.Lowered(b.model.Pointer())
		if ok {
			params = append(params, res)
		}
		for _, p := range params {
			if p.Class == layout.ClassFloat {
				return nil, errors.Unsupported(errors.PhaseBind, "float arguments")
			}
		}
	}
	fn, ok := sym.Ref.(ThunkFunc)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseBind, "symbol is not callable")
	}
	b.bound = append(b.bound, sym.Name)
	return fn, nil
}

func (b *fakeBackend) Memory() nativebind.Memory { return b.mem }

func (b *fakeBackend) Allocator() nativebind.Allocator { return b.mem }

func fn(name string, f func(args []uint64) uint64) nativebind.Symbol {
	return nativebind.Symbol{
		Name: name,
		Ref: ThunkFunc(func(_ context.Context, args []uint64) (uint64, error) {
			return f(args), nil
		}),
	}
}

func ptr(l layout.Layout) *layout.Layout { return &l }
