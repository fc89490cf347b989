package native

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"unsafe"

	"github.com/wippyai/nativebind/errors"
)

// DefaultArenaSize is used when no size is configured.
const DefaultArenaSize = 64 << 10

// Arena is a pinned Go heap buffer used as native scratch memory. It
// implements nativebind.Memory and nativebind.Allocator. Addresses are
// process addresses inside the buffer.
//
// Allocation is first fit over the gaps between live blocks, so blocks
// freed in any order are reusable immediately.
type Arena struct {
	pinner runtime.Pinner
	buf    []byte
	blocks []block // live, sorted by start
	base   uint64
	used   uint64
	mu     sync.Mutex
	closed bool
}

// block is a live allocation as buffer offsets [start, end).
type block struct {
	start uint64
	end   uint64
}

// NewArena pins a buffer of size bytes. A non-positive size uses
// DefaultArenaSize.
func NewArena(size int) *Arena {
	if size <= 0 {
		size = DefaultArenaSize
	}
	a := &Arena{buf: make([]byte, size)}
	a.pinner.Pin(&a.buf[0])
	a.base = uint64(uintptr(unsafe.Pointer(&a.buf[0])))
	return a
}

// Base returns the address of the first byte.
func (a *Arena) Base() uint64 { return a.base }

// Size returns the capacity in bytes.
func (a *Arena) Size() uint64 { return uint64(len(a.buf)) }

// Used returns the number of bytes held by live allocations.
func (a *Arena) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Arena) offset(addr, length uint64) (uint64, bool) {
	if a.closed || addr < a.base {
		return 0, false
	}
	off := addr - a.base
	if off > uint64(len(a.buf)) || length > uint64(len(a.buf))-off {
		return 0, false
	}
	return off, true
}

// Read returns a view of length bytes at addr.
func (a *Arena) Read(addr, length uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, ok := a.offset(addr, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, addr, length)
	}
	return a.buf[off : off+length : off+length], nil
}

// Write copies data to addr.
func (a *Arena) Write(addr uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	off, ok := a.offset(addr, uint64(len(data)))
	if !ok {
		return errors.OutOfBounds(errors.PhaseCall, addr, uint64(len(data)))
	}
	copy(a.buf[off:], data)
	return nil
}

// Alloc reserves size bytes aligned to align. The memory is zeroed.
func (a *Arena) Alloc(size, align uint64) (uint64, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, fmt.Errorf("alignment must be a power of two"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, fmt.Errorf("arena closed"))
	}
	if size == 0 {
		// keep block starts unique
		size = 1
	}
	var cursor uint64
	for i := 0; i <= len(a.blocks); i++ {
		limit := uint64(len(a.buf))
		if i < len(a.blocks) {
			limit = a.blocks[i].start
		}
		// align the absolute address, the base is only word aligned
		addr := (a.base + cursor + align - 1) &^ (align - 1)
		if off := addr - a.base; off <= limit && size <= limit-off {
			a.blocks = slices.Insert(a.blocks, i, block{start: off, end: off + size})
			a.used += size
			clear(a.buf[off : off+size])
			return addr, nil
		}
		if i < len(a.blocks) {
			cursor = a.blocks[i].end
		}
	}
	return 0, errors.AllocationFailed(errors.PhaseCall, size, align,
		fmt.Errorf("arena exhausted: %d of %d bytes used", a.used, len(a.buf)))
}

// Free releases the block at addr. Unknown addresses and double frees are
// ignored.
func (a *Arena) Free(addr, _, _ uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr < a.base {
		return
	}
	off := addr - a.base
	i, found := slices.BinarySearchFunc(a.blocks, off, func(b block, off uint64) int {
		return cmp.Compare(b.start, off)
	})
	if !found {
		return
	}
	a.used -= a.blocks[i].end - a.blocks[i].start
	a.blocks = slices.Delete(a.blocks, i, i+1)
}

// Close unpins the buffer. The arena is unusable afterwards.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.pinner.Unpin()
}
