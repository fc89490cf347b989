package bind

import (
	"sync"

	"github.com/wippyai/nativebind"
)

type allocation struct {
	addr  uint64
	size  uint64
	align uint64
}

// allocationList tracks temporaries of one call so they are freed together.
type allocationList struct {
	allocations []allocation
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &allocationList{allocations: make([]allocation, 0, 8)}
	},
}

const maxPooledAllocationCapacity = 128

func newAllocationList() *allocationList {
	return allocationListPool.Get().(*allocationList)
}

func (al *allocationList) add(addr, size, align uint64) {
	al.allocations = append(al.allocations, allocation{addr: addr, size: size, align: align})
}

// freeAndRelease frees in reverse order and returns the list to the pool.
// The list must not be used afterwards.
func (al *allocationList) freeAndRelease(allocator nativebind.Allocator) {
	if allocator != nil {
		for i := len(al.allocations) - 1; i >= 0; i-- {
			a := al.allocations[i]
			if a.addr != 0 {
				allocator.Free(a.addr, a.size, a.align)
			}
		}
	}
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.allocations = al.allocations[:0]
	allocationListPool.Put(al)
}
