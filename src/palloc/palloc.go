// Package palloc is the physical page allocator (C10). It is an
// external contract per the specification, implemented concretely here
// so the frame table and VM coordinator are testable without real
// hardware: a fixed-size pool of physical pages handed out and
// returned through a free list, grounded on the teacher's
// mem.Physmem_t free-list pattern with the direct-map/TLB/percpu
// machinery stripped out (that machinery belongs to the hardware page
// directory, package pagedir, which is out of scope here).
package palloc

import (
	"sync"

	"github.com/ktk1012/OOOS/src/mem"
)

// Flags requested from Get. Zero-filling is the only distinction this
// domain needs (user pages must never leak a prior owner's bytes).
type Flags int

const (
	FlagZero Flags = 1 << iota
)

type freeNode struct {
	pa   mem.Pa_t
	next *freeNode
}

// Allocator is a fixed-size pool of physical pages.
type Allocator struct {
	mu     sync.Mutex
	free   *freeNode
	pages  map[mem.Pa_t]*mem.Bytepg_t
	nfree  int
	ntotal int
}

// New creates an allocator backed by n freshly allocated pages.
func New(n int) *Allocator {
	a := &Allocator{
		pages:  make(map[mem.Pa_t]*mem.Bytepg_t, n),
	}
	for i := 0; i < n; i++ {
		buf := new(mem.Bytepg_t)
		pa := mem.Pa_t(uintptr(i) + 1)
		a.pages[pa] = buf
		a.free = &freeNode{pa: pa, next: a.free}
	}
	a.nfree = n
	a.ntotal = n
	return a
}

// Get removes one page from the free list and returns its physical
// address and backing buffer. The second return is false when the
// pool is exhausted; callers (frame.Evict via the VM coordinator) are
// expected to evict a victim and retry.
func (a *Allocator) Get(flags Flags) (mem.Pa_t, *mem.Bytepg_t, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free == nil {
		return 0, nil, false
	}
	n := a.free
	a.free = n.next
	a.nfree--

	buf := a.pages[n.pa]
	if flags&FlagZero != 0 {
		for i := range buf {
			buf[i] = 0
		}
	}
	return n.pa, buf, true
}

// Free returns a page to the pool.
func (a *Allocator) Free(pa mem.Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.pages[pa]; !ok {
		panic("palloc: free of unknown page")
	}
	a.free = &freeNode{pa: pa, next: a.free}
	a.nfree++
}

// Deref returns the backing buffer for a physical address previously
// returned by Get.
func (a *Allocator) Deref(pa mem.Pa_t) *mem.Bytepg_t {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages[pa]
}

// Free_pages reports how many pages remain in the pool.
func (a *Allocator) Free_pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nfree
}
