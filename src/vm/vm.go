// Package vm is the VM coordinator (C9): top-level entry points for
// page faults, frame allocation under memory pressure, and mmap/munmap,
// wiring together the frame table, swap area, supplemental page table
// and physical allocator. Grounded on the original source's vm/vm.c;
// the x86 page-table manipulation that file also contained belongs to
// the hardware page directory (package pagedir), out of scope here.
package vm

import (
	"sync"

	"github.com/ktk1012/OOOS/src/frame"
	"github.com/ktk1012/OOOS/src/mem"
	"github.com/ktk1012/OOOS/src/pagedir"
	"github.com/ktk1012/OOOS/src/palloc"
	"github.com/ktk1012/OOOS/src/swap"
	"github.com/ktk1012/OOOS/src/util"
	"github.com/ktk1012/OOOS/src/vmpage"
)

// AddressSpace pairs one process's supplemental page table with its
// hardware page directory, and implements frame.Owner so the
// frame-eviction path can acquire its page lock before touching it.
type AddressSpace struct {
	pd  *pagedir.Directory
	sup *vmpage.Table_t
}

// NewAddressSpace creates an empty address space over a fresh hardware
// page directory.
func NewAddressSpace(pd *pagedir.Directory) *AddressSpace {
	return &AddressSpace{pd: pd, sup: vmpage.New()}
}

func (a *AddressSpace) Sup() *vmpage.Table_t  { return a.sup }
func (a *AddressSpace) Dir() *pagedir.Directory { return a.pd }

func (a *AddressSpace) Lock()   { a.sup.Lock() }
func (a *AddressSpace) Unlock() { a.sup.Unlock() }
func (a *AddressSpace) IsAccessed(vpage uintptr) bool {
	return a.pd.IsAccessed(vpage)
}
func (a *AddressSpace) ClearAccessed(vpage uintptr) {
	a.pd.SetAccessed(vpage, false)
}

// stackSlack is the 32-byte slack below the user stack pointer within
// which an unmapped fault is treated as stack growth rather than a
// segfault, per §4.7 and scenario 5 of §8.
const stackSlack = 32

// MmapDesc is a live memory-mapped-file descriptor, returned by Mmap
// and consumed by Munmap.
type MmapDesc struct {
	id    int
	as    *AddressSpace
	file  vmpage.File
	pages []uintptr
}

// Coordinator is the VM singleton: the frame table and swap area are
// process-wide, and the mmap-wide lock (level 4 in §5's hierarchy)
// serializes Mmap/Munmap across all processes.
type Coordinator struct {
	frames *frame.Table_t
	swaps  *swap.Table_t
	alloc  *palloc.Allocator

	mmapMu     sync.Mutex
	nextMmapID int
	mmaps      map[int]*MmapDesc
}

// NewCoordinator wires the VM coordinator to the shared frame table,
// swap area and physical allocator — vm_init's role in §4.7, with the
// frame/swap tables constructed by the caller so they can be shared
// with diagnostics.
func NewCoordinator(frames *frame.Table_t, swaps *swap.Table_t, alloc *palloc.Allocator) *Coordinator {
	return &Coordinator{frames: frames, swaps: swaps, alloc: alloc, mmaps: make(map[int]*MmapDesc)}
}

// Load resolves a page fault at faultAddr given the current user stack
// pointer, per §4.7's four-way dispatch. It returns false when the
// fault cannot be resolved (no supplemental entry and not a plausible
// stack growth), the case a trap handler turns into process
// termination — which is the caller's responsibility since the
// trap/process layer is out of scope here.
func (c *Coordinator) Load(as *AddressSpace, faultAddr, userSP uintptr) bool {
	vpage := mem.PGROUNDDOWN(faultAddr)

	if e, ok := as.sup.Get(vpage); ok {
		switch e.Kind {
		case vmpage.OnSwap:
			return c.swapIn(as, vpage, e)
		case vmpage.FileBacked, vmpage.Mmap:
			return c.loadDemand(as, vpage, e)
		default:
			panic("vm: fault on a RESIDENT supplemental entry")
		}
	}

	if int64(faultAddr) >= int64(userSP)-stackSlack {
		phys, ok := c.getFrame(as, palloc.FlagZero, vpage)
		if !ok {
			return false
		}
		as.sup.Install(vpage, phys, true)
		as.pd.SetMapping(vpage, phys, true)
		return true
	}
	return false
}

func (c *Coordinator) swapIn(as *AddressSpace, vpage uintptr, e *vmpage.Entry_t) bool {
	phys, ok := c.getFrame(as, 0, vpage)
	if !ok {
		return false
	}
	buf := c.alloc.Deref(phys)
	c.swaps.Read(e.SwapSlot, buf)
	as.sup.ConvertToResident(vpage, phys)
	as.pd.SetMapping(vpage, phys, e.Writable)
	return true
}

func (c *Coordinator) loadDemand(as *AddressSpace, vpage uintptr, e *vmpage.Entry_t) bool {
	phys, ok := c.getFrame(as, 0, vpage)
	if !ok {
		return false
	}
	buf := c.alloc.Deref(phys)
	if err := as.sup.LoadDemand(vpage, phys, buf); err != 0 {
		as.pd.ClearMapping(vpage)
		c.frames.Free(phys)
		c.alloc.Free(phys)
		return false
	}
	as.pd.SetMapping(vpage, phys, e.Writable)
	return true
}

// getFrame allocates one physical page and registers it in the frame
// table, evicting a victim and retrying if the pool is exhausted, per
// §4.7's get_frame.
func (c *Coordinator) getFrame(as *AddressSpace, flags palloc.Flags, vpage uintptr) (mem.Pa_t, bool) {
	for {
		phys, _, ok := c.alloc.Get(flags)
		if ok {
			c.frames.Add(phys, vpage, as)
			return phys, true
		}
		if !c.evictOne() {
			return 0, false
		}
	}
}

// evictOne runs one eviction per §4.7(a)-(c): MMAP-dirty writes back
// to its file; anything else not plain clean FILE_BACKED goes to swap;
// a clean plain FILE_BACKED page is simply discarded.
func (c *Coordinator) evictOne() bool {
	phys, vpage, ownerI, ok := c.frames.Evict()
	if !ok {
		return false
	}
	owner := ownerI.(*AddressSpace)

	e, found := owner.sup.Get(vpage)
	dirty := owner.pd.IsDirty(vpage)
	buf := c.alloc.Deref(phys)

	switch {
	case found && e.Kind == vmpage.Mmap && dirty:
		if e.File != nil {
			e.File.WriteAt(buf[:e.ReadBytes], e.ReadBytes, e.Offset)
		}
		owner.sup.Unload(vpage)
	case found && (e.Kind != vmpage.FileBacked || dirty):
		slot := c.swaps.Write(buf)
		owner.sup.ConvertToSwap(vpage, slot)
	case found:
		owner.sup.Unload(vpage)
	}
	owner.pd.ClearMapping(vpage)

	c.frames.Free(phys)
	c.alloc.Free(phys)
	return true
}

// Mmap maps size bytes of file starting at user virtual address start,
// one lazy MMAP supplemental entry per page. Any chunk colliding with
// an existing mapping rolls the entire mmap back, per §4.7.
func (c *Coordinator) Mmap(as *AddressSpace, file vmpage.File, start uintptr, size int) (*MmapDesc, bool) {
	c.mmapMu.Lock()
	defer c.mmapMu.Unlock()

	npages := (size + mem.PGSIZE - 1) / mem.PGSIZE
	desc := &MmapDesc{as: as, file: file}
	for i := 0; i < npages; i++ {
		vp := start + uintptr(i*mem.PGSIZE)
		if _, exists := as.sup.Get(vp); exists {
			for _, p := range desc.pages {
				as.sup.Delete(p)
			}
			return nil, false
		}
		off := i * mem.PGSIZE
		readBytes := util.Min(size-off, mem.PGSIZE)
		zeroBytes := mem.PGSIZE - readBytes
		as.sup.LazyInstall(vp, file, off, readBytes, zeroBytes, true, vmpage.Mmap)
		desc.pages = append(desc.pages, vp)
	}
	c.nextMmapID++
	desc.id = c.nextMmapID
	c.mmaps[desc.id] = desc
	return desc, true
}

// Munmap walks the mapping's pages, writing back dirty resident ones,
// freeing frames, and removing the supplemental entries.
func (c *Coordinator) Munmap(desc *MmapDesc) {
	c.mmapMu.Lock()
	defer c.mmapMu.Unlock()

	for _, vp := range desc.pages {
		e, ok := desc.as.sup.Get(vp)
		if !ok {
			continue
		}
		if e.IsLoaded {
			if desc.as.pd.IsDirty(vp) && e.File != nil {
				buf := c.alloc.Deref(e.Phys)
				e.File.WriteAt(buf[:e.ReadBytes], e.ReadBytes, e.Offset)
			}
			desc.as.pd.ClearMapping(vp)
			c.frames.Free(e.Phys)
			c.alloc.Free(e.Phys)
		} else if e.Kind == vmpage.OnSwap {
			c.swaps.Delete(e.SwapSlot)
		}
		desc.as.sup.Delete(vp)
	}
	delete(c.mmaps, desc.id)
}

// DestroyAll tears an address space down at process exit: flush dirty
// MMAP pages back to their files, free resident frames, release swap
// slots, per §4.6's destroy_all.
func (c *Coordinator) DestroyAll(as *AddressSpace) {
	for vp, e := range as.sup.All() {
		switch e.Kind {
		case vmpage.OnSwap:
			c.swaps.Delete(e.SwapSlot)
		case vmpage.Mmap:
			if e.IsLoaded {
				if as.pd.IsDirty(vp) && e.File != nil {
					buf := c.alloc.Deref(e.Phys)
					e.File.WriteAt(buf[:e.ReadBytes], e.ReadBytes, e.Offset)
				}
				as.pd.ClearMapping(vp)
				c.frames.Free(e.Phys)
				c.alloc.Free(e.Phys)
			}
		default: // Resident, FileBacked
			if e.IsLoaded {
				as.pd.ClearMapping(vp)
				c.frames.Free(e.Phys)
				c.alloc.Free(e.Phys)
			}
		}
		as.sup.Delete(vp)
	}
}
