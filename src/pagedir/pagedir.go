// Package pagedir is the hardware page directory (C11): an external
// contract per the specification. Real hardware exposes this as x86
// page-table-entry bits (see the teacher's deleted vm/as.go for what
// that looked like); here it is a test double so the VM coordinator and
// frame table are exercisable without real hardware or a custom
// runtime, the same role the teacher's own fake disk (ufs/driver.go)
// plays for the block device.
package pagedir

import (
	"sync"

	"github.com/ktk1012/OOOS/src/mem"
)

type entry struct {
	pa       mem.Pa_t
	writable bool
	accessed bool
	dirty    bool
}

// Directory simulates one process's hardware page table: a mapping
// from user virtual page (already page-aligned) to physical page plus
// its accessed/dirty bits.
type Directory struct {
	mu      sync.Mutex
	entries map[uintptr]*entry
}

// New returns an empty page directory.
func New() *Directory {
	return &Directory{entries: make(map[uintptr]*entry)}
}

// SetMapping installs vpage -> pa, resetting accessed/dirty.
func (d *Directory) SetMapping(vpage uintptr, pa mem.Pa_t, writable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[vpage] = &entry{pa: pa, writable: writable}
}

// ClearMapping removes any mapping for vpage. It is a no-op if absent.
func (d *Directory) ClearMapping(vpage uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, vpage)
}

// Mapping reports the physical page mapped at vpage, if any.
func (d *Directory) Mapping(vpage uintptr) (mem.Pa_t, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[vpage]
	if !ok {
		return 0, false
	}
	return e.pa, true
}

// IsAccessed reports and SetAccessed sets the hardware accessed bit;
// IsDirty reports the hardware dirty bit. All are no-ops (false) for
// an unmapped page, matching real hardware's behavior of only tracking
// bits for present entries.
func (d *Directory) IsAccessed(vpage uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[vpage]
	return ok && e.accessed
}

func (d *Directory) SetAccessed(vpage uintptr, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[vpage]; ok {
		e.accessed = v
	}
}

func (d *Directory) IsDirty(vpage uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[vpage]
	return ok && e.dirty
}

func (d *Directory) SetDirty(vpage uintptr, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[vpage]; ok {
		e.dirty = v
	}
}

// Touch records a simulated memory access through this mapping,
// setting the accessed bit and, for writes, the dirty bit. Production
// hardware does this automatically on every load/store; tests call it
// explicitly to model an access.
func (d *Directory) Touch(vpage uintptr, write bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[vpage]
	if !ok {
		return
	}
	e.accessed = true
	if write {
		e.dirty = true
	}
}
