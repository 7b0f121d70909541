// Package vmpage is the supplemental page table (C8): a per-process
// map from user virtual page to a tagged union describing where that
// page's content actually lives. Grounded on the original source's
// vm/page.c and vm/page.h, generalized from the original's three-way
// enum (MEM/DISK/FILE) to the specification's four-way union that adds
// a distinct MMAP kind (the original folds mmap into FILE and
// distinguishes by a side list, spec.md §3 makes it a first-class tag).
package vmpage

import (
	"sync"

	"github.com/ktk1012/OOOS/src/defs"
	"github.com/ktk1012/OOOS/src/mem"
)

// Kind tags the union variant. No vtables: the VM coordinator
// dispatches on Kind directly, per SPEC_FULL.md §9.
type Kind int

const (
	Resident Kind = iota
	OnSwap
	FileBacked
	Mmap
)

// File is the narrow slice of the inode layer this package needs:
// byte-granular reads and writes at an offset. Kept as an interface so
// vmpage never imports package inode directly — the VM coordinator
// supplies the adapter.
type File interface {
	ReadAt(dst []byte, size, offset int) (int, defs.Err_t)
	WriteAt(src []byte, size, offset int) (int, defs.Err_t)
}

// Entry_t is one supplemental page table entry.
type Entry_t struct {
	Kind     Kind
	Writable bool
	IsLoaded bool

	// Valid when Kind == Resident, or when Kind == FileBacked/Mmap and
	// IsLoaded is true.
	Phys mem.Pa_t

	// Valid when Kind == OnSwap.
	SwapSlot int

	// Valid when Kind == FileBacked or Mmap.
	File      File
	Offset    int
	ReadBytes int
	ZeroBytes int
}

// Table_t is one process's supplemental page table. Its lock is the
// per-process supplemental-page lock, level 5 in §5's hierarchy — also
// the lock the frame-eviction path acquires (via the frame.Owner
// adapter) before mutating a victim it does not own.
type Table_t struct {
	mu      sync.Mutex
	entries map[uintptr]*Entry_t
}

// New returns an empty supplemental page table.
func New() *Table_t {
	return &Table_t{entries: make(map[uintptr]*Entry_t)}
}

func (t *Table_t) Lock()   { t.mu.Lock() }
func (t *Table_t) Unlock() { t.mu.Unlock() }

// Install eagerly maps vpage to an already-resident anonymous frame
// (newly-allocated stack/heap pages).
func (t *Table_t) Install(vpage uintptr, phys mem.Pa_t, writable bool) *Entry_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry_t{Kind: Resident, Phys: phys, Writable: writable, IsLoaded: true}
	t.entries[vpage] = e
	return e
}

// LazyInstall registers vpage as backed by a file region, not yet
// loaded. kind must be FileBacked or Mmap.
func (t *Table_t) LazyInstall(vpage uintptr, f File, offset, readBytes, zeroBytes int, writable bool, kind Kind) *Entry_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &Entry_t{
		Kind:      kind,
		File:      f,
		Offset:    offset,
		ReadBytes: readBytes,
		ZeroBytes: zeroBytes,
		Writable:  writable,
	}
	t.entries[vpage] = e
	return e
}

// Get looks up the entry for vpage.
func (t *Table_t) Get(vpage uintptr) (*Entry_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vpage]
	return e, ok
}

// Delete removes the entry for vpage.
func (t *Table_t) Delete(vpage uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, vpage)
}

// All returns a snapshot of every entry, keyed by virtual page. Used
// by the VM coordinator's process-exit teardown (destroy_all).
func (t *Table_t) All() map[uintptr]*Entry_t {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uintptr]*Entry_t, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// ConvertToSwap transitions a resident entry to ON_SWAP after eviction
// writes its contents to slot.
func (t *Table_t) ConvertToSwap(vpage uintptr, slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vpage]
	if !ok {
		return
	}
	e.Kind = OnSwap
	e.SwapSlot = slot
	e.IsLoaded = false
	e.Phys = 0
}

// ConvertToResident transitions an ON_SWAP or lazy FILE/MMAP entry
// back to a loaded, resident page.
func (t *Table_t) ConvertToResident(vpage uintptr, phys mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vpage]
	if !ok {
		return
	}
	e.Kind = Resident
	e.Phys = phys
	e.SwapSlot = 0
	e.IsLoaded = true
}

// Unload discards a clean FILE_BACKED page's frame without touching
// swap: the entry still carries enough (file, offset, read/zero bytes)
// to be re-demanded later, the LAZY state of §4.8's state machine.
func (t *Table_t) Unload(vpage uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[vpage]
	if !ok {
		return
	}
	e.IsLoaded = false
	e.Phys = 0
}

// LoadDemand reads ReadBytes from (File, Offset) into buf, zero-pads
// the remainder, and marks the entry loaded at phys — called on fault
// for FILE_BACKED and MMAP entries, per §4.6.
func (t *Table_t) LoadDemand(vpage uintptr, phys mem.Pa_t, buf *mem.Bytepg_t) defs.Err_t {
	t.mu.Lock()
	e, ok := t.entries[vpage]
	t.mu.Unlock()
	if !ok {
		return defs.EINVAL
	}

	if e.File != nil && e.ReadBytes > 0 {
		n, err := e.File.ReadAt(buf[:e.ReadBytes], e.ReadBytes, e.Offset)
		if err != 0 {
			return err
		}
		for i := n; i < e.ReadBytes; i++ {
			buf[i] = 0
		}
	}
	for i := e.ReadBytes; i < e.ReadBytes+e.ZeroBytes && i < len(buf); i++ {
		buf[i] = 0
	}

	t.mu.Lock()
	e.Phys = phys
	e.IsLoaded = true
	t.mu.Unlock()
	return 0
}
