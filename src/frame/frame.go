// Package frame is the frame table (C7): every physical page handed
// out to a process, keyed by physical address, with second-chance
// (clock) eviction. Grounded on the original source's vm/frame.c (hash
// table + doubly-linked clock list with a persistent cursor) and on
// the teacher's hashtable.Hashtable_t for the keyed lookup.
package frame

import (
	"container/list"
	"sync"

	"github.com/ktk1012/OOOS/src/hashtable"
	"github.com/ktk1012/OOOS/src/mem"
	"github.com/ktk1012/OOOS/src/stats"
)

// Owner abstracts the process/address-space a frame belongs to. The
// scheduler and address-space layers are external collaborators per
// §1; this is the narrow surface the frame-eviction path needs from
// them: a per-process page lock (level 5 in the hierarchy) and the
// hardware accessed bit for one virtual page.
type Owner interface {
	Lock()
	Unlock()
	IsAccessed(vpage uintptr) bool
	ClearAccessed(vpage uintptr)
}

type frameEntry struct {
	pa    mem.Pa_t
	vpage uintptr
	owner Owner
	elem  *list.Element
}

// Stats_t tracks eviction activity.
type Stats_t struct {
	Sweeps  stats.Counter_t
	Victims stats.Counter_t
}

// Table_t is the frame table singleton. Its lock is the VM frame-wide
// lock, level 3 in §5's hierarchy.
type Table_t struct {
	mu     sync.Mutex
	ht     *hashtable.Hashtable_t
	order  *list.List
	cursor *list.Element
	Stats  Stats_t
}

// New allocates an empty frame table sized for an expected number of
// concurrently resident pages.
func New(expected int) *Table_t {
	size := expected
	if size < 16 {
		size = 16
	}
	return &Table_t{ht: hashtable.MkHash(size), order: list.New()}
}

// Add records phys as handed out to owner, mapped at vpage.
func (t *Table_t) Add(phys mem.Pa_t, vpage uintptr, owner Owner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fe := &frameEntry{pa: phys, vpage: vpage, owner: owner}
	fe.elem = t.order.PushBack(fe)
	t.ht.Set(uintptr(phys), fe)
}

// Get retrieves the entry for phys.
func (t *Table_t) Get(phys mem.Pa_t) (vpage uintptr, owner Owner, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, found := t.ht.Get(uintptr(phys))
	if !found {
		return 0, nil, false
	}
	fe := v.(*frameEntry)
	return fe.vpage, fe.owner, true
}

// Free removes phys from the table.
func (t *Table_t) Free(phys mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, found := t.ht.Get(uintptr(phys))
	if !found {
		return
	}
	fe := v.(*frameEntry)
	if t.cursor == fe.elem {
		t.cursor = t.advance(t.cursor)
		if t.cursor == fe.elem {
			t.cursor = nil
		}
	}
	t.order.Remove(fe.elem)
	t.ht.Del(uintptr(phys))
}

func (t *Table_t) advance(e *list.Element) *list.Element {
	n := e.Next()
	if n == nil {
		n = t.order.Front()
	}
	return n
}

// Evict runs one pass of second-chance eviction: starting from the
// persistent cursor, acquire each entry's owner lock; if the hardware
// accessed bit is clear, that entry is the victim; otherwise clear the
// bit and advance. The cursor wraps at the end of the list, per §4.5.
func (t *Table_t) Evict() (phys mem.Pa_t, vpage uintptr, owner Owner, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.order.Len() == 0 {
		return 0, 0, nil, false
	}
	if t.cursor == nil {
		t.cursor = t.order.Front()
	}
	t.Stats.Sweeps.Inc()

	// Two full passes suffice: the first clears every accessed bit it
	// finds set, the second is guaranteed to find one clear.
	limit := 2*t.order.Len() + 1
	for i := 0; i < limit; i++ {
		fe := t.cursor.Value.(*frameEntry)
		fe.owner.Lock()
		if !fe.owner.IsAccessed(fe.vpage) {
			phys, vpage, owner = fe.pa, fe.vpage, fe.owner
			fe.owner.Unlock()
			t.cursor = t.advance(t.cursor)
			t.Stats.Victims.Inc()
			return phys, vpage, owner, true
		}
		fe.owner.ClearAccessed(fe.vpage)
		fe.owner.Unlock()
		t.cursor = t.advance(t.cursor)
	}
	return 0, 0, nil, false
}

// Len reports how many frames are currently tracked.
func (t *Table_t) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}
