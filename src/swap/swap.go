// Package swap is the swap area (C6): a bitmap-managed region of a
// second block device, 8 sectors (one page) per slot. Grounded on the
// original source's vm/swap.c, with the bitmap scan delegated to
// package bitmap instead of a hand-rolled bitmap_scan_and_flip. Table_t
// has no lock of its own: the bitmap's lock serializes slot allocation.
package swap

import (
	"github.com/ktk1012/OOOS/src/bitmap"
	"github.com/ktk1012/OOOS/src/disk"
	"github.com/ktk1012/OOOS/src/mem"
	"github.com/ktk1012/OOOS/src/stats"
)

// Stats_t tracks swap occupancy.
type Stats_t struct {
	SlotsInUse stats.Counter_t
}

// Table_t is the swap area singleton.
type Table_t struct {
	device disk.Device
	bmp    *bitmap.Bitmap_t
	nslots int
}

// Init consults the swap device and computes the slot count, per
// §4.4: sectors / 8.
func Init(device disk.Device) *Table_t {
	n := int(device.Nsectors()) / mem.SectorsPerPage
	return &Table_t{device: device, bmp: bitmap.New(n), nslots: n}
}

// Write scans for the first free slot, marks it used, and writes the
// page's 8 sectors sequentially, returning the slot index. Exhaustion
// is fatal, per §4.4 and §7's "Hardware failure: fatal panic" sibling
// clause for resource exhaustion on this path.
func (t *Table_t) Write(page *mem.Bytepg_t) int {
	idx, ok := t.bmp.Allocate(1, 0)
	if !ok {
		panic("swap: swap disk is full")
	}
	base := uint32(idx) * mem.SectorsPerPage
	for i := 0; i < mem.SectorsPerPage; i++ {
		t.device.Write(base+uint32(i), page[i*mem.SectorSize:(i+1)*mem.SectorSize])
	}
	return idx
}

// Read reads the slot's 8 sectors into page and frees the slot.
func (t *Table_t) Read(idx int, page *mem.Bytepg_t) {
	base := uint32(idx) * mem.SectorsPerPage
	for i := 0; i < mem.SectorsPerPage; i++ {
		t.device.Read(base+uint32(i), page[i*mem.SectorSize:(i+1)*mem.SectorSize])
	}
	t.bmp.Release(idx, 1)
}

// Delete frees a slot without reading, used at process teardown.
func (t *Table_t) Delete(idx int) {
	t.bmp.Release(idx, 1)
}

// InUse reports how many slots are currently allocated.
func (t *Table_t) InUse() int {
	return t.bmp.Count()
}

// Nslots reports the total slot count.
func (t *Table_t) Nslots() int {
	return t.nslots
}
