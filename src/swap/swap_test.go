package swap

import (
	"testing"

	"github.com/ktk1012/OOOS/src/disk"
	"github.com/ktk1012/OOOS/src/mem"
)

func TestWriteReadRoundTrip(t *testing.T) {
	d := disk.NewMem(mem.SectorsPerPage * 4)
	tab := Init(d)
	if tab.Nslots() != 4 {
		t.Fatalf("Nslots() = %d, want 4", tab.Nslots())
	}

	var page mem.Bytepg_t
	for i := range page {
		page[i] = byte(i)
	}
	idx := tab.Write(&page)
	if tab.InUse() != 1 {
		t.Fatalf("InUse() after Write = %d, want 1", tab.InUse())
	}

	var out mem.Bytepg_t
	tab.Read(idx, &out)
	if out != page {
		t.Fatal("page did not survive a Write/Read round trip")
	}
	if tab.InUse() != 0 {
		t.Fatalf("InUse() after Read = %d, want 0 (Read frees the slot)", tab.InUse())
	}
}

func TestDeleteFreesSlotWithoutReading(t *testing.T) {
	d := disk.NewMem(mem.SectorsPerPage * 2)
	tab := Init(d)
	var page mem.Bytepg_t
	idx := tab.Write(&page)
	tab.Delete(idx)
	if tab.InUse() != 0 {
		t.Fatalf("InUse() after Delete = %d, want 0", tab.InUse())
	}
}

func TestWriteExhaustionPanics(t *testing.T) {
	d := disk.NewMem(mem.SectorsPerPage)
	tab := Init(d)
	var page mem.Bytepg_t
	tab.Write(&page)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when the swap disk is full")
		}
	}()
	tab.Write(&page)
}

func TestSlotsAreIndependent(t *testing.T) {
	d := disk.NewMem(mem.SectorsPerPage * 3)
	tab := Init(d)

	var p0, p1 mem.Bytepg_t
	p0[0], p1[0] = 1, 2
	i0 := tab.Write(&p0)
	i1 := tab.Write(&p1)
	if i0 == i1 {
		t.Fatal("two live writes should land on distinct slots")
	}

	var o0, o1 mem.Bytepg_t
	tab.Read(i0, &o0)
	tab.Read(i1, &o1)
	if o0[0] != 1 || o1[0] != 2 {
		t.Fatal("slot contents were mixed up between independent writes")
	}
}
