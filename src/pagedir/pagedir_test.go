package pagedir

import "testing"

func TestMappingLifecycle(t *testing.T) {
	d := New()
	if _, ok := d.Mapping(0x1000); ok {
		t.Fatal("unmapped page should report not found")
	}
	d.SetMapping(0x1000, 7, true)
	pa, ok := d.Mapping(0x1000)
	if !ok || pa != 7 {
		t.Fatalf("Mapping after SetMapping = (%v, %v), want (7, true)", pa, ok)
	}
	d.ClearMapping(0x1000)
	if _, ok := d.Mapping(0x1000); ok {
		t.Fatal("Mapping should report not found after ClearMapping")
	}
	// Clearing an absent mapping must be a safe no-op.
	d.ClearMapping(0x1000)
}

func TestAccessedAndDirtyBits(t *testing.T) {
	d := New()
	d.SetMapping(0x2000, 1, true)
	if d.IsAccessed(0x2000) || d.IsDirty(0x2000) {
		t.Fatal("freshly mapped page should start with clear accessed/dirty bits")
	}
	d.Touch(0x2000, false)
	if !d.IsAccessed(0x2000) {
		t.Fatal("Touch should set the accessed bit")
	}
	if d.IsDirty(0x2000) {
		t.Fatal("a read-only touch must not set the dirty bit")
	}
	d.SetAccessed(0x2000, false)
	if d.IsAccessed(0x2000) {
		t.Fatal("SetAccessed(false) should clear the bit")
	}
	d.Touch(0x2000, true)
	if !d.IsDirty(0x2000) {
		t.Fatal("a write touch should set the dirty bit")
	}
}

func TestBitsOnUnmappedPageAreFalse(t *testing.T) {
	d := New()
	if d.IsAccessed(0x3000) || d.IsDirty(0x3000) {
		t.Fatal("bits on an unmapped page must read false")
	}
	d.SetAccessed(0x3000, true) // no-op, page not mapped
	if d.IsAccessed(0x3000) {
		t.Fatal("SetAccessed on an unmapped page must not materialize an entry")
	}
}
