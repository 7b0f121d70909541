package hashtable

import "testing"

func TestSetGetDel(t *testing.T) {
	ht := MkHash(4)
	if _, ok := ht.Get(uintptr(1)); ok {
		t.Fatal("Get on empty table should miss")
	}
	if _, ok := ht.Set(uintptr(1), "a"); !ok {
		t.Fatal("first Set should insert")
	}
	if v, ok := ht.Get(uintptr(1)); !ok || v != "a" {
		t.Fatalf("Get = (%v,%v), want (a,true)", v, ok)
	}
	if _, ok := ht.Set(uintptr(1), "b"); ok {
		t.Fatal("Set of an existing key should report false")
	}
	ht.Del(uintptr(1))
	if _, ok := ht.Get(uintptr(1)); ok {
		t.Fatal("Get after Del should miss")
	}
}

func TestUintptrKeysCollideAcrossBuckets(t *testing.T) {
	ht := MkHash(8)
	for i := uintptr(0); i < 100; i++ {
		ht.Set(i, int(i))
	}
	if ht.Size() != 100 {
		t.Fatalf("Size() = %d, want 100", ht.Size())
	}
	for i := uintptr(0); i < 100; i++ {
		v, ok := ht.Get(i)
		if !ok || v.(int) != int(i) {
			t.Fatalf("Get(%d) = (%v,%v)", i, v, ok)
		}
	}
}

func TestIntAndStringKeysStillWork(t *testing.T) {
	ht := MkHash(4)
	ht.Set(1, "int-key")
	ht.Set("x", "string-key")
	if v, ok := ht.Get(1); !ok || v != "int-key" {
		t.Fatal("int key regression")
	}
	if v, ok := ht.Get("x"); !ok || v != "string-key" {
		t.Fatal("string key regression")
	}
}

func TestDelOfMissingKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic deleting a missing key")
		}
	}()
	MkHash(4).Del(uintptr(42))
}
