package util

import "testing"

func TestMin(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatal("Min(3,5) != 3")
	}
	if Min(uintptr(7), uintptr(2)) != 2 {
		t.Fatal("Min over uintptr failed")
	}
}

func TestRoundupRounddown(t *testing.T) {
	if Rounddown(13, 4) != 12 {
		t.Fatal("Rounddown(13,4) != 12")
	}
	if Roundup(13, 4) != 16 {
		t.Fatal("Roundup(13,4) != 16")
	}
	if Roundup(16, 4) != 16 {
		t.Fatal("Roundup(16,4) != 16, exact multiple should stay put")
	}
}

func TestReadnWritenRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	Writen(buf, 4, 0, 0x11223344)
	if got := Readn(buf, 4, 0); got != 0x11223344 {
		t.Fatalf("Readn after Writen(4) = %#x, want %#x", got, 0x11223344)
	}
	Writen(buf, 8, 4, 0x0102030405060708)
	if got := Readn(buf, 8, 4); got != 0x0102030405060708 {
		t.Fatalf("Readn after Writen(8) = %#x", got)
	}
	Writen(buf, 2, 12, 0xabcd)
	if got := Readn(buf, 2, 12); got != 0xabcd {
		t.Fatalf("Readn after Writen(2) = %#x", got)
	}
	Writen(buf, 1, 14, 0xef)
	if got := Readn(buf, 1, 14); got != 0xef {
		t.Fatalf("Readn after Writen(1) = %#x", got)
	}
}

func TestReadnLittleEndian(t *testing.T) {
	buf := []byte{0x01, 0x00, 0x00, 0x00}
	if got := Readn(buf, 4, 0); got != 1 {
		t.Fatalf("Readn should interpret bytes as little-endian, got %d", got)
	}
}

func TestReadnOutOfBoundsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-bounds Readn")
		}
	}()
	Readn(make([]byte, 2), 4, 0)
}
