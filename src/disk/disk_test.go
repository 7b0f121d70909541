package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ktk1012/OOOS/src/mem"
)

func TestMemReadWriteRoundTrip(t *testing.T) {
	d := NewMem(4)
	buf := make([]byte, mem.SectorSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	d.Write(2, buf)

	out := make([]byte, mem.SectorSize)
	d.Read(2, out)
	for i := range out {
		if out[i] != buf[i] {
			t.Fatalf("byte %d mismatch after round trip: got %d want %d", i, out[i], buf[i])
		}
	}
	if d.Nsectors() != 4 {
		t.Fatalf("Nsectors() = %d, want 4", d.Nsectors())
	}
}

func TestMemReadPastEndPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading past end of device")
		}
	}()
	NewMem(1).Read(5, make([]byte, mem.SectorSize))
}

func TestCheckBufPanicsOnWrongSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on undersized buffer")
		}
	}()
	NewMem(1).Read(0, make([]byte, 10))
}

func TestFileReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 4)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	buf := make([]byte, mem.SectorSize)
	for i := range buf {
		buf[i] = byte(i * 3)
	}
	f.Write(1, buf)
	f.Sync()

	out := make([]byte, mem.SectorSize)
	f.Read(1, out)
	for i := range out {
		if out[i] != buf[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, out[i], buf[i])
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 4*mem.SectorSize {
		t.Fatalf("file size = %d, want %d", info.Size(), 4*mem.SectorSize)
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := OpenFile(path, 2)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	buf := make([]byte, mem.SectorSize)
	buf[0] = 0x42
	f.Write(0, buf)
	f.Sync()
	f.Close()

	f2, err := OpenFile(path, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	out := make([]byte, mem.SectorSize)
	f2.Read(0, out)
	if out[0] != 0x42 {
		t.Fatal("data did not survive close/reopen")
	}
}
