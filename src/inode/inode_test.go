package inode

import (
	"testing"
	"time"

	"github.com/ktk1012/OOOS/src/bitmap"
	"github.com/ktk1012/OOOS/src/cache"
	"github.com/ktk1012/OOOS/src/disk"
	"github.com/ktk1012/OOOS/src/mem"
)

func newTestTable(t *testing.T, nsectors uint32) *Table_t {
	t.Helper()
	d := disk.NewMem(nsectors)
	c := cache.New(d, cache.Config{FlushInterval: time.Hour})
	c.Start()
	t.Cleanup(func() { c.Shutdown() })
	free := bitmap.New(int(nsectors))
	free.Allocate(1, 0) // sector 0 reserved for the root inode elsewhere
	return NewTable(c, free)
}

func mkInode(t *testing.T, tab *Table_t, free *bitmap.Bitmap_t) uint32 {
	t.Helper()
	idx, ok := free.Allocate(1, 0)
	if !ok {
		t.Fatal("out of sectors for a fresh inode")
	}
	if err := tab.Create(uint32(idx), 0, false, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}
	return uint32(idx)
}

func TestCreateOpenClose(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)

	ino, err := tab.Open(sector)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	if tab.Length(ino) != 0 {
		t.Fatalf("fresh inode length = %d, want 0", tab.Length(ino))
	}
	if ino.IsDir() {
		t.Fatal("Create(isDir=false) produced a directory inode")
	}
	if err := tab.Close(ino); err != 0 {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	src := []byte("hello indexed inode")
	n, err := tab.WriteAt(ino, src, len(src), 10)
	if err != 0 || n != len(src) {
		t.Fatalf("WriteAt = (%d,%v), want (%d,0)", n, err, len(src))
	}
	if got := tab.Length(ino); got != 10+len(src) {
		t.Fatalf("Length = %d, want %d", got, 10+len(src))
	}

	out := make([]byte, len(src))
	n, err = tab.ReadAt(ino, out, len(out), 10)
	if err != 0 || n != len(src) || string(out) != string(src) {
		t.Fatalf("ReadAt = (%q,%d,%v), want (%q,%d,0)", out, n, err, src, len(src))
	}
}

func TestReadPastEofReturnsZero(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	out := make([]byte, 8)
	n, err := tab.ReadAt(ino, out, len(out), 1000)
	if err != 0 || n != 0 {
		t.Fatalf("ReadAt past EOF = (%d,%v), want (0,0)", n, err)
	}
}

func TestGrowthAcrossDirectIndirectBoundary(t *testing.T) {
	tab := newTestTable(t, 300)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	// Block index DirectCount is the first block served by the single
	// indirect index block.
	offset := DirectCount * mem.SectorSize
	payload := []byte{1, 2, 3, 4}
	if n, err := tab.WriteAt(ino, payload, len(payload), offset); err != 0 || n != len(payload) {
		t.Fatalf("WriteAt at indirect boundary = (%d,%v)", n, err)
	}
	out := make([]byte, len(payload))
	if n, err := tab.ReadAt(ino, out, len(out), offset); err != 0 || n != len(payload) {
		t.Fatalf("ReadAt at indirect boundary = (%d,%v)", n, err)
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], payload[i])
		}
	}
	if ino.disk.indirectIdx == 0 {
		t.Fatal("writing past DirectCount should have allocated the indirect index block")
	}
}

func TestGrowthAcrossIndirectDoublyIndirectBoundary(t *testing.T) {
	tab := newTestTable(t, 600)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	offset := (DirectCount + IndirectCount) * mem.SectorSize
	payload := []byte{9, 8, 7, 6}
	if n, err := tab.WriteAt(ino, payload, len(payload), offset); err != 0 || n != len(payload) {
		t.Fatalf("WriteAt at doubly-indirect boundary = (%d,%v)", n, err)
	}
	out := make([]byte, len(payload))
	if n, err := tab.ReadAt(ino, out, len(out), offset); err != 0 || n != len(payload) {
		t.Fatalf("ReadAt at doubly-indirect boundary = (%d,%v)", n, err)
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], payload[i])
		}
	}
	if ino.disk.doublyIndirectIdx == 0 {
		t.Fatal("writing past DirectCount+IndirectCount should have allocated the doubly indirect block")
	}
}

func TestWriteReportsShortWriteOnExhaustion(t *testing.T) {
	// Just enough sectors for the inode itself plus a couple of data
	// blocks; a write demanding more than that must come back short
	// rather than erroring with nothing written.
	tab := newTestTable(t, 4)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	big := make([]byte, 10*mem.SectorSize)
	n, err := tab.WriteAt(ino, big, len(big), 0)
	if n == 0 {
		t.Fatal("expected a partial write, got zero bytes written")
	}
	if n == len(big) {
		t.Fatal("expected a short write on a nearly-full device")
	}
	_ = err
}

func TestOpenSharesInMemoryInode(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)

	a, err := tab.Open(sector)
	if err != 0 {
		t.Fatalf("Open: %v", err)
	}
	b, err := tab.Open(sector)
	if err != 0 {
		t.Fatalf("second Open: %v", err)
	}
	if a != b {
		t.Fatal("two Opens of the same sector should share one Inode_t")
	}
	if a.openCnt != 2 {
		t.Fatalf("openCnt = %d, want 2", a.openCnt)
	}
	tab.Close(a)
	if _, stillOpen := tab.open[sector]; !stillOpen {
		t.Fatal("inode should remain open while a second reference is outstanding")
	}
	tab.Close(b)
	if _, stillOpen := tab.open[sector]; stillOpen {
		t.Fatal("inode should leave the open table once its last reference closes")
	}
}

func TestRemoveDefersDeallocationUntilClose(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)

	tab.Remove(ino)
	if !tab.Removed(ino) {
		t.Fatal("Removed should report true after Remove")
	}
	if !tab.free.Test(int(sector)) {
		t.Fatal("Remove must not free the sector while the inode is still open")
	}
	tab.Close(ino)
	if tab.free.Test(int(sector)) {
		t.Fatal("sector should be released once the removed inode's last reference closes")
	}
}

func TestDenyWriteToggle(t *testing.T) {
	tab := newTestTable(t, 16)
	sector := mkInode(t, tab, tab.free)
	ino, _ := tab.Open(sector)
	defer tab.Close(ino)

	if !tab.Writable(ino) {
		t.Fatal("a fresh inode should be writable")
	}
	tab.DenyWrite(ino)
	if tab.Writable(ino) {
		t.Fatal("Writable should be false while a deny-write hold is outstanding")
	}
	tab.AllowWrite(ino)
	if !tab.Writable(ino) {
		t.Fatal("Writable should return true once the deny-write hold is released")
	}
}
