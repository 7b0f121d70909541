// Package ufs is the filesystem facade (C13): boot/shutdown sequencing
// that wires the block device, buffer cache, free-sector map, inode
// table, directory layer, swap area, frame table and VM coordinator
// into one object, mirroring the teacher's Ufs_t. Grounded on the
// teacher's ufs/ufs.go and ufs/driver.go, rewritten around this
// module's own persistence and VM stack instead of the teacher's
// log-structured fs.Fs_t and AHCI driver.
package ufs

import (
	"github.com/ktk1012/OOOS/src/bitmap"
	"github.com/ktk1012/OOOS/src/cache"
	"github.com/ktk1012/OOOS/src/defs"
	"github.com/ktk1012/OOOS/src/diag"
	"github.com/ktk1012/OOOS/src/directory"
	"github.com/ktk1012/OOOS/src/disk"
	"github.com/ktk1012/OOOS/src/frame"
	"github.com/ktk1012/OOOS/src/inode"
	"github.com/ktk1012/OOOS/src/mem"
	"github.com/ktk1012/OOOS/src/pagedir"
	"github.com/ktk1012/OOOS/src/palloc"
	"github.com/ktk1012/OOOS/src/stats"
	"github.com/ktk1012/OOOS/src/swap"
	"github.com/ktk1012/OOOS/src/vm"
)

// Config describes how to boot a System.
type Config struct {
	DataPath    string
	DataSectors uint32
	SwapPath    string
	SwapSectors uint32
	FramePages  int
	DiagPath    string
}

// System is the assembled filesystem + VM stack for one running
// instance, the concrete home for C1-C11 that the specification
// describes as independently testable components.
type System struct {
	cfg Config

	data *disk.File
	swap *disk.File

	cache     *cache.Cache_t
	freeMap   *bitmap.Bitmap_t
	inodes    *inode.Table_t
	dirs      *directory.Dirs_t
	swapTable *swap.Table_t
	frames    *frame.Table_t
	alloc     *palloc.Allocator
	coord     *vm.Coordinator

	rootSector uint32
}

// Boot opens the data and swap disks, starts the buffer cache's
// background workers, and formats a fresh root directory — the
// counterpart of the teacher's BootFS/BootMemFS, collapsed into one
// function since this module has no on-disk format to detect and
// resume, only to create.
func Boot(cfg Config) (*System, error) {
	data, err := disk.OpenFile(cfg.DataPath, cfg.DataSectors)
	if err != nil {
		return nil, err
	}
	swapDisk, err := disk.OpenFile(cfg.SwapPath, cfg.SwapSectors)
	if err != nil {
		data.Close()
		return nil, err
	}

	s := &System{
		cfg:       cfg,
		data:      data,
		swap:      swapDisk,
		cache:     cache.New(data, cache.Config{}),
		freeMap:   bitmap.New(int(cfg.DataSectors)),
		swapTable: swap.Init(swapDisk),
		frames:    frame.New(cfg.FramePages),
		alloc:     palloc.New(cfg.FramePages),
	}
	s.cache.Start()
	s.inodes = inode.NewTable(s.cache, s.freeMap)
	s.dirs = directory.New(s.inodes)
	s.coord = vm.NewCoordinator(s.frames, s.swapTable, s.alloc)

	sector, ok := s.freeMap.Allocate(1, 0)
	if !ok {
		return nil, defs.ENOSPC
	}
	s.rootSector = uint32(sector)
	if err := s.inodes.Create(s.rootSector, 0, true, s.rootSector); err != 0 {
		return nil, err
	}
	root, err2 := s.inodes.Open(s.rootSector)
	if err2 != 0 {
		return nil, err2
	}
	defer s.inodes.Close(root)
	if err := s.dirs.InitRoot(root); err != 0 {
		return nil, err
	}
	return s, nil
}

// Shutdown flushes the cache to disk, writes a diagnostics profile if
// configured, and closes both disks.
func (s *System) Shutdown() error {
	if err := s.cache.Shutdown(); err != nil {
		return err
	}
	if s.cfg.DiagPath != "" {
		snap := diag.Snapshot{
			Cache: s.cache.Stats,
			Frame: s.frames.Stats,
			Swap:  swap.Stats_t{SlotsInUse: stats.Counter_t(s.swapTable.InUse())},
		}
		if err := diag.WriteFile(s.cfg.DiagPath, snap); err != nil {
			return err
		}
	}
	if err := s.swap.Close(); err != nil {
		return err
	}
	return s.data.Close()
}

// RootSector exposes the root directory's inode sector, for tests that
// want to walk the tree directly through the inode/directory layers.
func (s *System) RootSector() uint32 { return s.rootSector }

func (s *System) openRoot() (*inode.Inode_t, defs.Err_t) {
	return s.inodes.Open(s.rootSector)
}

// MkFile creates a file named name in the root directory and writes
// data into it, mirroring the teacher's MkFile for the single-directory
// scope this module covers (hierarchical path lookup is excluded, per
// the directory package's doc comment).
func (s *System) MkFile(name string, data []byte) defs.Err_t {
	root, err := s.openRoot()
	if err != 0 {
		return err
	}
	defer s.inodes.Close(root)

	sector, ok := s.freeMap.Allocate(1, 0)
	if !ok {
		return defs.ENOSPC
	}
	if err := s.inodes.Create(uint32(sector), len(data), false, s.rootSector); err != 0 {
		s.freeMap.Release(sector, 1)
		return err
	}
	if err := s.dirs.Add(root, name, uint32(sector)); err != 0 {
		return err
	}
	if len(data) == 0 {
		return 0
	}
	ino, err := s.inodes.Open(uint32(sector))
	if err != 0 {
		return err
	}
	defer s.inodes.Close(ino)
	_, werr := s.inodes.WriteAt(ino, data, len(data), 0)
	return werr
}

// MkDir creates a subdirectory named name under the root.
func (s *System) MkDir(name string) defs.Err_t {
	root, err := s.openRoot()
	if err != 0 {
		return err
	}
	defer s.inodes.Close(root)

	sector, ok := s.freeMap.Allocate(1, 0)
	if !ok {
		return defs.ENOSPC
	}
	if err := s.inodes.Create(uint32(sector), 0, true, s.rootSector); err != 0 {
		s.freeMap.Release(sector, 1)
		return err
	}
	if err := s.dirs.Add(root, name, uint32(sector)); err != 0 {
		return err
	}
	child, err := s.inodes.Open(uint32(sector))
	if err != 0 {
		return err
	}
	defer s.inodes.Close(child)
	return s.dirs.InitChild(child, s.rootSector)
}

// Read returns the full contents of the file named name in the root
// directory.
func (s *System) Read(name string) ([]byte, defs.Err_t) {
	root, err := s.openRoot()
	if err != 0 {
		return nil, err
	}
	defer s.inodes.Close(root)

	sector, ok := s.dirs.Lookup(root, name)
	if !ok {
		return nil, defs.ENOENT
	}
	ino, err := s.inodes.Open(sector)
	if err != 0 {
		return nil, err
	}
	defer s.inodes.Close(ino)

	length := s.inodes.Length(ino)
	buf := make([]byte, length)
	n, rerr := s.inodes.ReadAt(ino, buf, length, 0)
	return buf[:n], rerr
}

// Unlink removes the file or empty directory named name.
func (s *System) Unlink(name string) defs.Err_t {
	root, err := s.openRoot()
	if err != 0 {
		return err
	}
	defer s.inodes.Close(root)

	sector, ok := s.dirs.Lookup(root, name)
	if !ok {
		return defs.ENOENT
	}
	if err := s.dirs.Remove(root, name); err != 0 {
		return err
	}
	ino, err := s.inodes.Open(sector)
	if err != 0 {
		return err
	}
	s.inodes.Remove(ino)
	return s.inodes.Close(ino)
}

// List returns the names of every entry in the root directory, minus
// "." and "..".
func (s *System) List() ([]string, defs.Err_t) {
	root, err := s.openRoot()
	if err != 0 {
		return nil, err
	}
	defer s.inodes.Close(root)

	var names []string
	for _, e := range s.dirs.List(root) {
		if e.Name != "." && e.Name != ".." {
			names = append(names, e.Name)
		}
	}
	return names, 0
}

// inodeFile adapts one open inode to vmpage.File, binding the table +
// inode pair the VM coordinator's FILE_BACKED/MMAP demand paths need
// but that package vmpage deliberately stays ignorant of.
type inodeFile struct {
	t   *inode.Table_t
	ino *inode.Inode_t
}

func (f *inodeFile) ReadAt(dst []byte, size, offset int) (int, defs.Err_t) {
	return f.t.ReadAt(f.ino, dst, size, offset)
}

func (f *inodeFile) WriteAt(src []byte, size, offset int) (int, defs.Err_t) {
	return f.t.WriteAt(f.ino, src, size, offset)
}

// NewAddressSpace creates a fresh process address space backed by this
// system's VM coordinator.
func (s *System) NewAddressSpace() *vm.AddressSpace {
	return vm.NewAddressSpace(pagedir.New())
}

// Fault forwards a page fault to the VM coordinator.
func (s *System) Fault(as *vm.AddressSpace, faultAddr, userSP uintptr) bool {
	return s.coord.Load(as, faultAddr, userSP)
}

// Mmap maps the named root-directory file into as starting at start.
// The opened inode is held by the mapping's File adapter; Munmap does
// not close it, so that open reference is never released.
func (s *System) Mmap(as *vm.AddressSpace, name string, start uintptr) (*vm.MmapDesc, defs.Err_t) {
	root, err := s.openRoot()
	if err != 0 {
		return nil, err
	}
	defer s.inodes.Close(root)

	sector, ok := s.dirs.Lookup(root, name)
	if !ok {
		return nil, defs.ENOENT
	}
	ino, err := s.inodes.Open(sector)
	if err != 0 {
		return nil, err
	}
	size := s.inodes.Length(ino)

	desc, ok := s.coord.Mmap(as, &inodeFile{t: s.inodes, ino: ino}, start, size)
	if !ok {
		s.inodes.Close(ino)
		return nil, defs.EINVAL
	}
	return desc, 0
}

// Munmap tears down a mapping created by Mmap.
func (s *System) Munmap(desc *vm.MmapDesc) {
	s.coord.Munmap(desc)
}

// DestroyAddressSpace tears as down at process exit.
func (s *System) DestroyAddressSpace(as *vm.AddressSpace) {
	s.coord.DestroyAll(as)
}

// GrowStack materializes a zero-filled anonymous page at vpage,
// exercising the same stack-growth path as a real fault — used to
// set up a process's initial stack page before it starts running.
func (s *System) GrowStack(as *vm.AddressSpace, vpage uintptr) bool {
	return s.Fault(as, vpage, vpage)
}

// PageSize re-exports the VM page size for callers computing vpage
// alignment without importing package mem directly.
const PageSize = mem.PGSIZE
