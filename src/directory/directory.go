// Package directory is the directory layer (C5): a directory is an
// inode whose payload is a dense array of fixed-size entries. Only
// per-component operations live here — lookup, add, remove, list —
// grounded on the original source's filesys/directory.c with its path
// tokenization (strtok_r over '/', '.', '..') deliberately left out,
// since hierarchical path parsing is excluded from this module's scope.
package directory

import (
	"github.com/ktk1012/OOOS/src/defs"
	"github.com/ktk1012/OOOS/src/inode"
	"github.com/ktk1012/OOOS/src/util"
)

const (
	// NameMax is the longest directory entry name, per §6.
	NameMax = 14
	// EntrySize is inode_sector:u32 + name:char[NameMax+1] + in_use:bool.
	EntrySize = 4 + (NameMax + 1) + 1
)

// Entry_t is one directory entry.
type Entry_t struct {
	Sector uint32
	Name   string
	InUse  bool
}

func encodeEntry(e Entry_t, buf []byte) {
	util.Writen(buf, 4, 0, int(e.Sector))
	var name [NameMax + 1]byte
	copy(name[:], e.Name)
	copy(buf[4:4+NameMax+1], name[:])
	if e.InUse {
		buf[4+NameMax+1] = 1
	} else {
		buf[4+NameMax+1] = 0
	}
}

func decodeEntry(buf []byte) Entry_t {
	sector := uint32(util.Readn(buf, 4, 0))
	name := buf[4 : 4+NameMax+1]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	return Entry_t{
		Sector: sector,
		Name:   string(name[:end]),
		InUse:  buf[4+NameMax+1] != 0,
	}
}

// Dirs_t implements directory operations over any inode opened through
// the shared inode table.
type Dirs_t struct {
	inodes *inode.Table_t
}

// New wires the directory layer to the shared open-inode table.
func New(inodes *inode.Table_t) *Dirs_t {
	return &Dirs_t{inodes: inodes}
}

func (d *Dirs_t) forEach(dir *inode.Inode_t, f func(i int, e Entry_t) bool) defs.Err_t {
	length := d.inodes.Length(dir)
	n := length / EntrySize
	var buf [EntrySize]byte
	for i := 0; i < n; i++ {
		if _, err := d.inodes.ReadAt(dir, buf[:], EntrySize, i*EntrySize); err != 0 {
			return err
		}
		if !f(i, decodeEntry(buf[:])) {
			break
		}
	}
	return 0
}

// Lookup performs a linear scan for name, per §4.3.
func (d *Dirs_t) Lookup(dir *inode.Inode_t, name string) (uint32, bool) {
	if name == "" || len(name) > NameMax {
		return 0, false
	}
	var found uint32
	ok := false
	d.forEach(dir, func(_ int, e Entry_t) bool {
		if e.InUse && e.Name == name {
			found, ok = e.Sector, true
			return false
		}
		return true
	})
	return found, ok
}

// Add scans for a free slot (or appends) and writes one entry.
func (d *Dirs_t) Add(dir *inode.Inode_t, name string, sector uint32) defs.Err_t {
	if name == "" || len(name) > NameMax {
		return defs.ENAMETOOLONG
	}
	if _, ok := d.Lookup(dir, name); ok {
		return defs.EINVAL
	}

	length := d.inodes.Length(dir)
	n := length / EntrySize
	slot := n
	var buf [EntrySize]byte
	d.forEach(dir, func(i int, e Entry_t) bool {
		if !e.InUse {
			slot = i
			return false
		}
		return true
	})

	encodeEntry(Entry_t{Sector: sector, Name: name, InUse: true}, buf[:])
	_, err := d.inodes.WriteAt(dir, buf[:], EntrySize, slot*EntrySize)
	return err
}

// IsEmpty reports whether dir contains only "." and "..".
func (d *Dirs_t) IsEmpty(dir *inode.Inode_t) bool {
	empty := true
	d.forEach(dir, func(_ int, e Entry_t) bool {
		if e.InUse && e.Name != "." && e.Name != ".." {
			empty = false
			return false
		}
		return true
	})
	return empty
}

// Remove clears the in_use flag for name. A subdirectory entry is
// refused unless the target directory is empty, per §4.3.
func (d *Dirs_t) Remove(dir *inode.Inode_t, name string) defs.Err_t {
	if name == "." || name == ".." {
		return defs.EINVAL
	}
	var slot int = -1
	var found Entry_t
	d.forEach(dir, func(i int, e Entry_t) bool {
		if e.InUse && e.Name == name {
			slot, found = i, e
			return false
		}
		return true
	})
	if slot == -1 {
		return defs.ENOENT
	}

	target, err := d.inodes.Open(found.Sector)
	if err != 0 {
		return err
	}
	if target.IsDir() && !d.IsEmpty(target) {
		d.inodes.Close(target)
		return defs.ENOTEMPTY
	}
	d.inodes.Close(target)

	found.InUse = false
	var buf [EntrySize]byte
	encodeEntry(found, buf[:])
	_, werr := d.inodes.WriteAt(dir, buf[:], EntrySize, slot*EntrySize)
	return werr
}

// List returns every in-use entry.
func (d *Dirs_t) List(dir *inode.Inode_t) []Entry_t {
	var out []Entry_t
	d.forEach(dir, func(_ int, e Entry_t) bool {
		if e.InUse {
			out = append(out, e)
		}
		return true
	})
	return out
}

// InitRoot populates a freshly created root directory's "." and ".."
// entries, both pointing at itself.
func (d *Dirs_t) InitRoot(dir *inode.Inode_t) defs.Err_t {
	if err := d.Add(dir, ".", dir.Sector()); err != 0 {
		return err
	}
	return d.Add(dir, "..", dir.Sector())
}

// InitChild populates a freshly created non-root directory's "." and
// ".." entries.
func (d *Dirs_t) InitChild(dir *inode.Inode_t, parentSector uint32) defs.Err_t {
	if err := d.Add(dir, ".", dir.Sector()); err != 0 {
		return err
	}
	return d.Add(dir, "..", parentSector)
}
