// Package disk is the block device contract (C1). The specification
// treats it as an external collaborator, but — mirroring the teacher's
// own ufs/driver.go, which backs its Disk_i with a plain *os.File —
// this package gives it a concrete, testable shape: synchronous
// sector-addressed read/write, fatal on hardware error.
package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ktk1012/OOOS/src/mem"
)

// Device is the contract both the filesystem disk and the swap disk
// implement. Errors are not part of the signature: per §7, hardware
// failure is fatal and the implementation panics rather than
// returning an error a caller could ignore.
type Device interface {
	// Read fills buf (exactly mem.SectorSize bytes) with the contents
	// of sector.
	Read(sector uint32, buf []byte)
	// Write stores buf (exactly mem.SectorSize bytes) to sector.
	Write(sector uint32, buf []byte)
	// Sync forces any buffering below this interface out to stable
	// storage. Memory-backed devices treat this as a no-op.
	Sync()
	// Nsectors reports the device's fixed size in sectors.
	Nsectors() uint32
}

func checkBuf(buf []byte) {
	if len(buf) != mem.SectorSize {
		panic(fmt.Sprintf("disk: buffer must be %d bytes, got %d", mem.SectorSize, len(buf)))
	}
}

// Mem is an in-memory Device, used for tests and for the swap device
// when a backing file is not wanted.
type Mem struct {
	mu      sync.Mutex
	sectors [][mem.SectorSize]byte
}

// NewMem allocates an in-memory device of n sectors, all zeroed.
func NewMem(n uint32) *Mem {
	return &Mem{sectors: make([][mem.SectorSize]byte, n)}
}

func (m *Mem) Read(sector uint32, buf []byte) {
	checkBuf(buf)
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(sector) >= len(m.sectors) {
		panic("disk: read past end of device")
	}
	copy(buf, m.sectors[sector][:])
}

func (m *Mem) Write(sector uint32, buf []byte) {
	checkBuf(buf)
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(sector) >= len(m.sectors) {
		panic("disk: write past end of device")
	}
	copy(m.sectors[sector][:], buf)
}

func (m *Mem) Sync() {}

func (m *Mem) Nsectors() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.sectors))
}

// File is a Device backed by a regular file, using positioned I/O
// (Pread/Pwrite) rather than the teacher's Seek-then-Read/Write, which
// is racy the moment two goroutines share one *os.File. Fdatasync
// backs the write-back-on-shutdown barrier §4.1 and §7 require.
type File struct {
	mu       sync.Mutex
	fd       int
	nsectors uint32
}

// OpenFile opens (creating if needed) path as a Device of nsectors
// sectors, extending the file to the required size.
func OpenFile(path string, nsectors uint32) (*File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(nsectors) * mem.SectorSize
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &File{fd: fd, nsectors: nsectors}, nil
}

func (f *File) Read(sector uint32, buf []byte) {
	checkBuf(buf)
	if sector >= f.nsectors {
		panic("disk: read past end of device")
	}
	off := int64(sector) * mem.SectorSize
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := unix.Pread(f.fd, buf, off)
	if err != nil || n != mem.SectorSize {
		panic(fmt.Sprintf("disk: read sector %d failed: %v", sector, err))
	}
}

func (f *File) Write(sector uint32, buf []byte) {
	checkBuf(buf)
	if sector >= f.nsectors {
		panic("disk: write past end of device")
	}
	off := int64(sector) * mem.SectorSize
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := unix.Pwrite(f.fd, buf, off)
	if err != nil || n != mem.SectorSize {
		panic(fmt.Sprintf("disk: write sector %d failed: %v", sector, err))
	}
}

func (f *File) Sync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := unix.Fdatasync(f.fd); err != nil {
		panic(fmt.Sprintf("disk: fdatasync failed: %v", err))
	}
}

func (f *File) Nsectors() uint32 {
	return f.nsectors
}

// Close releases the underlying file descriptor.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return unix.Close(f.fd)
}
