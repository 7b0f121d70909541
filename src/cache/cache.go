// Package cache is the buffer cache (C2): a bounded, 64-entry,
// in-memory cache of disk sectors with LRU eviction, write-back,
// read-ahead and periodic flush, reachable concurrently by many
// readers and writers. It is grounded on the teacher's
// fs.Bdev_block_t/Blk_t request-ack shape and on the original source's
// filesys/cache.c, generalized to the three-mode reader/writer/evict
// lock the specification's concurrency model requires.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ktk1012/OOOS/src/defs"
	"github.com/ktk1012/OOOS/src/disk"
	"github.com/ktk1012/OOOS/src/mem"
	"github.com/ktk1012/OOOS/src/stats"
)

// NumEntries is the fixed size of the cache, matching §3's "64 entries
// total".
const NumEntries = 64

// DefaultFlushInterval is the periodic flush tick. The source used both
// 10ms and 40ms across revisions; this module honors both by exposing
// the interval as configuration rather than guessing between them (see
// the open questions in SPEC_FULL.md §9).
const DefaultFlushInterval = 10 * time.Millisecond

// rwevict_t is the per-cache-entry lock: reader/writer extended with a
// third EVICT mode, built from three condition variables and four
// counters plus an is_evict flag per §5, rather than a borrowed
// rwmutex — this is the one place the specification calls for a shape
// the standard library and no example repo's rwmutex offers off the
// shelf.
type rwevict_t struct {
	mu      sync.Mutex
	rCond   *sync.Cond
	wCond   *sync.Cond
	eCond   *sync.Cond
	rWait   int
	rActive int
	wWait   int
	wActive int
	isEvict bool
}

func newRWEvict() *rwevict_t {
	l := &rwevict_t{}
	l.rCond = sync.NewCond(&l.mu)
	l.wCond = sync.NewCond(&l.mu)
	l.eCond = sync.NewCond(&l.mu)
	return l
}

func (l *rwevict_t) RLock() {
	l.mu.Lock()
	l.rWait++
	for l.wActive > 0 || l.isEvict {
		l.rCond.Wait()
	}
	l.rWait--
	l.rActive++
	l.mu.Unlock()
}

func (l *rwevict_t) RUnlock() {
	l.mu.Lock()
	l.rActive--
	if l.rActive == 0 {
		l.wCond.Signal()
		l.eCond.Broadcast()
	}
	l.mu.Unlock()
}

func (l *rwevict_t) Lock() {
	l.mu.Lock()
	l.wWait++
	for l.rActive > 0 || l.wActive > 0 || l.isEvict {
		l.wCond.Wait()
	}
	l.wWait--
	l.wActive++
	l.mu.Unlock()
}

func (l *rwevict_t) Unlock() {
	l.mu.Lock()
	l.wActive--
	l.rCond.Broadcast()
	l.wCond.Signal()
	l.eCond.Broadcast()
	l.mu.Unlock()
}

// TryLock acquires writer mode only if it can do so without blocking,
// used by the periodic flush sweep ("busy, skip this round").
func (l *rwevict_t) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rActive > 0 || l.wActive > 0 || l.isEvict {
		return false
	}
	l.wActive++
	return true
}

// EvictLock waits for all active readers/writers to drain, then holds
// eviction mode, blocking new readers/writers until EvictUnlock.
func (l *rwevict_t) EvictLock() {
	l.mu.Lock()
	for l.rActive > 0 || l.wActive > 0 {
		l.eCond.Wait()
	}
	l.isEvict = true
	l.mu.Unlock()
}

func (l *rwevict_t) EvictUnlock() {
	l.mu.Lock()
	l.isEvict = false
	l.rCond.Broadcast()
	l.wCond.Broadcast()
	l.mu.Unlock()
}

type entry_t struct {
	lock    *rwevict_t
	sector  uint32
	present bool
	valid   bool
	dirty   bool
	victim  bool
	time    int64
	buf     [mem.SectorSize]byte
}

// Stats_t tracks the cache's runtime counters, togglable via
// stats.Stats (zero cost when disabled).
type Stats_t struct {
	Hits        stats.Counter_t
	DeviceReads stats.Counter_t
	Evictions   stats.Counter_t
	ReadAheads  stats.Counter_t
}

// Config holds tunables. FlushInterval defaults to DefaultFlushInterval
// when zero.
type Config struct {
	FlushInterval time.Duration
}

// Cache_t is the buffer cache singleton for one block device.
type Cache_t struct {
	mu      sync.Mutex
	cond    *sync.Cond
	clock   int64
	entries [NumEntries]*entry_t
	device  disk.Device
	cfg     Config
	sf      singleflight.Group

	raMu     sync.Mutex
	raCond   *sync.Cond
	raQueue  []uint32
	raQueued map[uint32]bool

	cancel context.CancelFunc
	eg     *errgroup.Group

	Stats Stats_t
}

// New allocates the 64 entries. Call Start to begin the background
// flush and read-ahead workers.
func New(device disk.Device, cfg Config) *Cache_t {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	c := &Cache_t{
		device:   device,
		cfg:      cfg,
		raQueued: make(map[uint32]bool),
	}
	c.cond = sync.NewCond(&c.mu)
	c.raCond = sync.NewCond(&c.raMu)
	for i := range c.entries {
		c.entries[i] = &entry_t{lock: newRWEvict()}
	}
	return c
}

// Start launches the periodic flush worker and the read-ahead worker
// as a supervised pair, the Go-idiomatic replacement for the original
// C's thread_create/sema_down startup barrier.
func (c *Cache_t) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	eg, ctx := errgroup.WithContext(ctx)
	c.eg = eg
	eg.Go(func() error { return c.flushWorker(ctx) })
	eg.Go(func() error { return c.readAheadWorker(ctx) })
}

// Shutdown stops the background workers, flushes every dirty entry and
// syncs the underlying device.
func (c *Cache_t) Shutdown() error {
	var err error
	if c.cancel != nil {
		c.cancel()
		c.raMu.Lock()
		c.raCond.Broadcast()
		c.raMu.Unlock()
		err = c.eg.Wait()
	}
	c.flushSweep(true)
	c.device.Sync()
	return err
}

// getBlock implements §4.1's lookup-and-admission algorithm under the
// cache-wide lock: find-or-allocate-or-evict, entirely within one
// critical section so eviction's identity change is atomic with
// respect to lookups.
func (c *Cache_t) getBlock(sector uint32) *entry_t {
	c.mu.Lock()
	for {
		for _, e := range c.entries {
			if e.present && e.sector == sector && !e.victim {
				e.time = atomic.AddInt64(&c.clock, 1)
				c.mu.Unlock()
				return e
			}
		}
		for _, e := range c.entries {
			if !e.present {
				e.present = true
				e.sector = sector
				e.valid = false
				e.dirty = false
				e.victim = false
				e.time = atomic.AddInt64(&c.clock, 1)
				c.mu.Unlock()
				return e
			}
		}
		var victim *entry_t
		for _, e := range c.entries {
			if e.valid && !e.victim {
				if victim == nil || e.time < victim.time {
					victim = e
				}
			}
		}
		if victim == nil {
			// Every entry is present but mid-fill (invalid) or already
			// a victim of a concurrent eviction; wait for one to settle.
			c.cond.Wait()
			continue
		}
		victim.victim = true
		victim.lock.EvictLock()
		if victim.dirty {
			c.device.Write(victim.sector, victim.buf[:])
			victim.dirty = false
		}
		victim.sector = sector
		victim.valid = false
		victim.time = atomic.AddInt64(&c.clock, 1)
		victim.victim = false
		victim.lock.EvictUnlock()
		c.mu.Unlock()
		c.Stats.Evictions.Inc()
		return victim
	}
}

// stale reports whether e no longer holds the sector the caller
// expected to find, the victim-flag race from §9: the cache lock was
// released between getBlock returning e and the caller taking e's
// reader/writer lock, and in that window e may have been reassigned.
func stale(e *entry_t, sector uint32) bool {
	return !e.present || e.sector != sector || e.victim
}

func (c *Cache_t) fill(e *entry_t, sector uint32) {
	key := strconv.FormatUint(uint64(sector), 10)
	c.sf.Do(key, func() (interface{}, error) {
		e.lock.Lock()
		if !stale(e, sector) && !e.valid {
			c.device.Read(sector, e.buf[:])
			e.valid = true
			c.Stats.DeviceReads.Inc()
		}
		e.lock.Unlock()
		return nil, nil
	})
	c.cond.Broadcast()
}

func checkBounds(offset, length int) defs.Err_t {
	if offset < 0 || length < 0 || offset+length > mem.SectorSize {
		return defs.EINVAL
	}
	return 0
}

// Read copies length bytes starting at offset from the cached sector
// into dst, loading it from the device on a cold miss.
func (c *Cache_t) Read(sector uint32, dst []byte, offset, length int) defs.Err_t {
	if err := checkBounds(offset, length); err != 0 {
		return err
	}
	filled := false
	for {
		e := c.getBlock(sector)
		e.lock.RLock()
		if stale(e, sector) {
			e.lock.RUnlock()
			continue
		}
		if !e.valid {
			e.lock.RUnlock()
			c.fill(e, sector)
			filled = true
			continue
		}
		copy(dst, e.buf[offset:offset+length])
		e.lock.RUnlock()
		if !filled {
			c.Stats.Hits.Inc()
		}
		return 0
	}
}

// Write copies length bytes from src into the cached sector at offset,
// marking the entry dirty. A write that does not cover the whole
// sector still needs the prior contents loaded first.
func (c *Cache_t) Write(sector uint32, src []byte, offset, length int) defs.Err_t {
	if err := checkBounds(offset, length); err != 0 {
		return err
	}
	full := offset == 0 && length == mem.SectorSize
	for {
		e := c.getBlock(sector)
		e.lock.Lock()
		if stale(e, sector) {
			e.lock.Unlock()
			continue
		}
		if !e.valid && !full {
			e.lock.Unlock()
			c.fill(e, sector)
			continue
		}
		copy(e.buf[offset:offset+length], src)
		e.valid = true
		e.dirty = true
		e.lock.Unlock()
		c.cond.Broadcast()
		return 0
	}
}

// ReadAhead enqueues sector for best-effort background prefetch.
// Sector 0 is suppressed: the original source doubles it as the
// sentinel for "no sector queued", so a request for it is a silent
// no-op (SPEC_FULL.md §9, open question 2).
func (c *Cache_t) ReadAhead(sector uint32) {
	if sector == 0 {
		return
	}
	c.raMu.Lock()
	if !c.raQueued[sector] {
		c.raQueued[sector] = true
		c.raQueue = append(c.raQueue, sector)
		c.raCond.Signal()
	}
	c.raMu.Unlock()
}

func (c *Cache_t) readAheadWorker(ctx context.Context) error {
	for {
		c.raMu.Lock()
		for len(c.raQueue) == 0 {
			if ctx.Err() != nil {
				c.raMu.Unlock()
				return nil
			}
			c.raCond.Wait()
		}
		sector := c.raQueue[0]
		c.raQueue = c.raQueue[1:]
		delete(c.raQueued, sector)
		c.raMu.Unlock()

		c.addOnly(sector)
		c.Stats.ReadAheads.Inc()
	}
}

// addOnly performs a read whose only effect is populating the cache.
// Failures and eviction races are silently ignored, per §4.1.
func (c *Cache_t) addOnly(sector uint32) {
	defer func() { recover() }()
	e := c.getBlock(sector)
	e.lock.Lock()
	if !stale(e, sector) && !e.valid {
		c.device.Read(sector, e.buf[:])
		e.valid = true
		c.Stats.DeviceReads.Inc()
	}
	e.lock.Unlock()
	c.cond.Broadcast()
}

// flushSweep writes back every dirty entry. When force is false
// (periodic tick), an entry whose writer lock is currently held is
// skipped rather than waited for.
func (c *Cache_t) flushSweep(force bool) {
	for _, e := range c.entries {
		if force {
			e.lock.Lock()
		} else if !e.lock.TryLock() {
			continue
		}
		if e.present && e.dirty {
			c.device.Write(e.sector, e.buf[:])
			e.dirty = false
		}
		e.lock.Unlock()
	}
}

func (c *Cache_t) flushWorker(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.flushSweep(false)
		}
	}
}
