package pagecache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/lib/util"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

// DefaultCapacity is the number of pages kept when no capacity is configured.
const DefaultCapacity = 1024

var log = logger.GetLogger("pagecache")

// process wide counters, exported at GET /metrics
var (
	hitsTotal      = vm.GetOrCreateCounter("dtab_pagecache_hits_total")
	missesTotal    = vm.GetOrCreateCounter("dtab_pagecache_misses_total")
	evictionsTotal = vm.GetOrCreateCounter("dtab_pagecache_evictions_total")
)

// page is a cached block. latch is the per-block shared lock handed out by
// AcquireRead; pins counts the acquisitions that still reference the page.
type page struct {
	id    uint64
	latch sync.RWMutex
	data  []byte
	err   error
	ready chan struct{}
	pins  int
}

// Cache keeps a bounded number of blocks of a BlockStore in memory.
// Pinned pages are never evicted; unpinned pages are evicted least recently
// released first.
type Cache struct {
	store    blockstore.BlockStore
	capacity int

	mu    sync.Mutex
	pages map[uint64]*page
	lru   *util.MapHeap[uint64]
	tick  uint64

	held      atomic.Int64
	registry  gometrics.Registry
	hits      gometrics.Meter
	misses    gometrics.Meter
	evictions gometrics.Meter
	heldLocks gometrics.Counter
}

// Stats is a snapshot of the cache statistics.
type Stats struct {
	Capacity  int     `json:"capacity"`
	Pages     int     `json:"pages"`
	HeldLocks int64   `json:"held_locks"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate1m float64 `json:"hit_rate_1m"`
}

// New creates a cache over store holding at most capacity unpinned pages
// (capacity <= 0 selects DefaultCapacity).
func New(store blockstore.BlockStore, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	reg := gometrics.NewRegistry()
	return &Cache{
		store:     store,
		capacity:  capacity,
		pages:     make(map[uint64]*page),
		lru:       util.NewMapHeap[uint64](),
		registry:  reg,
		hits:      gometrics.NewRegisteredMeter("hits", reg),
		misses:    gometrics.NewRegisteredMeter("misses", reg),
		evictions: gometrics.NewRegisteredMeter("evictions", reg),
		heldLocks: gometrics.NewRegisteredCounter("held_locks", reg),
	}
}

// --------------------------------------------------------------------------
// Read access
// --------------------------------------------------------------------------

// acquire pins the page for id (loading it on a miss) and takes its shared latch.
func (c *Cache) acquire(ctx context.Context, id uint64) (*page, error) {
	c.mu.Lock()
	p, ok := c.pages[id]
	if ok {
		p.pins++
		c.lru.RemoveByKey(id)
		c.mu.Unlock()
		c.hits.Mark(1)
		hitsTotal.Inc()
	} else {
		p = &page{id: id, ready: make(chan struct{}), pins: 1}
		c.pages[id] = p
		c.mu.Unlock()
		c.misses.Mark(1)
		missesTotal.Inc()

		p.data, p.err = c.store.Get(id)
		close(p.ready)
	}

	select {
	case <-p.ready:
	case <-ctx.Done():
		c.unpin(p)
		return nil, ctx.Err()
	}
	if p.err != nil {
		err := p.err
		c.drop(p)
		return nil, errors.Wrapf(err, "load block %d", id)
	}

	p.latch.RLock()
	c.held.Add(1)
	c.heldLocks.Inc(1)
	return p, nil
}

func (c *Cache) release(p *page) {
	p.latch.RUnlock()
	c.held.Add(-1)
	c.heldLocks.Dec(1)
	c.unpin(p)
}

func (c *Cache) unpin(p *page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.pins--
	if p.pins > 0 || c.pages[p.id] != p {
		return
	}
	c.tick++
	c.lru.AddItem(p.id, c.tick)
	c.evictLocked()
}

// drop unpins a page whose load failed and forgets it, so the next
// acquisition retries the load.
func (c *Cache) drop(p *page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.pins--
	if c.pages[p.id] == p {
		delete(c.pages, p.id)
		c.lru.RemoveByKey(p.id)
	}
}

func (c *Cache) evictLocked() {
	for len(c.pages) > c.capacity {
		victim, ok := c.lru.PopMin()
		if !ok {
			// everything left is pinned
			return
		}
		delete(c.pages, victim.Key)
		c.evictions.Mark(1)
		evictionsTotal.Inc()
	}
}

// --------------------------------------------------------------------------
// Write access
// --------------------------------------------------------------------------

// Put writes a block through to the store and refreshes a cached copy.
// It waits for all readers of the block to release their latches.
func (c *Cache) Put(id uint64, data []byte) error {
	if err := c.store.Put(id, data); err != nil {
		return err
	}

	c.mu.Lock()
	p, ok := c.pages[id]
	if ok {
		p.pins++
		c.lru.RemoveByKey(id)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	<-p.ready
	p.latch.Lock()
	p.data = append([]byte(nil), data...)
	p.err = nil
	p.latch.Unlock()
	c.unpin(p)
	return nil
}

// Sync flushes the underlying store.
func (c *Cache) Sync() error {
	return c.store.Sync()
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// HeldLocks returns the number of read latches currently held through this cache.
func (c *Cache) HeldLocks() int64 {
	return c.held.Load()
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	pages := len(c.pages)
	c.mu.Unlock()

	s := Stats{
		Capacity:  c.capacity,
		Pages:     pages,
		HeldLocks: c.heldLocks.Count(),
		Hits:      c.hits.Count(),
		Misses:    c.misses.Count(),
		Evictions: c.evictions.Count(),
	}
	if total := c.hits.Rate1() + c.misses.Rate1(); total > 0 {
		s.HitRate1m = c.hits.Rate1() / total
	}
	return s
}

// Store returns the underlying block store.
func (c *Cache) Store() blockstore.BlockStore {
	return c.store
}

// Close stops the statistics meters and closes the underlying store.
func (c *Cache) Close() error {
	if held := c.held.Load(); held != 0 {
		log.Warningf("closing page cache with %d read locks still held", held)
	}
	c.registry.UnregisterAll()
	return c.store.Close()
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// Txn is a read transaction. It implements btree.Transaction.
type Txn struct {
	cache *Cache
	held  atomic.Int64
}

// Begin starts a read transaction.
func (c *Cache) Begin() *Txn {
	return &Txn{cache: c}
}

// AcquireRead pins and read-latches a block. The returned lock must be released.
func (t *Txn) AcquireRead(ctx context.Context, id btree.BlockID) (btree.BufLock, error) {
	p, err := t.cache.acquire(ctx, uint64(id))
	if err != nil {
		return nil, err
	}
	t.held.Add(1)
	return &bufLock{txn: t, page: p}, nil
}

// HeldLocks returns the number of locks acquired through t that are not released yet.
func (t *Txn) HeldLocks() int64 {
	return t.held.Load()
}

type bufLock struct {
	txn      *Txn
	page     *page
	released atomic.Bool
}

func (l *bufLock) Data() []byte {
	return l.page.data
}

func (l *bufLock) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.txn.held.Add(-1)
	l.txn.cache.release(l.page)
}
