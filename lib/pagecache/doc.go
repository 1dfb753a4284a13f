// Package pagecache implements btree.Transaction on top of a
// blockstore.BlockStore.
//
// A Cache keeps recently used blocks in memory. Every AcquireRead pins the
// page and takes its shared latch; the page can only be evicted after the
// last BufLock for it was released. Unpinned pages wait in a util.MapHeap
// ordered by release tick, so the least recently released page is evicted
// first once the cache holds more than its capacity.
//
// Statistics are kept twice: per cache in a go-metrics registry (Stats) and
// process wide in VictoriaMetrics counters named dtab_pagecache_*, which the
// HTTP transport exposes at GET /metrics.
//
// Both the cache and the per-transaction HeldLocks counters are used by the
// tests to verify that iterators never leak a lock.
package pagecache
