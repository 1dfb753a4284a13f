// Package util
//
// This file provides MapHeap, a min-heap that can also be addressed by key.
//
// The page cache uses it as its eviction queue: every unpinned page is an
// entry keyed by its block id with the access tick of its last release as
// priority. The least recently used page is always at the top, and a page
// that gets pinned again can be taken out of the queue directly.
//
//   - O(log n) for AddItem (insert or re-prioritize), RemoveByKey and PopMin
//   - O(1) for Peek, Contains and GetByKey
//
// MapHeap is not safe for concurrent use; callers synchronize externally.
//
// Example usage:
//
//	q := NewMapHeap[uint64]()
//	q.AddItem(7, tick)
//	if victim, ok := q.PopMin(); ok {
//	    evict(victim.Key)
//	}
package util

import (
	"container/heap"
	"fmt"
)

// HeapItem is an entry of a MapHeap.
type HeapItem[K comparable] struct {
	Key      K      // identifies the entry
	Priority uint64 // smallest priority is popped first
	index    int    // position in the heap slice, maintained by container/heap
}

func (i *HeapItem[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// heapSlice implements heap.Interface and keeps the key index in sync.
type heapSlice[K comparable] struct {
	items []*HeapItem[K]
	byKey map[K]*HeapItem[K]
}

func (h *heapSlice[K]) Len() int { return len(h.items) }

func (h *heapSlice[K]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

func (h *heapSlice[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *heapSlice[K]) Push(x interface{}) {
	it := x.(*HeapItem[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.byKey[it.Key] = it
}

func (h *heapSlice[K]) Pop() interface{} {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	it.index = -1
	h.items = h.items[:n-1]
	delete(h.byKey, it.Key)
	return it
}

// MapHeap is a priority queue with key based access.
type MapHeap[K comparable] struct {
	h heapSlice[K]
}

// NewMapHeap creates an empty queue.
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{h: heapSlice[K]{byKey: make(map[K]*HeapItem[K])}}
}

// Len returns the number of entries.
func (q *MapHeap[K]) Len() int { return q.h.Len() }

// AddItem inserts key or updates the priority of an existing entry.
func (q *MapHeap[K]) AddItem(key K, priority uint64) {
	if it, ok := q.h.byKey[key]; ok {
		it.Priority = priority
		heap.Fix(&q.h, it.index)
		return
	}
	heap.Push(&q.h, &HeapItem[K]{Key: key, Priority: priority})
}

// RemoveByKey removes key and returns its priority.
func (q *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	it, ok := q.h.byKey[key]
	if !ok {
		return 0, false
	}
	heap.Remove(&q.h, it.index)
	return it.Priority, true
}

// Peek returns the entry with the smallest priority without removing it.
func (q *MapHeap[K]) Peek() (*HeapItem[K], bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return q.h.items[0], true
}

// PopMin removes and returns the entry with the smallest priority.
func (q *MapHeap[K]) PopMin() (*HeapItem[K], bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*HeapItem[K]), true
}

// Contains reports whether key is queued.
func (q *MapHeap[K]) Contains(key K) bool {
	_, ok := q.h.byKey[key]
	return ok
}

// GetByKey returns the entry for key without removing it.
func (q *MapHeap[K]) GetByKey(key K) (*HeapItem[K], bool) {
	it, ok := q.h.byKey[key]
	return it, ok
}
