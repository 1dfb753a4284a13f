// Package util
//
// This file provides SizeHistogram, an exponential bucket histogram used to
// describe value sizes without keeping every sample. The tree builder feeds
// it while loading and reports the estimates in its build stats.
package util

import (
	"math"
	"sync"
)

// sizeBoundaries are the inclusive upper bounds of the buckets. One extra
// bucket collects everything above the last bound.
var sizeBoundaries = []int64{
	16, 64, 256, 1024, 4096,
	16 << 10, 64 << 10, 256 << 10, 1 << 20,
	4 << 20, 16 << 20, 64 << 20,
	256 << 20, 1 << 30, 4 << 30,
}

// SizeHistogram tracks a distribution of sizes in bytes.
//
// Thread-safe: all methods are safe for concurrent use.
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets []int64
	count   int64
	sum     int64
	max     int64
}

// SizeSummary is a snapshot of a SizeHistogram.
type SizeSummary struct {
	Count   int64 `json:"count"`
	Average int64 `json:"average"`
	Median  int64 `json:"median"`
	P99     int64 `json:"p99"`
	Max     int64 `json:"max"`
}

// NewSizeHistogram creates an empty histogram.
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// AddSample records one size.
func (h *SizeHistogram) AddSample(size int64) {
	idx := len(sizeBoundaries)
	for i, b := range sizeBoundaries {
		if size <= b {
			idx = i
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[idx]++
	h.count++
	h.sum += size
	if size > h.max {
		h.max = size
	}
}

// Count returns the number of samples.
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Percentile estimates the given percentile (0-100) from the bucket bounds.
func (h *SizeHistogram) Percentile(p int) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.percentileLocked(p)
}

func (h *SizeHistogram) percentileLocked(p int) int64 {
	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}
	target := int64(math.Ceil(float64(h.count) * float64(p) / 100))
	if target == 0 {
		target = 1
	}
	var seen int64
	for i, n := range h.buckets {
		seen += n
		if seen < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			return h.max
		}
	}
	return h.max
}

// Summary returns count, average, median, p99 and max in one snapshot.
func (h *SizeHistogram) Summary() SizeSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := SizeSummary{Count: h.count, Max: h.max}
	if h.count > 0 {
		s.Average = h.sum / h.count
		s.Median = h.percentileLocked(50)
		s.P99 = h.percentileLocked(99)
	}
	return s
}

// Reset clears all samples.
func (h *SizeHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.buckets {
		h.buckets[i] = 0
	}
	h.count, h.sum, h.max = 0, 0, 0
}
