// Package util provides small data structures shared by the dTab packages.
//
// The package contains:
//   - mapheap: a min-heap with key based access, used as the page cache eviction queue
//   - mpsc: an unbounded multi-producer single-consumer queue, used to hand F2L
//     reports from RPC handlers to the leader loop
//   - histogram: an exponential bucket SizeHistogram, used for build statistics
package util
