// Package btree implements the read side of dTab's on-disk B-tree.
//
// The tree lives in fixed-size blocks that are only ever accessed through a
// Transaction. A Transaction hands out read-locked pages (BufLock) and the
// iterators in this package are responsible for releasing every lock they take,
// no matter at which point iteration is abandoned.
//
// The package focuses on:
//   - The page layout of superblock, leaf and internal nodes
//   - Lazy, forward-only iteration over a bounded key range
//   - Structural lock safety: every lock is owned by exactly one frame or leaf
//
// Key Components:
//
//   - LeafIterator: walks the sorted pairs of a single locked leaf, skipping
//     expired values. It releases its lock once it runs past the last pair.
//
//   - SliceLeavesIterator: descends from the root to the first leaf that may
//     contain the left bound and then walks the remaining leaves left to right.
//     It keeps an explicit stack of internal-node frames to resume the descent.
//     The right bound is never applied here.
//
//   - SliceKeysIterator: flattens the leaves into one stream of pairs and
//     enforces the open left bound and the right bound.
//
// Iterators are not safe for concurrent use. A single goroutine is expected to
// call Next sequentially; the only blocking point is Transaction.AcquireRead.
//
// Related Packages:
//
// The builder package (github.com/ValentinKolb/dTab/lib/btree/builder) produces
// trees in this layout. The pagecache package (github.com/ValentinKolb/dTab/lib/pagecache)
// provides the Transaction implementation used by the server.
package btree
