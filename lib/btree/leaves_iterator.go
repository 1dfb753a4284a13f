package btree

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// frame is one internal node on the descent path. It owns the node's lock
// until it is popped.
type frame struct {
	node  nodeView
	index int
	lock  BufLock
}

// SliceLeavesIterator yields the leaves of the tree from left to right,
// starting at the first leaf that may contain the left bound.
// The right bound is kept for the caller; it is not applied here.
type SliceLeavesIterator struct {
	txn   Transaction
	left  Bound
	right Bound
	now   time.Time

	stack     []frame
	started   bool
	exhausted bool
}

// NewSliceLeavesIterator creates a lazy leaves iterator. Nothing is acquired
// before the first call to Next.
func NewSliceLeavesIterator(txn Transaction, left, right Bound, now time.Time) *SliceLeavesIterator {
	return &SliceLeavesIterator{txn: txn, left: left, right: right, now: now}
}

// Next returns the next leaf or nil once the tree is exhausted. The caller
// owns the returned LeafIterator and must call Done on it (or drain it).
// On error every held lock is released and the iterator is exhausted.
func (it *SliceLeavesIterator) Next(ctx context.Context) (*LeafIterator, error) {
	if it.exhausted {
		return nil, nil
	}

	var (
		leaf *LeafIterator
		err  error
	)
	if !it.started {
		it.started = true
		leaf, err = it.getFirstLeaf(ctx)
	} else {
		leaf, err = it.getNextLeaf(ctx)
	}
	if err != nil {
		it.Done()
		return nil, err
	}
	if leaf == nil {
		it.Done()
	}
	return leaf, nil
}

// Done releases the locks of all remaining frames, deepest first.
// It is safe to call Done more than once.
func (it *SliceLeavesIterator) Done() {
	it.exhausted = true
	for i := len(it.stack) - 1; i >= 0; i-- {
		it.stack[i].lock.Release()
	}
	it.stack = nil
}

// Right returns the right bound the iterator was created with.
func (it *SliceLeavesIterator) Right() Bound { return it.right }

// --------------------------------------------------------------------------
// Descent
// --------------------------------------------------------------------------

func (it *SliceLeavesIterator) getFirstLeaf(ctx context.Context) (*LeafIterator, error) {
	sb, err := ReadSuperblock(ctx, it.txn)
	if err != nil {
		return nil, err
	}
	if sb.Root == NoBlock {
		return nil, nil
	}
	if it.left.Mode == BoundNone {
		return it.getLeftmostLeaf(ctx, sb.Root)
	}

	id := sb.Root
	for {
		lock, node, err := it.acquireNode(ctx, id)
		if err != nil {
			return nil, err
		}

		index := node.getOffsetIndex(it.left.Key)
		if index >= node.npairs() {
			// everything below this node is left of the bound
			lock.Release()
			return it.getNextLeaf(ctx)
		}
		if node.isLeaf() {
			return NewLeafIterator(it.txn, lock, index, it.now)
		}

		it.stack = append(it.stack, frame{node: node, index: index, lock: lock})
		id = node.child(index)
	}
}

func (it *SliceLeavesIterator) getLeftmostLeaf(ctx context.Context, id BlockID) (*LeafIterator, error) {
	for {
		lock, node, err := it.acquireNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if node.isLeaf() {
			return NewLeafIterator(it.txn, lock, 0, it.now)
		}
		it.stack = append(it.stack, frame{node: node, index: 0, lock: lock})
		id = node.child(0)
	}
}

func (it *SliceLeavesIterator) getNextLeaf(ctx context.Context) (*LeafIterator, error) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		top.index++
		if top.index < top.node.npairs() {
			return it.getLeftmostLeaf(ctx, top.node.child(top.index))
		}
		top.lock.Release()
		it.stack = it.stack[:len(it.stack)-1]
	}
	return nil, nil
}

// acquireNode read-locks and parses block id. The lock is released if the
// block does not hold a valid node.
func (it *SliceLeavesIterator) acquireNode(ctx context.Context, id BlockID) (BufLock, nodeView, error) {
	lock, err := it.txn.AcquireRead(ctx, id)
	if err != nil {
		return nil, nodeView{}, errors.Wrapf(err, "acquire node %d", id)
	}
	node, err := parseNode(lock.Data())
	if err != nil {
		lock.Release()
		return nil, nodeView{}, errors.Wrapf(err, "parse node %d", id)
	}
	return lock, node, nil
}
