package btree

import (
	"context"
	"time"
)

// SliceKeysIterator produces the pairs of a bounded key range in strictly
// increasing key order. It is lazy, finite and forward-only.
type SliceKeysIterator struct {
	txn   Transaction
	left  Bound
	right Bound
	now   time.Time

	leaves   *SliceLeavesIterator
	active   *LeafIterator
	started  bool
	finished bool
}

// NewSliceKeysIterator creates a range iterator over [left, right] with the
// given bound modes. Values expired at now are skipped.
func NewSliceKeysIterator(txn Transaction, left, right Bound, now time.Time) *SliceKeysIterator {
	return &SliceKeysIterator{txn: txn, left: left, right: right, now: now}
}

// Next returns the next pair of the range. The returned key and value
// provider stay valid until the next call to Next or Done.
// Once Next returns false (or an error) the iterator is finished and holds no locks.
func (it *SliceKeysIterator) Next(ctx context.Context) (KeyWithData, bool, error) {
	if it.finished {
		return KeyWithData{}, false, nil
	}

	var (
		kv  KeyWithData
		ok  bool
		err error
	)
	if !it.started {
		it.started = true
		kv, ok, err = it.getFirstValue(ctx)
	} else {
		kv, ok, err = it.getNextValue(ctx)
	}
	if err != nil {
		it.Done()
		return KeyWithData{}, false, err
	}
	if !ok || !it.validateReturnValue(kv) {
		it.Done()
		return KeyWithData{}, false, nil
	}
	return kv, true, nil
}

// Done releases the active leaf and all frames of the leaves iterator.
// It is safe to call Done more than once.
func (it *SliceKeysIterator) Done() {
	it.finished = true
	if it.active != nil {
		it.active.Done()
		it.active = nil
	}
	if it.leaves != nil {
		it.leaves.Done()
	}
}

func (it *SliceKeysIterator) getFirstValue(ctx context.Context) (KeyWithData, bool, error) {
	it.leaves = NewSliceLeavesIterator(it.txn, it.left, it.right, it.now)
	leaf, err := it.leaves.Next(ctx)
	if err != nil || leaf == nil {
		return KeyWithData{}, false, err
	}
	it.active = leaf

	kv, ok := it.active.Next()
	if !ok {
		return it.getNextValue(ctx)
	}
	if it.left.Mode == BoundOpen && Compare(kv.Key, it.left.Key) == 0 {
		return it.getNextValue(ctx)
	}
	return kv, true, nil
}

// getNextValue moves to the following leaf at most once. A leaf that yields
// nothing (every pair expired) ends the range.
func (it *SliceKeysIterator) getNextValue(ctx context.Context) (KeyWithData, bool, error) {
	if kv, ok := it.active.Next(); ok {
		return kv, true, nil
	}
	it.active.Done()
	it.active = nil

	leaf, err := it.leaves.Next(ctx)
	if err != nil || leaf == nil {
		return KeyWithData{}, false, err
	}
	it.active = leaf
	kv, ok := it.active.Next()
	return kv, ok, nil
}

func (it *SliceKeysIterator) validateReturnValue(kv KeyWithData) bool {
	switch it.right.Mode {
	case BoundNone:
		return true
	case BoundClosed:
		return Compare(kv.Key, it.right.Key) <= 0
	default:
		return Compare(kv.Key, it.right.Key) < 0
	}
}
