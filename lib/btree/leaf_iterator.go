package btree

import (
	"time"

	"github.com/cockroachdb/errors"
)

// LeafIterator walks the sorted pairs of a single read-locked leaf.
// It owns the leaf lock and releases it once it runs past the last pair or
// when Done is called, whichever happens first.
type LeafIterator struct {
	txn   Transaction
	lock  BufLock
	node  nodeView
	index int
	now   time.Time
	done  bool
}

// NewLeafIterator takes ownership of lock, which must hold a leaf node, and
// starts iterating at index. If the block is not a valid leaf the lock is
// released and an error is returned.
func NewLeafIterator(txn Transaction, lock BufLock, index int, now time.Time) (*LeafIterator, error) {
	node, err := parseNode(lock.Data())
	if err != nil {
		lock.Release()
		return nil, errors.Wrap(err, "parse leaf")
	}
	if !node.isLeaf() {
		lock.Release()
		return nil, errors.New("expected a leaf node, got an internal node")
	}
	return &LeafIterator{txn: txn, lock: lock, node: node, index: index, now: now}, nil
}

// Next returns the next pair that is not expired. Once the leaf is exhausted
// the lock is released and Next keeps returning false.
func (it *LeafIterator) Next() (KeyWithData, bool) {
	for !it.done && it.index < it.node.npairs() {
		i := it.index
		it.index++

		v := it.node.value(i)
		if v.Expired(it.now) {
			continue
		}
		return KeyWithData{
			Key:   it.node.key(i),
			Flags: v.Flags,
			Value: newValueProvider(it.txn, v, len(it.node.data)),
		}, true
	}
	it.Done()
	return KeyWithData{}, false
}

// Done releases the leaf lock. It is safe to call Done more than once.
func (it *LeafIterator) Done() {
	if it.done {
		return
	}
	it.done = true
	it.lock.Release()
}
