package btree

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test collaborator
// --------------------------------------------------------------------------

var testNow = time.Unix(1_700_000_000, 0)

const testBlockSize = 1024

// countingTxn serves blocks from memory and counts every acquisition.
type countingTxn struct {
	blocks   map[BlockID][]byte
	acquired map[BlockID]int
	held     int
	failOn   map[BlockID]bool
}

func newCountingTxn() *countingTxn {
	return &countingTxn{
		blocks:   make(map[BlockID][]byte),
		acquired: make(map[BlockID]int),
		failOn:   make(map[BlockID]bool),
	}
}

func (txn *countingTxn) AcquireRead(ctx context.Context, id BlockID) (BufLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if txn.failOn[id] {
		return nil, fmt.Errorf("injected failure for block %d", id)
	}
	data, ok := txn.blocks[id]
	if !ok {
		return nil, fmt.Errorf("block %d does not exist", id)
	}
	txn.acquired[id]++
	txn.held++
	return &countingLock{txn: txn, data: data}, nil
}

func (txn *countingTxn) totalAcquired() int {
	n := 0
	for _, c := range txn.acquired {
		n += c
	}
	return n
}

type countingLock struct {
	txn      *countingTxn
	data     []byte
	released bool
}

func (l *countingLock) Data() []byte { return l.data }

func (l *countingLock) Release() {
	if l.released {
		return
	}
	l.released = true
	l.txn.held--
}

func leaf(t *testing.T, keys ...string) []byte {
	t.Helper()
	pairs := make([]LeafPair, len(keys))
	for i, k := range keys {
		pairs[i] = LeafPair{Key: Key(k), Value: Value{Flags: uint32(i), Size: uint32(len("v-" + k)), Inline: []byte("v-" + k)}}
	}
	data, err := EncodeLeaf(testBlockSize, pairs)
	if err != nil {
		t.Fatalf("encode leaf: %v", err)
	}
	return data
}

func internal(t *testing.T, pairs ...InternalPair) []byte {
	t.Helper()
	data, err := EncodeInternal(testBlockSize, pairs)
	if err != nil {
		t.Fatalf("encode internal: %v", err)
	}
	return data
}

// Block ids of the test tree:
//
//	            root(1): f->2, z->5
//	      L(2): c->3, f->4        R(5): r->6, z->7
//	L1(3): a b c  L2(4): d e f    R1(6): p q r  R2(7): x y z
const (
	blkRoot = BlockID(1)
	blkL    = BlockID(2)
	blkL1   = BlockID(3)
	blkL2   = BlockID(4)
	blkR    = BlockID(5)
	blkR1   = BlockID(6)
	blkR2   = BlockID(7)
)

var allKeys = []string{"a", "b", "c", "d", "e", "f", "p", "q", "r", "x", "y", "z"}

func newTestTree(t *testing.T) *countingTxn {
	txn := newCountingTxn()
	txn.blocks[SuperblockID] = Superblock{BlockSize: testBlockSize, Root: blkRoot, NextFree: 8, Pairs: 12, Height: 3}.Encode()
	txn.blocks[blkRoot] = internal(t, InternalPair{Key: Key("f"), Child: blkL}, InternalPair{Key: Key("z"), Child: blkR})
	txn.blocks[blkL] = internal(t, InternalPair{Key: Key("c"), Child: blkL1}, InternalPair{Key: Key("f"), Child: blkL2})
	txn.blocks[blkR] = internal(t, InternalPair{Key: Key("r"), Child: blkR1}, InternalPair{Key: Key("z"), Child: blkR2})
	txn.blocks[blkL1] = leaf(t, "a", "b", "c")
	txn.blocks[blkL2] = leaf(t, "d", "e", "f")
	txn.blocks[blkR1] = leaf(t, "p", "q", "r")
	txn.blocks[blkR2] = leaf(t, "x", "y", "z")
	return txn
}

func drainKeys(t *testing.T, it *SliceKeysIterator) []string {
	t.Helper()
	var keys []string
	for {
		kv, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			return keys
		}
		keys = append(keys, KeyToStr(kv.Key))
	}
}

// --------------------------------------------------------------------------
// LeafIterator
// --------------------------------------------------------------------------

func TestLeafIteratorSkipsExpired(t *testing.T) {
	txn := newCountingTxn()
	data, err := EncodeLeaf(testBlockSize, []LeafPair{
		{Key: Key("a"), Value: Value{Size: 1, Inline: []byte("1")}},
		{Key: Key("b"), Value: Value{ExpTime: uint32(testNow.Unix()) - 10, Size: 1, Inline: []byte("2")}},
		{Key: Key("c"), Value: Value{ExpTime: uint32(testNow.Unix()) + 10, Size: 1, Inline: []byte("3")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	txn.blocks[1] = data

	lock, _ := txn.AcquireRead(context.Background(), 1)
	it, err := NewLeafIterator(txn, lock, 0, testNow)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for kv, ok := it.Next(); ok; kv, ok = it.Next() {
		got = append(got, KeyToStr(kv.Key))
	}
	if !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Expected [a c], got %v", got)
	}
	if txn.held != 0 {
		t.Errorf("Exhausted leaf iterator must release its lock, %d held", txn.held)
	}

	// past exhaustion
	for i := 0; i < 3; i++ {
		if _, ok := it.Next(); ok {
			t.Error("Next after exhaustion must return false")
		}
		it.Done()
	}
	if txn.held != 0 {
		t.Errorf("Repeated Done must not double release, %d held", txn.held)
	}
}

func TestLeafIteratorRejectsInternalNode(t *testing.T) {
	txn := newTestTree(t)
	lock, _ := txn.AcquireRead(context.Background(), blkRoot)
	if _, err := NewLeafIterator(txn, lock, 0, testNow); err == nil {
		t.Error("Expected an error for an internal node")
	}
	if txn.held != 0 {
		t.Errorf("Lock must be released on error, %d held", txn.held)
	}
}

// --------------------------------------------------------------------------
// SliceKeysIterator
// --------------------------------------------------------------------------

func TestSingleLeafOpenClosedRange(t *testing.T) {
	txn := newCountingTxn()
	txn.blocks[SuperblockID] = Superblock{BlockSize: testBlockSize, Root: 1, NextFree: 2, Pairs: 3, Height: 1}.Encode()
	data, err := EncodeLeaf(testBlockSize, []LeafPair{
		{Key: Key("a"), Value: Value{Size: 1, Inline: []byte("1")}},
		{Key: Key("b"), Value: Value{Size: 1, Inline: []byte("2")}},
		{Key: Key("c"), Value: Value{Size: 1, Inline: []byte("3")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	txn.blocks[1] = data

	pairs, err := Collect(context.Background(), NewSliceKeysIterator(txn, Open("a"), Closed("c"), testNow), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []Pair{{Key: []byte("b"), Value: []byte("2")}, {Key: []byte("c"), Value: []byte("3")}}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("Expected %v, got %v", want, pairs)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

func TestSliceKeysIteratorBounds(t *testing.T) {
	tests := []struct {
		name  string
		left  Bound
		right Bound
		want  []string
	}{
		{"unbounded", Unbounded(), Unbounded(), allKeys},
		{"closed left", Closed("d"), Unbounded(), []string{"d", "e", "f", "p", "q", "r", "x", "y", "z"}},
		{"open left", Open("d"), Unbounded(), []string{"e", "f", "p", "q", "r", "x", "y", "z"}},
		{"open left at leaf end", Open("c"), Closed("e"), []string{"d", "e"}},
		{"left between keys", Closed("g"), Unbounded(), []string{"p", "q", "r", "x", "y", "z"}},
		{"open left between keys", Open("g"), Open("q"), []string{"p"}},
		{"closed right", Unbounded(), Closed("e"), []string{"a", "b", "c", "d", "e"}},
		{"open right", Unbounded(), Open("e"), []string{"a", "b", "c", "d"}},
		{"right between keys", Unbounded(), Closed("h"), []string{"a", "b", "c", "d", "e", "f"}},
		{"single key", Closed("q"), Closed("q"), []string{"q"}},
		{"open single key", Open("q"), Closed("q"), nil},
		{"left after all keys", Closed("zz"), Unbounded(), nil},
		{"right before all keys", Unbounded(), Open("a"), nil},
		{"across subtrees", Open("f"), Closed("p"), []string{"p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := newTestTree(t)
			got := drainKeys(t, NewSliceKeysIterator(txn, tt.left, tt.right, testNow))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("range %s..%s: expected %v, got %v", tt.left, tt.right, tt.want, got)
			}
			for i := 1; i < len(got); i++ {
				if got[i-1] >= got[i] {
					t.Errorf("keys not strictly increasing: %q before %q", got[i-1], got[i])
				}
			}
			if txn.held != 0 {
				t.Errorf("Expected zero held locks, got %d", txn.held)
			}
		})
	}
}

func TestSliceKeysIteratorReleasesOnEarlyDone(t *testing.T) {
	for _, calls := range []int{0, 1, 2, 4, 7, len(allKeys), len(allKeys) + 2} {
		t.Run(fmt.Sprintf("after %d calls", calls), func(t *testing.T) {
			txn := newTestTree(t)
			it := NewSliceKeysIterator(txn, Unbounded(), Unbounded(), testNow)
			for i := 0; i < calls; i++ {
				if _, _, err := it.Next(context.Background()); err != nil {
					t.Fatal(err)
				}
			}
			it.Done()
			it.Done()
			if txn.held != 0 {
				t.Errorf("Expected zero held locks after Done, got %d", txn.held)
			}
		})
	}
}

func TestSliceKeysIteratorExhaustionIsSticky(t *testing.T) {
	txn := newTestTree(t)
	it := NewSliceKeysIterator(txn, Unbounded(), Closed("b"), testNow)
	if got := drainKeys(t, it); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Expected [a b], got %v", got)
	}

	acquired := txn.totalAcquired()
	for i := 0; i < 5; i++ {
		if _, ok, err := it.Next(context.Background()); ok || err != nil {
			t.Fatalf("Next on an exhausted iterator must return false, got ok=%v err=%v", ok, err)
		}
	}
	if txn.totalAcquired() != acquired {
		t.Errorf("Exhausted iterator acquired %d more blocks", txn.totalAcquired()-acquired)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

func TestSliceKeysIteratorExpiredLeafEndsRange(t *testing.T) {
	txn := newTestTree(t)
	expired := uint32(testNow.Unix()) - 1
	pairs := make([]LeafPair, 0, 3)
	for _, k := range []string{"d", "e", "f"} {
		pairs = append(pairs, LeafPair{Key: Key(k), Value: Value{ExpTime: expired, Size: 1, Inline: []byte("x")}})
	}
	data, err := EncodeLeaf(testBlockSize, pairs)
	if err != nil {
		t.Fatal(err)
	}
	txn.blocks[blkL2] = data

	// the next leaf is consulted once; a leaf without live pairs ends the range
	got := drainKeys(t, NewSliceKeysIterator(txn, Unbounded(), Unbounded(), testNow))
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

func TestSliceKeysIteratorPropagatesErrors(t *testing.T) {
	txn := newTestTree(t)
	txn.failOn[blkR1] = true

	it := NewSliceKeysIterator(txn, Unbounded(), Unbounded(), testNow)
	var got []string
	var err error
	for {
		var kv KeyWithData
		var ok bool
		kv, ok, err = it.Next(context.Background())
		if err != nil || !ok {
			break
		}
		got = append(got, KeyToStr(kv.Key))
	}
	if err == nil {
		t.Fatal("Expected the injected error")
	}
	if !reflect.DeepEqual(got, []string{"a", "b", "c", "d", "e", "f"}) {
		t.Errorf("Expected the left subtree before the error, got %v", got)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks after an error, got %d", txn.held)
	}
	if _, ok, err := it.Next(context.Background()); ok || err != nil {
		t.Errorf("Iterator must stay finished after an error")
	}
}

func TestSliceKeysIteratorEmptyTree(t *testing.T) {
	txn := newCountingTxn()
	txn.blocks[SuperblockID] = Superblock{BlockSize: testBlockSize, NextFree: 1}.Encode()

	if got := drainKeys(t, NewSliceKeysIterator(txn, Closed("a"), Unbounded(), testNow)); len(got) != 0 {
		t.Errorf("Expected no keys, got %v", got)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

// --------------------------------------------------------------------------
// SliceLeavesIterator
// --------------------------------------------------------------------------

func TestSliceLeavesIteratorSkipsLeftSubtree(t *testing.T) {
	txn := newTestTree(t)
	it := NewSliceLeavesIterator(txn, Closed("m"), Unbounded(), testNow)

	first, err := it.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first == nil {
		t.Fatal("Expected a leaf")
	}
	kv, ok := first.Next()
	if !ok || KeyToStr(kv.Key) != "p" {
		t.Errorf("Expected the first leaf to start at p, got %q", kv.Key)
	}
	first.Done()

	for _, id := range []BlockID{blkL, blkL1, blkL2} {
		if txn.acquired[id] != 0 {
			t.Errorf("Block %d of the left subtree must not be acquired", id)
		}
	}
	it.Done()
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

func TestSliceLeavesIteratorWalksAllLeaves(t *testing.T) {
	txn := newTestTree(t)
	it := NewSliceLeavesIterator(txn, Unbounded(), Closed("a"), testNow)

	var leaves int
	for {
		l, err := it.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if l == nil {
			break
		}
		leaves++
		l.Done()
	}
	// the right bound is not applied when walking leaves
	if leaves != 4 {
		t.Errorf("Expected 4 leaves, got %d", leaves)
	}
	for id, n := range txn.acquired {
		if id != SuperblockID && n != 1 {
			t.Errorf("Block %d acquired %d times, expected once", id, n)
		}
	}
	if l, err := it.Next(context.Background()); l != nil || err != nil {
		t.Error("Exhausted leaves iterator must keep returning nil")
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}

func TestSliceLeavesIteratorDoneReleasesFrames(t *testing.T) {
	for _, calls := range []int{0, 1, 2, 3, 4, 5} {
		t.Run(fmt.Sprintf("after %d calls", calls), func(t *testing.T) {
			txn := newTestTree(t)
			it := NewSliceLeavesIterator(txn, Closed("b"), Unbounded(), testNow)
			for i := 0; i < calls; i++ {
				l, err := it.Next(context.Background())
				if err != nil {
					t.Fatal(err)
				}
				if l != nil {
					l.Done()
				}
			}
			it.Done()
			it.Done()
			if txn.held != 0 {
				t.Errorf("Expected zero held locks, got %d", txn.held)
			}
		})
	}
}

func TestSliceLeavesIteratorCancelledContext(t *testing.T) {
	txn := newTestTree(t)
	it := NewSliceLeavesIterator(txn, Unbounded(), Unbounded(), testNow)
	l, err := it.Next(context.Background())
	if err != nil || l == nil {
		t.Fatalf("Expected the first leaf, got %v", err)
	}
	l.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := it.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if txn.held != 0 {
		t.Errorf("Expected zero held locks, got %d", txn.held)
	}
}
