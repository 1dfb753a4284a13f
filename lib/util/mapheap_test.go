package util

import (
	"sort"
	"testing"
)

func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[uint64]()
	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}
	if _, ok := mh.Peek(); ok {
		t.Error("Peek on empty heap should return ok=false")
	}
	if _, ok := mh.PopMin(); ok {
		t.Error("PopMin on empty heap should return ok=false")
	}
}

func TestAddItem(t *testing.T) {
	mh := NewMapHeap[uint64]()
	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}
	for _, k := range []uint64{1, 2, 3} {
		if !mh.Contains(k) {
			t.Errorf("Heap should contain key %d", k)
		}
	}

	it, ok := mh.Peek()
	if !ok {
		t.Fatal("Peek() should return an item")
	}
	if it.Key != 3 || it.Priority != 50 {
		t.Errorf("Expected min item to be (3,50), got (%d,%d)", it.Key, it.Priority)
	}
}

func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[uint64]()
	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(1, 300)

	it, ok := mh.GetByKey(1)
	if !ok {
		t.Fatal("Item with key 1 should exist")
	}
	if it.Priority != 300 {
		t.Errorf("Item with key 1 should have priority 300, got %d", it.Priority)
	}
	if min, _ := mh.Peek(); min.Key != 2 {
		t.Errorf("Min item should now be key 2, got %d", min.Key)
	}
	if mh.Len() != 2 {
		t.Errorf("Update must not add an entry, have %d", mh.Len())
	}
}

func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	prio, ok := mh.RemoveByKey("b")
	if !ok {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if prio != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", prio)
	}
	if mh.Contains("b") || mh.Len() != 2 {
		t.Errorf("Key b should be gone, len=%d", mh.Len())
	}
	if _, ok := mh.RemoveByKey("zz"); ok {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

func TestPopOrder(t *testing.T) {
	tests := []struct {
		name  string
		items map[uint64]uint64
	}{
		{"ascending", map[uint64]uint64{1: 10, 2: 20, 3: 30}},
		{"descending", map[uint64]uint64{1: 30, 2: 20, 3: 10}},
		{"mixed", map[uint64]uint64{5: 50, 3: 30, 1: 10, 4: 40, 2: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mh := NewMapHeap[uint64]()
			var prios []uint64
			for k, p := range tt.items {
				mh.AddItem(k, p)
				prios = append(prios, p)
			}
			sort.Slice(prios, func(i, j int) bool { return prios[i] < prios[j] })

			for i, want := range prios {
				it, ok := mh.PopMin()
				if !ok {
					t.Fatalf("Heap empty after %d items", i)
				}
				if it.Priority != want {
					t.Errorf("Pop %d: expected priority %d, got %d", i, want, it.Priority)
				}
				if mh.Contains(it.Key) {
					t.Errorf("Popped key %d is still indexed", it.Key)
				}
			}
			if mh.Len() != 0 {
				t.Errorf("Heap should be empty, has %d items", mh.Len())
			}
		})
	}
}

func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[uint64]()
	const n = 10000
	for i := uint64(0); i < n; i++ {
		mh.AddItem(i, (i*7919)%n)
	}
	for i := uint64(0); i < n; i += 2 {
		mh.RemoveByKey(i)
	}

	last := uint64(0)
	for mh.Len() > 0 {
		it, _ := mh.PopMin()
		if it.Priority < last {
			t.Fatalf("Heap order violated: %d after %d", it.Priority, last)
		}
		last = it.Priority
	}
}
