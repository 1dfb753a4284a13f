package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/cockroachdb/errors"
)

// StoreFactory creates a new, empty BlockStore for one sub-test.
type StoreFactory func(t *testing.T) blockstore.BlockStore

// RunBlockStoreTests runs the conformance suite for a BlockStore implementation.
func RunBlockStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("NotFound", func(t *testing.T) {
			testNotFound(t, factory(t))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, factory(t))
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, factory(t))
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})
	})
}

func block(id uint64, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(id + uint64(i))
	}
	return b
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	for id := uint64(0); id < 16; id++ {
		if err := s.Put(id, block(id, 512)); err != nil {
			t.Fatalf("Put(%d) failed: %v", id, err)
		}
	}
	if err := s.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	for id := uint64(0); id < 16; id++ {
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", id, err)
		}
		if !bytes.Equal(got, block(id, 512)) {
			t.Errorf("Get(%d) returned wrong data", id)
		}
	}
}

func testNotFound(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	_, err := s.Get(42)
	if !errors.Is(err, blockstore.ErrBlockNotFound) {
		t.Errorf("Expected ErrBlockNotFound for a missing block, got %v", err)
	}
}

func testOverwrite(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	if err := s.Put(1, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(1, []byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("Expected overwritten value %q, got %q", "second", got)
	}
}

func testCopySemantics(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	data := []byte("immutable")
	if err := s.Put(7, data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'

	got, err := s.Get(7)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "immutable" {
		t.Errorf("Store must not alias the slice passed to Put, got %q", got)
	}
	got[0] = 'Y'

	again, _ := s.Get(7)
	if string(again) != "immutable" {
		t.Errorf("Store must not alias the slice returned by Get, got %q", again)
	}
}

func testConcurrentAccess(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := uint64(w*perWorker + i)
				if err := s.Put(id, block(id, 64)); err != nil {
					errs <- err
					return
				}
				got, err := s.Get(id)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, block(id, 64)) {
					errs <- fmt.Errorf("block %d: read back wrong data", id)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func testInfo(t *testing.T, s blockstore.BlockStore) {
	defer s.Close()

	for id := uint64(0); id < 3; id++ {
		if err := s.Put(id, block(id, 128)); err != nil {
			t.Fatal(err)
		}
	}
	info := s.GetInfo()
	if info.Impl == "" {
		t.Error("Info must name the implementation")
	}
	if info.Blocks != -1 && info.Blocks != 3 {
		t.Errorf("Expected 3 blocks (or -1 for unknown), got %d", info.Blocks)
	}
}
