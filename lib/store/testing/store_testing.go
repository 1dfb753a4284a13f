package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
)

// StoreFactory creates a new, empty IStore for one sub-test.
type StoreFactory func() store.IStore

// RunStoreTests runs the conformance suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("GetUnknown", func(t *testing.T) {
			testGetUnknown(t, factory())
		})

		t.Run("CreateAndGet", func(t *testing.T) {
			testCreateAndGet(t, factory())
		})

		t.Run("EpochConflict", func(t *testing.T) {
			testEpochConflict(t, factory())
		})

		t.Run("BranchMerge", func(t *testing.T) {
			testBranchMerge(t, factory())
		})

		t.Run("Tables", func(t *testing.T) {
			testTables(t, factory())
		})

		t.Run("Isolation", func(t *testing.T) {
			testIsolation(t, factory())
		})

		t.Run("InvalidTable", func(t *testing.T) {
			testInvalidTable(t, factory())
		})

		t.Run("ConcurrentSwaps", func(t *testing.T) {
			testConcurrentSwaps(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("ConfigAndReports", func(t *testing.T) {
			testConfigAndReports(t, factory())
		})

		t.Run("InvalidConfigAndReport", func(t *testing.T) {
			testInvalidConfigAndReport(t, factory())
		})
	})
}

func config(ids ...table.ServerID) table.L2F {
	return table.InitialL2F(table.ShardConfig{Replicas: table.NewServerSet(ids...)})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testGetUnknown(t *testing.T, s store.IStore) {
	rec, ok, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok {
		t.Errorf("Get of unknown table reported loaded, record %+v", rec)
	}
	if rec.Epoch != 0 {
		t.Errorf("unknown table has epoch %d, want 0", rec.Epoch)
	}
}

func testCreateAndGet(t *testing.T, s store.IStore) {
	l2f := config("C", "A", "B")
	rec, ok, err := s.CompareAndSwap("users", 0, l2f, nil)
	if err != nil {
		t.Fatalf("CompareAndSwap returned error: %v", err)
	}
	if !ok {
		t.Fatalf("first CompareAndSwap with epoch 0 did not swap")
	}
	if rec.Epoch != 1 || rec.Table != "users" {
		t.Errorf("unexpected record after create: %+v", rec)
	}

	got, ok, err := s.Get("users")
	if err != nil || !ok {
		t.Fatalf("Get after create: ok=%v err=%v", ok, err)
	}
	if !got.L2F.Equal(l2f.Normalize()) {
		t.Errorf("stored l2f %s, want %s", got.L2F, l2f.Normalize())
	}
	if got.Epoch != 1 {
		t.Errorf("stored epoch %d, want 1", got.Epoch)
	}
}

func testEpochConflict(t *testing.T, s store.IStore) {
	first := config("A", "B")
	if _, ok, err := s.CompareAndSwap("t", 0, first, nil); err != nil || !ok {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}

	// a second writer that also read epoch 0 loses
	rec, ok, err := s.CompareAndSwap("t", 0, config("X"), nil)
	if err != nil {
		t.Fatalf("stale CompareAndSwap returned error: %v", err)
	}
	if ok {
		t.Fatalf("stale CompareAndSwap swapped")
	}
	if rec.Epoch != 1 || !rec.L2F.Equal(first) {
		t.Errorf("stale CompareAndSwap should return the current record, got %+v", rec)
	}

	second := config("A", "B", "C")
	rec, ok, err = s.CompareAndSwap("t", 1, second, nil)
	if err != nil || !ok {
		t.Fatalf("swap with current epoch: ok=%v err=%v", ok, err)
	}
	if rec.Epoch != 2 || !rec.L2F.Equal(second) {
		t.Errorf("unexpected record after second swap: %+v", rec)
	}
}

func testBranchMerge(t *testing.T, s store.IStore) {
	b1, b2 := table.NewBranchID(), table.NewBranchID()
	cert1 := table.BranchBirthCertificate{Origin: table.Version{Branch: table.NilBranch, Timestamp: 0}, InitialTimestamp: 0}
	cert2 := table.BranchBirthCertificate{Origin: table.Version{Branch: b1, Timestamp: 7}, InitialTimestamp: 7}

	if _, ok, err := s.CompareAndSwap("t", 0, config("A"), table.BranchHistory{b1: cert1}); err != nil || !ok {
		t.Fatalf("first swap: ok=%v err=%v", ok, err)
	}
	rec, ok, err := s.CompareAndSwap("t", 1, config("A"), table.BranchHistory{b2: cert2})
	if err != nil || !ok {
		t.Fatalf("second swap: ok=%v err=%v", ok, err)
	}
	if len(rec.Branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(rec.Branches))
	}
	if rec.Branches[b1] != cert1 || rec.Branches[b2] != cert2 {
		t.Errorf("branch history not merged: %+v", rec.Branches)
	}

	// a failed swap must not register branches
	b3 := table.NewBranchID()
	if _, ok, _ := s.CompareAndSwap("t", 1, config("A"), table.BranchHistory{b3: cert1}); ok {
		t.Fatalf("stale swap succeeded")
	}
	rec, _, _ = s.Get("t")
	if _, found := rec.Branches[b3]; found {
		t.Errorf("branch of a failed swap was registered")
	}
}

func testTables(t *testing.T, s store.IStore) {
	for _, name := range []string{"orders", "accounts", "users"} {
		if _, ok, err := s.CompareAndSwap(name, 0, config("A"), nil); err != nil || !ok {
			t.Fatalf("create %s: ok=%v err=%v", name, ok, err)
		}
	}
	tables, err := s.Tables()
	if err != nil {
		t.Fatalf("Tables returned error: %v", err)
	}
	want := []string{"accounts", "orders", "users"}
	if fmt.Sprint(tables) != fmt.Sprint(want) {
		t.Errorf("Tables() = %v, want %v", tables, want)
	}
}

func testIsolation(t *testing.T, s store.IStore) {
	b := table.NewBranchID()
	rec, _, err := s.CompareAndSwap("t", 0, config("A", "B"), table.BranchHistory{b: {}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.L2F.Replicas[0] = "Z"
	delete(rec.Branches, b)

	got, _, _ := s.Get("t")
	if got.L2F.Replicas[0] != "A" {
		t.Errorf("mutating a returned record changed the store: %s", got.L2F)
	}
	if _, ok := got.Branches[b]; !ok {
		t.Errorf("mutating returned branches changed the store")
	}
}

func testInvalidTable(t *testing.T, s store.IStore) {
	_, ok, err := s.CompareAndSwap("", 0, config("A"), nil)
	if err == nil || ok {
		t.Fatalf("expected an error for an empty table name, got ok=%v err=%v", ok, err)
	}
	var se *store.Error
	if !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
		t.Errorf("expected RetCInvalidOperation, got %v", err)
	}
}

func testConcurrentSwaps(t *testing.T, s store.IStore) {
	if _, ok, err := s.CompareAndSwap("t", 0, config("A"), nil); err != nil || !ok {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}

	const writers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := table.ServerID(fmt.Sprintf("S%02d", i))
			_, ok, err := s.CompareAndSwap("t", 1, config(id), nil)
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one writer to win epoch 1, got %d", wins.Load())
	}
	rec, _, _ := s.Get("t")
	if rec.Epoch != 2 {
		t.Errorf("epoch after concurrent swaps = %d, want 2", rec.Epoch)
	}
}

func testInfo(t *testing.T, s store.IStore) {
	for i := 0; i < 3; i++ {
		if _, ok, err := s.CompareAndSwap("t", uint64(i), config("A"), nil); err != nil || !ok {
			t.Fatalf("swap %d: ok=%v err=%v", i, ok, err)
		}
	}
	if _, ok, _ := s.CompareAndSwap("u", 0, config("A"), nil); !ok {
		t.Fatalf("create u failed")
	}

	info, err := s.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo returned error: %v", err)
	}
	if info.Tables != 2 {
		t.Errorf("info.Tables = %d, want 2", info.Tables)
	}
	if info.Swaps != 4 {
		t.Errorf("info.Swaps = %d, want 4", info.Swaps)
	}
	if info.Impl == "" {
		t.Errorf("info.Impl is empty")
	}
}

func testConfigAndReports(t *testing.T, s store.IStore) {
	rec, err := s.SetConfig("users", table.ShardConfig{Replicas: table.NewServerSet("C", "A", "B"), PrimaryReplica: "B"})
	if err != nil {
		t.Fatalf("SetConfig returned error: %v", err)
	}
	if rec.Config == nil || !rec.Config.Replicas.Equal(table.NewServerSet("A", "B", "C")) || rec.Config.PrimaryReplica != "B" {
		t.Fatalf("unexpected config after SetConfig: %+v", rec.Config)
	}

	// a configured table is known but has no l2f yet
	got, ok, err := s.Get("users")
	if err != nil || !ok {
		t.Fatalf("Get after SetConfig: ok=%v err=%v", ok, err)
	}
	if got.HasL2F() || got.Epoch != 0 {
		t.Errorf("SetConfig must not write an l2f, got epoch %d", got.Epoch)
	}

	v := table.Version{Branch: table.NewBranchID(), Timestamp: 12}
	if err := s.Report("users", "A", table.SecondaryNeedPrimary, v); err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if err := s.Report("users", "A", table.SecondaryStreaming, v); err != nil {
		t.Fatalf("Report returned error: %v", err)
	}

	// the first swap keeps config and reports
	if _, ok, err := s.CompareAndSwap("users", 0, config("A", "B", "C"), nil); err != nil || !ok {
		t.Fatalf("create after SetConfig: ok=%v err=%v", ok, err)
	}
	got, _, _ = s.Get("users")
	if got.Epoch != 1 || got.Config == nil {
		t.Fatalf("swap dropped the config: %+v", got)
	}
	if got.States["A"] != table.SecondaryStreaming || got.Versions["A"] != v {
		t.Errorf("last report of A not kept: state=%s version=%s", got.States["A"], got.Versions["A"])
	}

	// returned maps do not alias the store
	got.States["A"] = table.PrimaryRunning
	got.Config.PrimaryReplica = "Z"
	again, _, _ := s.Get("users")
	if again.States["A"] != table.SecondaryStreaming || again.Config.PrimaryReplica != "B" {
		t.Errorf("mutating a returned record changed the store")
	}

	// reports alone make a table known
	if err := s.Report("orders", "A", table.SecondaryNeedPrimary, table.Version{}); err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	orders, ok, _ := s.Get("orders")
	if !ok || orders.Config != nil || orders.HasL2F() {
		t.Errorf("unexpected record for a reported table: ok=%v %+v", ok, orders)
	}
}

func testInvalidConfigAndReport(t *testing.T, s store.IStore) {
	var se *store.Error
	if _, err := s.SetConfig("", table.ShardConfig{Replicas: table.NewServerSet("A")}); !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
		t.Errorf("SetConfig with empty table: expected RetCInvalidOperation, got %v", err)
	}
	if err := s.Report("t", "", table.SecondaryNeedPrimary, table.Version{}); !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
		t.Errorf("Report without server: expected RetCInvalidOperation, got %v", err)
	}
}
