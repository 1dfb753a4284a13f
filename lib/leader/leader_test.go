package leader

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/store/lstore"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(ids ...table.ServerID) table.ShardConfig {
	return table.ShardConfig{Replicas: table.NewServerSet(ids...)}
}

func at(ts uint64) table.Version {
	return table.Version{Branch: table.NilBranch, Timestamp: ts}
}

// racingStore lets another writer win the next swap of a table.
type racingStore struct {
	store.IStore
	mu   sync.Mutex
	race bool
}

func (r *racingStore) CompareAndSwap(tbl string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (store.Record, bool, error) {
	r.mu.Lock()
	race := r.race
	r.race = false
	r.mu.Unlock()
	if race {
		if _, _, err := r.IStore.CompareAndSwap(tbl, expectedEpoch, l2f, nil); err != nil {
			return store.Record{}, false, err
		}
	}
	return r.IStore.CompareAndSwap(tbl, expectedEpoch, l2f, newBranches)
}

func TestReconcileCreatesInitialRecord(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()
	require.NoError(t, l.SetConfig("users", cfg("C", "A", "B")))

	rec, changed, err := l.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(1), rec.Epoch)
	assert.True(t, rec.L2F.Voters.Equal(table.NewServerSet("A", "B", "C")))
	assert.Nil(t, rec.L2F.Primary)

	// nothing new was reported, so the next round keeps the record
	again, changed, err := l.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, uint64(1), again.Epoch)
}

func TestReconcileElectsAndRegistersBranch(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()
	require.NoError(t, l.SetConfig("users", cfg("A", "B", "C")))

	require.NoError(t, l.apply(Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary, Version: at(5)}))
	require.NoError(t, l.apply(Report{Table: "users", Server: "B", State: table.SecondaryNeedPrimary, Version: at(3)}))
	require.NoError(t, l.apply(Report{Table: "users", Server: "C", State: table.SecondaryNeedPrimary, Version: at(1)}))

	rec, changed, err := l.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, rec.L2F.Primary)
	assert.Equal(t, table.ServerID("A"), rec.L2F.Primary.Server)
	assert.False(t, rec.L2F.Branch.IsNil())

	cert, ok := rec.Branches[rec.L2F.Branch]
	require.True(t, ok, "minted branch must be registered")
	assert.Equal(t, at(5), cert.Origin)
	assert.Equal(t, uint64(5), cert.InitialTimestamp)
	assert.Equal(t, "users", cert.Region.Table)
}

func TestReconcileStaleEpoch(t *testing.T) {
	s := &racingStore{IStore: lstore.NewLocalStore()}
	l := New(s, Options{})
	defer l.Close()
	require.NoError(t, l.SetConfig("users", cfg("A", "B")))

	before := conflictsTotal.Get()
	s.race = true
	rec, changed, err := l.ReconcileOnce(context.Background(), "users")
	require.ErrorIs(t, err, ErrStaleL2F)
	assert.False(t, changed)
	assert.Equal(t, uint64(1), rec.Epoch, "the winner's record is returned")
	assert.Equal(t, before+1, conflictsTotal.Get())

	// the next round starts from the winner's record
	require.NoError(t, l.apply(Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary, Version: at(2)}))
	require.NoError(t, l.apply(Report{Table: "users", Server: "B", State: table.SecondaryNeedPrimary, Version: at(2)}))
	rec, changed, err = l.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(2), rec.Epoch)
	assert.NotNil(t, rec.L2F.Primary)
}

func TestReconcileWithoutConfig(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()

	_, _, err := l.ReconcileOnce(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNoConfig))

	// reports alone do not configure a table
	require.NoError(t, l.apply(Report{Table: "reported", Server: "A", State: table.SecondaryNeedPrimary}))
	_, _, err = l.ReconcileOnce(context.Background(), "reported")
	assert.True(t, errors.Is(err, ErrNoConfig))
	tables, err := l.Tables()
	require.NoError(t, err)
	assert.Empty(t, tables)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = l.ReconcileOnce(ctx, "missing")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetConfigValidation(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()

	tests := []struct {
		name    string
		table   string
		config  table.ShardConfig
		wantErr bool
	}{
		{name: "valid", table: "t", config: cfg("A", "B")},
		{name: "valid with primary", table: "t", config: table.ShardConfig{Replicas: table.NewServerSet("A", "B"), PrimaryReplica: "B"}},
		{name: "empty table", table: "", config: cfg("A"), wantErr: true},
		{name: "no replicas", table: "t", config: cfg(), wantErr: true},
		{name: "primary not a replica", table: "t", config: table.ShardConfig{Replicas: table.NewServerSet("A"), PrimaryReplica: "Z"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.SetConfig(tt.table, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTablesSorted(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()
	for _, name := range []string{"orders", "accounts", "users"} {
		require.NoError(t, l.SetConfig(name, cfg("A")))
	}
	tables, err := l.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "orders", "users"}, tables)
}

func TestRunConvergesFromReports(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{Interval: 5 * time.Millisecond})
	require.NoError(t, l.SetConfig("users", cfg("A", "B", "C")))

	before := reportsTotal.Get()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	for _, s := range []table.ServerID{"A", "B", "C"} {
		require.NoError(t, l.Report(Report{Table: "users", Server: s, State: table.SecondaryNeedPrimary, Version: at(4)}))
	}

	assert.Eventually(t, func() bool {
		rec, ok, err := l.Store().Get("users")
		return err == nil && ok && rec.HasL2F() && rec.L2F.Primary != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, reportsTotal.Get(), before+3)

	require.NoError(t, l.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.ErrorIs(t, l.Report(Report{Table: "users", Server: "A"}), ErrClosed)
	assert.NoError(t, l.Close())
}

func TestRunStopsOnContext(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{Interval: time.Hour})
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReportValidation(t *testing.T) {
	l := New(lstore.NewLocalStore(), Options{})
	defer l.Close()
	assert.Error(t, l.Report(Report{Server: "A"}))
	assert.Error(t, l.Report(Report{Table: "t"}))
}

func TestLeadersShareConfigAndReports(t *testing.T) {
	s := lstore.NewLocalStore()
	a := New(s, Options{})
	defer a.Close()
	b := New(s, Options{})
	defer b.Close()

	// config and reports land on different leaders
	require.NoError(t, a.SetConfig("users", cfg("A", "B", "C")))
	require.NoError(t, b.apply(Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary, Version: at(2)}))
	require.NoError(t, a.apply(Report{Table: "users", Server: "B", State: table.SecondaryNeedPrimary, Version: at(6)}))
	require.NoError(t, b.apply(Report{Table: "users", Server: "C", State: table.SecondaryNeedPrimary, Version: at(4)}))

	tables, err := b.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)

	rec, changed, err := b.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, rec.L2F.Primary)
	assert.Equal(t, table.ServerID("B"), rec.L2F.Primary.Server)

	// the replicas follow B; the other leader sees that and keeps the decision
	require.NoError(t, a.apply(Report{Table: "users", Server: "B", State: table.PrimaryRunning, Version: at(6)}))
	require.NoError(t, b.apply(Report{Table: "users", Server: "A", State: table.SecondaryStreaming, Version: at(6)}))
	require.NoError(t, a.apply(Report{Table: "users", Server: "C", State: table.SecondaryStreaming, Version: at(6)}))
	again, changed, err := a.ReconcileOnce(context.Background(), "users")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, rec.Epoch, again.Epoch)
}

func TestRunReconcilesOnlyOnLeader(t *testing.T) {
	s := lstore.NewLocalStore()
	var leading atomic.Bool
	l := New(s, Options{Interval: 5 * time.Millisecond, IsLeader: leading.Load})
	require.NoError(t, l.SetConfig("users", cfg("A")))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	require.NoError(t, l.Report(Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary, Version: at(1)}))

	// reports are stored on every node, rounds run only on the leader
	assert.Eventually(t, func() bool {
		rec, _, err := s.Get("users")
		return err == nil && rec.States["A"] == table.SecondaryNeedPrimary
	}, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		rec, _, _ := s.Get("users")
		return rec.HasL2F()
	}, 50*time.Millisecond, 5*time.Millisecond)

	leading.Store(true)
	assert.Eventually(t, func() bool {
		rec, _, err := s.Get("users")
		return err == nil && rec.HasL2F()
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, l.Close())
	assert.NoError(t, <-done)
}

func TestCloseReleasesQueuedReports(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		l := New(lstore.NewLocalStore(), Options{})
		require.NoError(t, l.Report(Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary}))
		require.NoError(t, l.Close())
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}
