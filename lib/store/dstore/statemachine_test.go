package dstore

import (
	"bytes"
	"sync"
	"testing"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/store/dstore/internal"
	storetesting "github.com/ValentinKolb/dTab/lib/store/testing"
	"github.com/ValentinKolb/dTab/lib/table"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localShard drives a state machine the way a single replica shard would:
// commands are serialized, applied one batch at a time and results decoded.
type localShard struct {
	mu    sync.Mutex
	fsm   sm.IConcurrentStateMachine
	index uint64
}

func newLocalShard() store.IStore {
	return &localShard{fsm: CreateStateMachineFactory()(1, 1)}
}

func (l *localShard) propose(cmd internal.Command) (sm.Result, error) {
	data, err := cmd.Serialize()
	if err != nil {
		return sm.Result{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index++
	entries, err := l.fsm.Update([]sm.Entry{{Index: l.index, Cmd: data}})
	if err != nil {
		return sm.Result{}, err
	}
	return entries[0].Result, nil
}

func (l *localShard) Get(tbl string) (store.Record, bool, error) {
	res, err := l.fsm.Lookup(internal.Query{Type: internal.QueryTGet, Table: tbl})
	if err != nil {
		return store.Record{}, false, err
	}
	qr := res.(internal.QueryResult)
	return qr.Record, qr.Ok, nil
}

func (l *localShard) CompareAndSwap(tbl string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (store.Record, bool, error) {
	res, err := l.propose(internal.Command{
		Type:          internal.CommandTCompareAndSwap,
		Table:         tbl,
		ExpectedEpoch: expectedEpoch,
		L2F:           l2f,
		Branches:      newBranches,
	})
	if err != nil {
		return store.Record{}, false, err
	}
	if res.Value != uint64(store.RetCSuccess) {
		return store.Record{}, false, store.NewError(store.RetCode(res.Value), string(res.Data))
	}
	out, err := internal.DecodeCommandResult(res.Data)
	if err != nil {
		return store.Record{}, false, err
	}
	return out.Record, out.Swapped, nil
}

func (l *localShard) SetConfig(tbl string, config table.ShardConfig) (store.Record, error) {
	res, err := l.propose(internal.Command{Type: internal.CommandTSetConfig, Table: tbl, Config: &config})
	if err != nil {
		return store.Record{}, err
	}
	if res.Value != uint64(store.RetCSuccess) {
		return store.Record{}, store.NewError(store.RetCode(res.Value), string(res.Data))
	}
	out, err := internal.DecodeCommandResult(res.Data)
	if err != nil {
		return store.Record{}, err
	}
	return out.Record, nil
}

func (l *localShard) Report(tbl string, server table.ServerID, state table.F2LState, version table.Version) error {
	res, err := l.propose(internal.Command{
		Type:    internal.CommandTReport,
		Table:   tbl,
		Server:  server,
		State:   state,
		Version: version,
	})
	if err != nil {
		return err
	}
	if res.Value != uint64(store.RetCSuccess) {
		return store.NewError(store.RetCode(res.Value), string(res.Data))
	}
	return nil
}

func (l *localShard) Tables() ([]string, error) {
	res, err := l.fsm.Lookup(internal.Query{Type: internal.QueryTTables})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

func (l *localShard) GetInfo() (store.Info, error) {
	res, err := l.fsm.Lookup(internal.Query{Type: internal.QueryTGetInfo})
	if err != nil {
		return store.Info{}, err
	}
	return res.(store.Info), nil
}

func TestStateMachineStore(t *testing.T) {
	storetesting.RunStoreTests(t, "dstore-statemachine", newLocalShard)
}

func TestUpdateInvalidEntries(t *testing.T) {
	fsm := CreateStateMachineFactory()(1, 1)

	unknown, err := (&internal.Command{Type: internal.CommandType(99), Table: "t"}).Serialize()
	require.NoError(t, err)

	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2, 3}},
		{Index: 3, Cmd: unknown},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[0].Result.Value)
	assert.Equal(t, uint64(store.RetCInternalError), entries[1].Result.Value)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[2].Result.Value)

	tables, err := fsm.Lookup(internal.Query{Type: internal.QueryTTables})
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestLookupInvalidQuery(t *testing.T) {
	fsm := CreateStateMachineFactory()(1, 1)

	_, err := fsm.Lookup("not a query")
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.RetCInternalError, se.Code)

	_, err = fsm.Lookup(internal.Query{Type: internal.QueryType(42)})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.RetCInvalidOperation, se.Code)
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := newLocalShard()
	b := table.NewBranchID()
	cert := table.BranchBirthCertificate{Origin: table.Version{Branch: table.NilBranch}, InitialTimestamp: 1}

	_, ok, err := src.CompareAndSwap("users", 0, table.InitialL2F(table.ShardConfig{Replicas: table.NewServerSet("A", "B")}), table.BranchHistory{b: cert})
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = src.CompareAndSwap("orders", 0, table.InitialL2F(table.ShardConfig{Replicas: table.NewServerSet("C")}), nil)
	require.NoError(t, err)
	require.True(t, ok)

	var buf bytes.Buffer
	srcFSM := src.(*localShard).fsm
	snap, err := srcFSM.PrepareSnapshot()
	require.NoError(t, err)
	require.NoError(t, srcFSM.SaveSnapshot(snap, &buf, nil, nil))

	dst := newLocalShard()
	dstFSM := dst.(*localShard).fsm
	require.NoError(t, dstFSM.RecoverFromSnapshot(bytes.NewReader(buf.Bytes()), nil, nil))

	tables, err := dst.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	rec, ok, err := dst.Get("users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Epoch)
	assert.Equal(t, cert, rec.Branches[b])
	assert.True(t, rec.L2F.Replicas.Equal(table.NewServerSet("A", "B")))

	info, err := dst.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Tables)
	assert.Equal(t, uint64(2), info.Swaps)

	// the recovered register continues at the restored epoch
	_, ok, err = dst.CompareAndSwap("users", 1, rec.L2F, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, dstFSM.RecoverFromSnapshot(bytes.NewReader([]byte{0xc1}), nil, nil))
	assert.Error(t, srcFSM.SaveSnapshot(nil, &buf, nil, nil))
}

func TestSnapshotIsPointInTime(t *testing.T) {
	src := newLocalShard()
	srcFSM := src.(*localShard).fsm
	users := table.InitialL2F(table.ShardConfig{Replicas: table.NewServerSet("A", "B")})

	_, ok, err := src.CompareAndSwap("users", 0, users, nil)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = src.SetConfig("users", table.ShardConfig{Replicas: table.NewServerSet("A", "B")})
	require.NoError(t, err)
	require.NoError(t, src.Report("users", "A", table.SecondaryNeedPrimary, table.Version{Timestamp: 3}))

	snap, err := srcFSM.PrepareSnapshot()
	require.NoError(t, err)

	// updates applied between prepare and save stay out of the snapshot
	_, ok, err = src.CompareAndSwap("users", 1, users, nil)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = src.CompareAndSwap("orders", 0, users, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, src.Report("users", "B", table.SecondaryStreaming, table.Version{Timestamp: 9}))

	var buf bytes.Buffer
	require.NoError(t, srcFSM.SaveSnapshot(snap, &buf, nil, nil))

	dst := newLocalShard()
	require.NoError(t, dst.(*localShard).fsm.RecoverFromSnapshot(bytes.NewReader(buf.Bytes()), nil, nil))

	tables, err := dst.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)

	rec, ok, err := dst.Get("users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Epoch)
	require.NotNil(t, rec.Config)
	assert.True(t, rec.Config.Replicas.Equal(table.NewServerSet("A", "B")))
	assert.Equal(t, map[table.ServerID]table.F2LState{"A": table.SecondaryNeedPrimary}, rec.States)
	assert.Equal(t, uint64(3), rec.Versions["A"].Timestamp)

	info, err := dst.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Swaps)
}

func TestUpdateSetConfigWithoutConfig(t *testing.T) {
	fsm := CreateStateMachineFactory()(1, 1)

	data, err := (&internal.Command{Type: internal.CommandTSetConfig, Table: "t"}).Serialize()
	require.NoError(t, err)
	entries, err := fsm.Update([]sm.Entry{{Index: 1, Cmd: data}})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[0].Result.Value)
}
