package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/dTab/lib/blockstore/engines/memstore"
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/lib/btree/builder"
	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/pagecache"
	"github.com/ValentinKolb/dTab/lib/store/lstore"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopTransport never listens; the tests call the registered handler directly.
type nopTransport struct {
	handler transport.ServerHandleFunc
}

func (n *nopTransport) RegisterHandler(h transport.ServerHandleFunc) { n.handler = h }
func (n *nopTransport) Listen(common.ServerConfig) error             { return nil }
func (n *nopTransport) Shutdown() error                              { return nil }

func newTreeCache(t *testing.T, n int) *pagecache.Cache {
	t.Helper()
	b, err := builder.New(builder.Options{BlockSize: 1024, MaxPairsPerNode: 8})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, b.Add([]byte(fmt.Sprintf("k%03d", i)), []byte(fmt.Sprintf("v%d", i)), 0, 0))
	}
	cache := pagecache.New(memstore.NewMemStore(), 16)
	_, err = b.Build(cache)
	require.NoError(t, err)
	return cache
}

func newTestServer(t *testing.T) (*RPCServer, serializer.IRPCSerializer) {
	t.Helper()
	ser := serializer.NewMsgpackSerializer()
	s := NewRPCServer(common.ServerConfig{LogLevel: "error"}, &nopTransport{}, ser)

	require.NoError(t, s.AddShard(1, NewBTreeServerAdapter(newTreeCache(t, 100), time.Second)))
	l := leader.New(lstore.NewLocalStore(), leader.Options{})
	require.NoError(t, s.AddShard(2, NewLeaderServerAdapter(l, common.ShardTypeLocalLeader, time.Second)))
	t.Cleanup(func() { s.Close() })
	return s, ser
}

func call(t *testing.T, s *RPCServer, ser serializer.IRPCSerializer, shard uint64, req *common.Message) common.Message {
	t.Helper()
	data, err := ser.Serialize(*req)
	require.NoError(t, err)
	var resp common.Message
	require.NoError(t, ser.Deserialize(s.handle(shard, data), &resp))
	return resp
}

func TestBTreeShard(t *testing.T) {
	s, ser := newTestServer(t)

	resp := call(t, s, ser, 1, common.NewRangeGetRequest(btree.Open("k010"), btree.Closed("k013"), 0))
	require.Empty(t, resp.Err)
	require.Len(t, resp.Pairs, 3)
	assert.Equal(t, "k011", string(resp.Pairs[0].Key))
	assert.Equal(t, "v13", string(resp.Pairs[2].Value))

	resp = call(t, s, ser, 1, common.NewRangeGetRequest(btree.Unbounded(), btree.Unbounded(), 5))
	require.Empty(t, resp.Err)
	assert.Len(t, resp.Pairs, 5)

	resp = call(t, s, ser, 1, common.NewCountRequest(btree.Closed("k050"), btree.Unbounded()))
	require.Empty(t, resp.Err)
	assert.Equal(t, 50, resp.Count)

	resp = call(t, s, ser, 1, common.NewInfoRequest())
	require.Empty(t, resp.Err)
	require.NotNil(t, resp.Info)
	require.NotNil(t, resp.Info.Cache)
	assert.Equal(t, int64(0), resp.Info.Cache.HeldLocks, "requests must not leak page locks")
	assert.Equal(t, "btree", resp.Info.Type)

	resp = call(t, s, ser, 1, common.NewGetL2FRequest("users"))
	assert.Equal(t, common.MsgTError, resp.MsgType)
}

func TestLeaderShard(t *testing.T) {
	s, ser := newTestServer(t)

	cfg := table.ShardConfig{Replicas: table.NewServerSet("A", "B", "C")}
	resp := call(t, s, ser, 2, common.NewSetConfigRequest("users", cfg))
	require.Empty(t, resp.Err)

	resp = call(t, s, ser, 2, common.NewGetL2FRequest("users"))
	require.Empty(t, resp.Err)
	assert.False(t, resp.Ok)

	resp = call(t, s, ser, 2, common.NewReconcileRequest("users"))
	require.Empty(t, resp.Err)
	assert.True(t, resp.Ok)
	require.NotNil(t, resp.Record)
	assert.Equal(t, uint64(1), resp.Record.Epoch)

	resp = call(t, s, ser, 2, common.NewGetL2FRequest("users"))
	require.Empty(t, resp.Err)
	require.True(t, resp.Ok)
	assert.True(t, resp.Record.L2F.Voters.Equal(cfg.Replicas))

	resp = call(t, s, ser, 2, common.NewReportF2LRequest(leader.Report{Table: "users", Server: "A", State: table.SecondaryNeedPrimary}))
	assert.Empty(t, resp.Err)

	resp = call(t, s, ser, 2, common.NewTablesRequest())
	require.Empty(t, resp.Err)
	assert.Equal(t, []string{"users"}, resp.Tables)

	resp = call(t, s, ser, 2, common.NewInfoRequest())
	require.Empty(t, resp.Err)
	require.NotNil(t, resp.Info.Store)
	assert.Equal(t, 1, resp.Info.Store.Tables)

	resp = call(t, s, ser, 2, common.NewReconcileRequest("unknown"))
	assert.NotEmpty(t, resp.Err)

	resp = call(t, s, ser, 2, &common.Message{MsgType: common.MsgTReportF2L})
	assert.Equal(t, common.MsgTError, resp.MsgType)
}

func TestUnknownShardAndGarbage(t *testing.T) {
	s, ser := newTestServer(t)

	resp := call(t, s, ser, 99, common.NewTablesRequest())
	assert.Equal(t, common.MsgTError, resp.MsgType)
	assert.Contains(t, resp.Err, "not found")

	var msg common.Message
	require.NoError(t, ser.Deserialize(s.handle(1, []byte{0xc1}), &msg))
	assert.Equal(t, common.MsgTError, msg.MsgType)

	assert.Error(t, s.AddShard(1, NewBTreeServerAdapter(newTreeCache(t, 1), time.Second)))
}

func TestInitRejectsBadShards(t *testing.T) {
	tests := []struct {
		name  string
		shard common.ServerShard
	}{
		{"unknown type", common.ServerShard{ShardID: 1, Type: "nope"}},
		{"unknown engine", common.ServerShard{ShardID: 1, Type: common.ShardTypeBTree, Engine: "floppy"}},
		{"pebble without path", common.ServerShard{ShardID: 1, Type: common.ShardTypeBTree, Engine: "pebble"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRPCServer(common.ServerConfig{Shards: []common.ServerShard{tt.shard}, LogLevel: "error"}, &nopTransport{}, serializer.NewJSONSerializer())
			assert.Error(t, s.Serve())
		})
	}
}

func TestInitLocalShards(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: 1, Type: common.ShardTypeBTree, Engine: "mem"},
			{ShardID: 2, Type: common.ShardTypeLocalLeader},
		},
		LogLevel:            "error",
		ReconcileIntervalMs: 10,
	}, &nopTransport{}, serializer.NewJSONSerializer())
	require.NoError(t, s.Serve())
	assert.Equal(t, 2, s.shards.Size())
	assert.NoError(t, s.Close())
}
