package client

import (
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
	"github.com/cockroachdb/errors"
)

// NewRPCTable creates a client for a btree shard.
// The transport is connected before the client is returned.
func NewRPCTable(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCTable, error) {
	adapter, err := newClientAdapter(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &RPCTable{adapter}, nil
}

// RPCTable reads a remote btree shard.
type RPCTable struct {
	rpcClientAdapter
}

// RangeGet returns the pairs between left and right in key order.
// A limit <= 0 means no limit.
func (c *RPCTable) RangeGet(left, right btree.Bound, limit int) ([]btree.Pair, error) {
	resp, err := c.invoke(common.NewRangeGetRequest(left, right, limit))
	if err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// Count returns the number of live pairs between left and right.
func (c *RPCTable) Count(left, right btree.Bound) (int, error) {
	resp, err := c.invoke(common.NewCountRequest(left, right))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Info returns the cache and block store state of the shard.
func (c *RPCTable) Info() (common.ShardInfo, error) {
	return shardInfo(&c.rpcClientAdapter)
}

func shardInfo(a *rpcClientAdapter) (common.ShardInfo, error) {
	resp, err := a.invoke(common.NewInfoRequest())
	if err != nil {
		return common.ShardInfo{}, err
	}
	if resp.Info == nil {
		return common.ShardInfo{}, errors.New("info response without info")
	}
	return *resp.Info, nil
}
