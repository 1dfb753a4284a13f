package client

import (
	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/ValentinKolb/dTab/rpc/common"
	"github.com/ValentinKolb/dTab/rpc/serializer"
	"github.com/ValentinKolb/dTab/rpc/transport"
)

// NewRPCLeader creates a client for a leader shard.
// The transport is connected before the client is returned.
func NewRPCLeader(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCLeader, error) {
	adapter, err := newClientAdapter(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &RPCLeader{adapter}, nil
}

// RPCLeader talks to a remote table leader.
type RPCLeader struct {
	rpcClientAdapter
}

// GetL2F returns the current record of a table. ok is false if the leader
// has not published an L2F for it yet.
func (c *RPCLeader) GetL2F(tbl string) (rec store.Record, ok bool, err error) {
	resp, err := c.invoke(common.NewGetL2FRequest(tbl))
	if err != nil {
		return store.Record{}, false, err
	}
	if !resp.Ok || resp.Record == nil {
		return store.Record{}, false, nil
	}
	return *resp.Record, true, nil
}

// Report sends the state of a follower to the leader.
func (c *RPCLeader) Report(r leader.Report) error {
	_, err := c.invoke(common.NewReportF2LRequest(r))
	return err
}

// SetConfig sets the desired replicas of a table.
func (c *RPCLeader) SetConfig(tbl string, config table.ShardConfig) error {
	_, err := c.invoke(common.NewSetConfigRequest(tbl, config))
	return err
}

// Reconcile runs one reconcile round for a table and returns the resulting
// record. changed is true if a new L2F was stored.
func (c *RPCLeader) Reconcile(tbl string) (rec store.Record, changed bool, err error) {
	resp, err := c.invoke(common.NewReconcileRequest(tbl))
	if err != nil {
		return store.Record{}, false, err
	}
	if resp.Record != nil {
		rec = *resp.Record
	}
	return rec, resp.Ok, nil
}

// Tables returns the names of all tables the leader knows (configured, reported or with an L2F).
func (c *RPCLeader) Tables() ([]string, error) {
	resp, err := c.invoke(common.NewTablesRequest())
	if err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// Info returns the state of the register behind the leader.
func (c *RPCLeader) Info() (common.ShardInfo, error) {
	return shardInfo(&c.rpcClientAdapter)
}
