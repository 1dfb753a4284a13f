package server

import (
	"context"
	"time"

	"github.com/ValentinKolb/dTab/lib/leader"
	"github.com/ValentinKolb/dTab/rpc/common"
)

// NewLeaderServerAdapter creates an adapter for a table leader. The caller
// runs l.Run; Close closes the leader.
func NewLeaderServerAdapter(l *leader.Leader, shardType common.ServerShardType, timeout time.Duration) IRPCServerAdapter {
	return &leaderServerAdapterImpl{leader: l, shardType: shardType, timeout: timeout}
}

type leaderServerAdapterImpl struct {
	leader    *leader.Leader
	shardType common.ServerShardType
	timeout   time.Duration
}

func (adapter *leaderServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if adapter.leader == nil {
		return common.NewErrorResponse("handler: leader is nil")
	}

	switch req.MsgType {
	case common.MsgTGetL2F:
		rec, ok, err := adapter.leader.Store().Get(req.Table)
		return common.NewGetL2FResponse(rec, ok && rec.HasL2F(), err)
	case common.MsgTReportF2L:
		if req.Report == nil {
			return common.NewErrorResponse("handler: report is missing")
		}
		return common.NewReportF2LResponse(adapter.leader.Report(*req.Report))
	case common.MsgTSetConfig:
		if req.Config == nil {
			return common.NewErrorResponse("handler: config is missing")
		}
		return common.NewSetConfigResponse(adapter.leader.SetConfig(req.Table, *req.Config))
	case common.MsgTReconcile:
		ctx, cancel := context.WithTimeout(context.Background(), adapter.timeout)
		defer cancel()
		rec, changed, err := adapter.leader.ReconcileOnce(ctx, req.Table)
		return common.NewReconcileResponse(rec, changed, err)
	case common.MsgTTables:
		tables, err := adapter.leader.Store().Tables()
		return common.NewTablesResponse(tables, err)
	case common.MsgTInfo:
		info, err := adapter.leader.Store().GetInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		return common.NewInfoResponse(&common.ShardInfo{Type: string(adapter.shardType), Store: &info}, nil)
	default:
		return common.NewErrorResponse("handler: unsupported message type for a leader shard: " + req.MsgType.String())
	}
}

func (adapter *leaderServerAdapterImpl) Close() error {
	return adapter.leader.Close()
}
