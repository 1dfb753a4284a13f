package server

import (
	"context"
	"time"

	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/lib/pagecache"
	"github.com/ValentinKolb/dTab/rpc/common"
)

// NewBTreeServerAdapter creates an adapter that serves range reads of the
// tree stored in cache. timeout bounds every request.
func NewBTreeServerAdapter(cache *pagecache.Cache, timeout time.Duration) IRPCServerAdapter {
	return &bTreeServerAdapterImpl{cache: cache, timeout: timeout}
}

type bTreeServerAdapterImpl struct {
	cache   *pagecache.Cache
	timeout time.Duration
}

func (adapter *bTreeServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if adapter.cache == nil {
		return common.NewErrorResponse("handler: page cache is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), adapter.timeout)
	defer cancel()

	switch req.MsgType {
	case common.MsgTRangeGet:
		pairs, err := btree.RangeGet(ctx, adapter.cache.Begin(), req.Left, req.Right, req.Limit)
		return common.NewRangeGetResponse(pairs, err)
	case common.MsgTCount:
		it := btree.NewSliceKeysIterator(adapter.cache.Begin(), req.Left, req.Right, time.Now())
		n, err := btree.Count(ctx, it)
		return common.NewCountResponse(n, err)
	case common.MsgTInfo:
		stats := adapter.cache.Stats()
		info := adapter.cache.Store().GetInfo()
		return common.NewInfoResponse(&common.ShardInfo{
			Type:       string(common.ShardTypeBTree),
			Cache:      &stats,
			BlockStore: &info,
		}, nil)
	default:
		return common.NewErrorResponse("handler: unsupported message type for a btree shard: " + req.MsgType.String())
	}
}

func (adapter *bTreeServerAdapterImpl) Close() error {
	return adapter.cache.Close()
}
