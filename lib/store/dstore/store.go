package dstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/store/dstore/internal"
	"github.com/ValentinKolb/dTab/lib/table"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the store.IStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store instance which uses raft consensus to ensure strict linearizability
// across multiple nodes.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// LeaderCheck returns a function that reports whether replicaID currently
// leads the RAFT group of shardID on nh.
func LeaderCheck(nh *dragonboat.NodeHost, shardID, replicaID uint64) func() bool {
	return func() bool {
		leaderID, _, valid, err := nh.GetLeaderID(shardID)
		return err == nil && valid && leaderID == replicaID
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and proposes it via SyncPropose.
// The result data of a successful command is returned.
func (s *storeImpl) write(cmd internal.Command) ([]byte, error) {
	data, err := cmd.Serialize()
	if err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, err.Error())
	}

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses SyncRead by default. If linearizability is not required,
// the stale parameter can be set to true to use the faster StaleRead function.
//
// If the read operation fails due to a system busy error, the function retries up to 5 times.
func read[R any](s *storeImpl, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		var (
			res interface{}
			err error
		)
		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(tbl string) (store.Record, bool, error) {
	res, err := read[internal.QueryResult](s, internal.Query{
		Type:  internal.QueryTGet,
		Table: tbl,
	}, false)
	if err != nil {
		return store.Record{}, false, err
	}
	return res.Record, res.Ok, nil
}

func (s *storeImpl) CompareAndSwap(tbl string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (store.Record, bool, error) {
	data, err := s.write(internal.Command{
		Type:          internal.CommandTCompareAndSwap,
		Table:         tbl,
		ExpectedEpoch: expectedEpoch,
		L2F:           l2f,
		Branches:      newBranches,
	})
	if err != nil {
		return store.Record{}, false, err
	}
	res, err := internal.DecodeCommandResult(data)
	if err != nil {
		return store.Record{}, false, store.NewError(store.RetCInternalError, err.Error())
	}
	return res.Record, res.Swapped, nil
}

func (s *storeImpl) SetConfig(tbl string, config table.ShardConfig) (store.Record, error) {
	data, err := s.write(internal.Command{
		Type:   internal.CommandTSetConfig,
		Table:  tbl,
		Config: &config,
	})
	if err != nil {
		return store.Record{}, err
	}
	res, err := internal.DecodeCommandResult(data)
	if err != nil {
		return store.Record{}, store.NewError(store.RetCInternalError, err.Error())
	}
	return res.Record, nil
}

func (s *storeImpl) Report(tbl string, server table.ServerID, state table.F2LState, version table.Version) error {
	_, err := s.write(internal.Command{
		Type:    internal.CommandTReport,
		Table:   tbl,
		Server:  server,
		State:   state,
		Version: version,
	})
	return err
}

func (s *storeImpl) Tables() ([]string, error) {
	return read[[]string](s, internal.Query{Type: internal.QueryTTables}, false)
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	return read[store.Info](
		s,
		internal.Query{Type: internal.QueryTGetInfo},
		true, // Note: allow for stale reads
	)
}
