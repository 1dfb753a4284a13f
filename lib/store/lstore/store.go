package lstore

import (
	"github.com/ValentinKolb/dTab/lib/store"
	"github.com/ValentinKolb/dTab/lib/table"
)

type storeImpl struct {
	reg *store.Register
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
func NewLocalStore() store.IStore {
	return &storeImpl{reg: store.NewRegister()}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(tbl string) (store.Record, bool, error) {
	rec, ok := s.reg.Get(tbl)
	return rec, ok, nil
}

func (s *storeImpl) CompareAndSwap(tbl string, expectedEpoch uint64, l2f table.L2F, newBranches table.BranchHistory) (store.Record, bool, error) {
	rec, ok, err := s.reg.CompareAndSwap(tbl, expectedEpoch, l2f, newBranches)
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, ok, nil
}

func (s *storeImpl) SetConfig(tbl string, config table.ShardConfig) (store.Record, error) {
	return s.reg.SetConfig(tbl, config)
}

func (s *storeImpl) Report(tbl string, server table.ServerID, state table.F2LState, version table.Version) error {
	return s.reg.Report(tbl, server, state, version)
}

func (s *storeImpl) Tables() ([]string, error) {
	return s.reg.Tables(), nil
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	return s.reg.Info("lstore"), nil
}
