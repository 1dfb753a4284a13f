// Package memstore implements blockstore.BlockStore in memory.
package memstore

import (
	"sync/atomic"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type memStore struct {
	blocks *xsync.MapOf[uint64, []byte]
	size   atomic.Int64
	closed atomic.Bool
}

// NewMemStore creates an empty in-memory block store.
func NewMemStore() blockstore.BlockStore {
	return &memStore{blocks: xsync.NewMapOf[uint64, []byte]()}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see blockstore.BlockStore)
// --------------------------------------------------------------------------

func (s *memStore) Get(id uint64) ([]byte, error) {
	if s.closed.Load() {
		return nil, errors.New("memstore: closed")
	}
	data, ok := s.blocks.Load(id)
	if !ok {
		return nil, errors.Wrapf(blockstore.ErrBlockNotFound, "block %d", id)
	}
	return append([]byte(nil), data...), nil
}

func (s *memStore) Put(id uint64, data []byte) error {
	if s.closed.Load() {
		return errors.New("memstore: closed")
	}
	cp := append([]byte(nil), data...)
	old, loaded := s.blocks.LoadAndStore(id, cp)
	if loaded {
		s.size.Add(-int64(len(old)))
	}
	s.size.Add(int64(len(cp)))
	return nil
}

func (s *memStore) Sync() error { return nil }

func (s *memStore) GetInfo() blockstore.Info {
	return blockstore.Info{
		Impl:      blockstore.ImplMem,
		Blocks:    int64(s.blocks.Size()),
		SizeBytes: s.size.Load(),
	}
}

func (s *memStore) Close() error {
	s.closed.Store(true)
	s.blocks.Clear()
	return nil
}
