// Package pebblestore implements blockstore.BlockStore on top of Pebble.
// Blocks are stored under their big-endian block id.
package pebblestore

import (
	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

type pebbleStore struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (blockstore.BlockStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebblestore: open %s", dir)
	}
	return &pebbleStore{db: db, path: dir}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see blockstore.BlockStore)
// --------------------------------------------------------------------------

func (s *pebbleStore) Get(id uint64) ([]byte, error) {
	val, closer, err := s.db.Get(blockstore.EncodeID(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(blockstore.ErrBlockNotFound, "block %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pebblestore: get block %d", id)
	}
	// val is only valid until the closer is closed
	data := append([]byte(nil), val...)
	closer.Close()
	return data, nil
}

func (s *pebbleStore) Put(id uint64, data []byte) error {
	if err := s.db.Set(blockstore.EncodeID(id), data, pebble.NoSync); err != nil {
		return errors.Wrapf(err, "pebblestore: put block %d", id)
	}
	return nil
}

func (s *pebbleStore) Sync() error {
	if err := s.db.Flush(); err != nil {
		return errors.Wrap(err, "pebblestore: flush")
	}
	return nil
}

func (s *pebbleStore) GetInfo() blockstore.Info {
	return blockstore.Info{
		Impl:      blockstore.ImplPebble,
		Path:      s.path,
		Blocks:    -1,
		SizeBytes: int64(s.db.Metrics().DiskSpaceUsage()),
	}
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}
