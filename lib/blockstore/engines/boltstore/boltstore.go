// Package boltstore implements blockstore.BlockStore on top of bbolt.
// All blocks live in the bucket "blocks", keyed by their big-endian block id.
package boltstore

import (
	"os"

	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketBlocks = []byte("blocks")

type boltStore struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) a bbolt file at path.
func Open(path string) (blockstore.BlockStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "boltstore: open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "boltstore: create bucket")
	}
	return &boltStore{db: db, path: path}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see blockstore.BlockStore)
// --------------------------------------------------------------------------

func (s *boltStore) Get(id uint64) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(blockstore.EncodeID(id))
		if v == nil {
			return errors.Wrapf(blockstore.ErrBlockNotFound, "block %d", id)
		}
		// v is only valid for the lifetime of the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *boltStore) Put(id uint64, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(blockstore.EncodeID(id), data)
	})
	if err != nil {
		return errors.Wrapf(err, "boltstore: put block %d", id)
	}
	return nil
}

// Sync is a no-op: every bbolt Update commits durably.
func (s *boltStore) Sync() error { return nil }

func (s *boltStore) GetInfo() blockstore.Info {
	info := blockstore.Info{Impl: blockstore.ImplBolt, Path: s.path, Blocks: -1}
	_ = s.db.View(func(tx *bolt.Tx) error {
		info.Blocks = int64(tx.Bucket(bucketBlocks).Stats().KeyN)
		return nil
	})
	if st, err := os.Stat(s.path); err == nil {
		info.SizeBytes = st.Size()
	}
	return info
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
