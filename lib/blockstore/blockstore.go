package blockstore

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMem    Implementation = "mem"
	ImplPebble Implementation = "pebble"
	ImplBolt   Implementation = "bolt"
)

// ParseImplementation validates a backend name.
func ParseImplementation(s string) (Implementation, error) {
	switch Implementation(s) {
	case ImplMem, ImplPebble, ImplBolt:
		return Implementation(s), nil
	default:
		return "", errors.Newf("unknown block store %q (expected mem, pebble or bolt)", s)
	}
}

// ErrBlockNotFound is returned by Get for a block that was never written.
var ErrBlockNotFound = errors.New("block not found")

// Info describes the state of a block store.
type Info struct {
	Impl      Implementation `json:"impl"`
	Path      string         `json:"path,omitempty"`
	Blocks    int64          `json:"blocks"`     // -1 if the backend cannot count cheaply
	SizeBytes int64          `json:"size_bytes"` // estimated
}

// --------------------------------------------------------------------------
// BlockStore Interface
// --------------------------------------------------------------------------

// BlockStore persists fixed-size pages addressed by a 64-bit block id.
// Implementations must be safe for concurrent use.
type BlockStore interface {

	// Get returns a copy of the block. It returns ErrBlockNotFound
	// (checked with errors.Is) if the block was never written.
	Get(id uint64) ([]byte, error)

	// Put writes (or overwrites) a block.
	Put(id uint64, data []byte) error

	// Sync makes all previous writes durable.
	Sync() error

	// GetInfo returns information about the store.
	GetInfo() Info

	// Close closes the store. No other method may be called afterwards.
	Close() error
}

// EncodeID returns the big-endian form of id, so that the byte order of
// encoded ids matches their numeric order in ordered backends.
func EncodeID(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}
