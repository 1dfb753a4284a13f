package btree

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Blocks and the transaction collaborator
// --------------------------------------------------------------------------

// BlockID identifies a fixed-size block. Block ids are opaque to the iterators.
type BlockID uint64

const (
	// SuperblockID is the reserved block holding the superblock.
	SuperblockID BlockID = 0

	// NoBlock marks an absent block reference (e.g. an empty tree has no root).
	NoBlock BlockID = 0

	// DefaultBlockSize is the block size used when none is configured.
	DefaultBlockSize = 4096

	// MinBlockSize is the smallest block size a tree can be built with.
	MinBlockSize = 1024
)

// BufLock is a read-locked page. The data is only valid until Release is called.
// Release must be idempotent.
type BufLock interface {
	// Data returns the page contents. Callers must not modify it.
	Data() []byte
	// Release gives up the read lock.
	Release()
}

// Transaction provides scoped read access to blocks.
// AcquireRead may block while waiting for I/O or lock contention.
type Transaction interface {
	AcquireRead(ctx context.Context, id BlockID) (BufLock, error)
}

// --------------------------------------------------------------------------
// Superblock
// --------------------------------------------------------------------------

const (
	superMagic = "DTABSB01"

	offSuperMagic     = 0
	offSuperBlockSize = 8
	offSuperRoot      = 12
	offSuperNextFree  = 20
	offSuperPairs     = 28
	offSuperHeight    = 36
	superSize         = 38
)

// Superblock is the content of block 0.
type Superblock struct {
	BlockSize uint32  // size of every block in bytes
	Root      BlockID // root node, NoBlock if the tree is empty
	NextFree  BlockID // first unused block id
	Pairs     uint64  // number of leaf pairs in the tree
	Height    uint16  // number of node levels (0 for an empty tree)
}

// Encode writes the superblock into a block of the configured size.
func (s Superblock) Encode() []byte {
	buf := make([]byte, s.BlockSize)
	copy(buf[offSuperMagic:], superMagic)
	binary.LittleEndian.PutUint32(buf[offSuperBlockSize:], s.BlockSize)
	binary.LittleEndian.PutUint64(buf[offSuperRoot:], uint64(s.Root))
	binary.LittleEndian.PutUint64(buf[offSuperNextFree:], uint64(s.NextFree))
	binary.LittleEndian.PutUint64(buf[offSuperPairs:], s.Pairs)
	binary.LittleEndian.PutUint16(buf[offSuperHeight:], s.Height)
	return buf
}

// DecodeSuperblock parses block 0.
func DecodeSuperblock(data []byte) (Superblock, error) {
	if len(data) < superSize {
		return Superblock{}, errors.Newf("superblock too short: %d bytes", len(data))
	}
	if string(data[offSuperMagic:offSuperMagic+len(superMagic)]) != superMagic {
		return Superblock{}, errors.New("invalid superblock: magic number mismatch")
	}
	return Superblock{
		BlockSize: binary.LittleEndian.Uint32(data[offSuperBlockSize:]),
		Root:      BlockID(binary.LittleEndian.Uint64(data[offSuperRoot:])),
		NextFree:  BlockID(binary.LittleEndian.Uint64(data[offSuperNextFree:])),
		Pairs:     binary.LittleEndian.Uint64(data[offSuperPairs:]),
		Height:    binary.LittleEndian.Uint16(data[offSuperHeight:]),
	}, nil
}

// ReadSuperblock acquires block 0, decodes it and releases the lock again.
func ReadSuperblock(ctx context.Context, txn Transaction) (Superblock, error) {
	lock, err := txn.AcquireRead(ctx, SuperblockID)
	if err != nil {
		return Superblock{}, errors.Wrap(err, "acquire superblock")
	}
	defer lock.Release()
	return DecodeSuperblock(lock.Data())
}
