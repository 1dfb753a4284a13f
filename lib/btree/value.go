package btree

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Value encoding
// --------------------------------------------------------------------------
//
//	meta    u8   bit0: has expiration time, bit1: large value
//	flags   u32  opaque client flags
//	exptime u32  unix seconds (only if bit0 is set)
//	size    u32  value size in bytes
//	inline: size bytes of data
//	large:  nblocks u16 | nblocks * u64 block ids, each block holds blockSize bytes of data

const (
	valueMetaHasExpTime = byte(1 << 0)
	valueMetaLarge      = byte(1 << 1)

	// MaxLargeBlocks bounds the number of data blocks a single value may reference.
	MaxLargeBlocks = 1<<16 - 1
)

// Value describes a value as stored in a leaf.
type Value struct {
	Flags   uint32    // opaque client flags
	ExpTime uint32    // expiration in unix seconds (0 = never expires)
	Size    uint32    // total value size
	Inline  []byte    // the data, if it is stored inside the leaf
	Large   []BlockID // the data blocks, if the value is too large to inline
}

// IsLarge reports whether the value data lives in separate blocks.
func (v Value) IsLarge() bool { return v.Large != nil }

// Expired reports whether the value is expired at now.
func (v Value) Expired(now time.Time) bool {
	return v.ExpTime != 0 && int64(v.ExpTime) <= now.Unix()
}

func (v Value) meta() byte {
	var m byte
	if v.ExpTime != 0 {
		m |= valueMetaHasExpTime
	}
	if v.IsLarge() {
		m |= valueMetaLarge
	}
	return m
}

func (v Value) encodedSize() int {
	size := 1 + 4 + 4
	if v.ExpTime != 0 {
		size += 4
	}
	if v.IsLarge() {
		size += 2 + 8*len(v.Large)
	} else {
		size += len(v.Inline)
	}
	return size
}

func (v Value) encodeTo(buf []byte) {
	buf[0] = v.meta()
	binary.LittleEndian.PutUint32(buf[1:], v.Flags)
	pos := 5
	if v.ExpTime != 0 {
		binary.LittleEndian.PutUint32(buf[pos:], v.ExpTime)
		pos += 4
	}
	if v.IsLarge() {
		binary.LittleEndian.PutUint32(buf[pos:], v.Size)
		pos += 4
		binary.LittleEndian.PutUint16(buf[pos:], uint16(len(v.Large)))
		pos += 2
		for _, id := range v.Large {
			binary.LittleEndian.PutUint64(buf[pos:], uint64(id))
			pos += 8
		}
		return
	}
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(v.Inline)))
	pos += 4
	copy(buf[pos:], v.Inline)
}

// valueSize returns the encoded size of the value starting at data[0].
func valueSize(data []byte) (int, error) {
	if len(data) < 9 {
		return 0, errors.New("value header truncated")
	}
	meta := data[0]
	pos := 5
	if meta&valueMetaHasExpTime != 0 {
		pos += 4
	}
	if len(data) < pos+4 {
		return 0, errors.New("value header truncated")
	}
	size := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if meta&valueMetaLarge != 0 {
		if len(data) < pos+2 {
			return 0, errors.New("large value header truncated")
		}
		return pos + 2 + 8*int(binary.LittleEndian.Uint16(data[pos:])), nil
	}
	return pos + size, nil
}

// decodeValue parses a value. The inline data aliases data.
func decodeValue(data []byte) (Value, error) {
	if _, err := valueSize(data); err != nil {
		return Value{}, err
	}
	meta := data[0]
	v := Value{Flags: binary.LittleEndian.Uint32(data[1:])}
	pos := 5
	if meta&valueMetaHasExpTime != 0 {
		v.ExpTime = binary.LittleEndian.Uint32(data[pos:])
		pos += 4
	}
	v.Size = binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if meta&valueMetaLarge != 0 {
		n := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		v.Large = make([]BlockID, n)
		for i := range v.Large {
			v.Large[i] = BlockID(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		}
		return v, nil
	}
	v.Inline = data[pos : pos+int(v.Size)]
	return v, nil
}

// --------------------------------------------------------------------------
// Lazy value access
// --------------------------------------------------------------------------

// ValueProvider gives lazy access to a value's data. Large values are only
// read from their blocks when Read is called.
type ValueProvider interface {
	// Flags returns the client flags stored with the value.
	Flags() uint32
	// Size returns the size of the value data in bytes.
	Size() int64
	// Read returns length bytes starting at offset.
	Read(ctx context.Context, offset, length int64) ([]byte, error)
}

// KeyWithData is a pair produced by the iterators.
// Key and the provider are only valid while the owning leaf lock is held,
// i.e. until the next call to Next on the iterator that produced it.
type KeyWithData struct {
	Key   Key
	Flags uint32
	Value ValueProvider
}

type valueProvider struct {
	txn       Transaction
	value     Value
	chunkSize int
}

func newValueProvider(txn Transaction, v Value, chunkSize int) *valueProvider {
	return &valueProvider{txn: txn, value: v, chunkSize: chunkSize}
}

func (p *valueProvider) Flags() uint32 { return p.value.Flags }

func (p *valueProvider) Size() int64 { return int64(p.value.Size) }

func (p *valueProvider) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > p.Size() {
		return nil, errors.Newf("read [%d, %d) out of range for value of %d bytes", offset, offset+length, p.Size())
	}
	out := make([]byte, length)
	if !p.value.IsLarge() {
		copy(out, p.value.Inline[offset:offset+length])
		return out, nil
	}

	chunk := int64(p.chunkSize)
	for done := int64(0); done < length; {
		pos := offset + done
		idx := pos / chunk
		if idx >= int64(len(p.value.Large)) {
			return nil, errors.Newf("large value references %d blocks, need block %d", len(p.value.Large), idx)
		}
		lock, err := p.txn.AcquireRead(ctx, p.value.Large[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "acquire value block %d", p.value.Large[idx])
		}
		data := lock.Data()
		start := pos % chunk
		if start >= int64(len(data)) {
			lock.Release()
			return nil, errors.Newf("value block %d is truncated", p.value.Large[idx])
		}
		done += int64(copy(out[done:], data[start:]))
		lock.Release()
	}
	return out, nil
}

// ReadAll reads the whole value behind p.
func ReadAll(ctx context.Context, p ValueProvider) ([]byte, error) {
	return p.Read(ctx, 0, p.Size())
}
