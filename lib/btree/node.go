package btree

import (
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Node layout
// --------------------------------------------------------------------------
//
//	[0]        1 byte   node type (nodeTypeLeaf / nodeTypeInternal)
//	[1-2]      2 bytes  npairs
//	[3..3+2n]  offset table, one uint16 absolute offset per pair
//	...        packed pairs
//
// Leaf pair:     keyLen u8 | key | value
// Internal pair: keyLen u8 | key | child u64
//
// The key of internal pair i is the largest key stored below child i.

const (
	nodeTypeLeaf     = byte(1)
	nodeTypeInternal = byte(2)

	offNodeType    = 0
	offNodeNPairs  = 1
	offNodeOffsets = 3
	offsetSize     = 2
)

// NodeHeaderSize returns the bytes used by the header and offset table of a node with n pairs.
func NodeHeaderSize(n int) int {
	return offNodeOffsets + n*offsetSize
}

// LeafPair is a key and its value as stored in a leaf.
type LeafPair struct {
	Key   Key
	Value Value
}

// InternalPair is a separator key and the child below it.
type InternalPair struct {
	Key   Key
	Child BlockID
}

// LeafPairSize returns the encoded size of p (excluding its offset table slot).
func LeafPairSize(p LeafPair) int {
	return 1 + len(p.Key) + p.Value.encodedSize()
}

// InternalPairSize returns the encoded size of p (excluding its offset table slot).
func InternalPairSize(p InternalPair) int {
	return 1 + len(p.Key) + 8
}

// EncodeLeaf lays out pairs (which must be sorted) in a single leaf block.
func EncodeLeaf(blockSize int, pairs []LeafPair) ([]byte, error) {
	buf := make([]byte, blockSize)
	buf[offNodeType] = nodeTypeLeaf
	binary.LittleEndian.PutUint16(buf[offNodeNPairs:], uint16(len(pairs)))

	pos := NodeHeaderSize(len(pairs))
	for i, p := range pairs {
		if len(p.Key) > MaxKeySize {
			return nil, errors.Newf("key of %d bytes exceeds the maximum of %d", len(p.Key), MaxKeySize)
		}
		size := LeafPairSize(p)
		if pos+size > blockSize {
			return nil, errors.Newf("leaf overflow: %d pairs do not fit into %d bytes", len(pairs), blockSize)
		}
		binary.LittleEndian.PutUint16(buf[offNodeOffsets+i*offsetSize:], uint16(pos))
		buf[pos] = byte(len(p.Key))
		copy(buf[pos+1:], p.Key)
		p.Value.encodeTo(buf[pos+1+len(p.Key):])
		pos += size
	}
	return buf, nil
}

// EncodeInternal lays out pairs (which must be sorted) in a single internal block.
func EncodeInternal(blockSize int, pairs []InternalPair) ([]byte, error) {
	if len(pairs) == 0 {
		return nil, errors.New("internal node without children")
	}
	buf := make([]byte, blockSize)
	buf[offNodeType] = nodeTypeInternal
	binary.LittleEndian.PutUint16(buf[offNodeNPairs:], uint16(len(pairs)))

	pos := NodeHeaderSize(len(pairs))
	for i, p := range pairs {
		if len(p.Key) > MaxKeySize {
			return nil, errors.Newf("key of %d bytes exceeds the maximum of %d", len(p.Key), MaxKeySize)
		}
		size := InternalPairSize(p)
		if pos+size > blockSize {
			return nil, errors.Newf("internal overflow: %d pairs do not fit into %d bytes", len(pairs), blockSize)
		}
		binary.LittleEndian.PutUint16(buf[offNodeOffsets+i*offsetSize:], uint16(pos))
		buf[pos] = byte(len(p.Key))
		copy(buf[pos+1:], p.Key)
		binary.LittleEndian.PutUint64(buf[pos+1+len(p.Key):], uint64(p.Child))
		pos += size
	}
	return buf, nil
}

// --------------------------------------------------------------------------
// Read-only node view over locked page data
// --------------------------------------------------------------------------

type nodeView struct {
	data []byte
	kind byte
	n    int
}

// parseNode validates the header, the offset table and every pair of a node.
// After a successful parse all accessors are bounds-safe.
func parseNode(data []byte) (nodeView, error) {
	if len(data) < offNodeOffsets {
		return nodeView{}, errors.Newf("node too short: %d bytes", len(data))
	}
	kind := data[offNodeType]
	if kind != nodeTypeLeaf && kind != nodeTypeInternal {
		return nodeView{}, errors.Newf("invalid node type %d", kind)
	}
	n := int(binary.LittleEndian.Uint16(data[offNodeNPairs:]))
	if NodeHeaderSize(n) > len(data) {
		return nodeView{}, errors.Newf("offset table of %d pairs exceeds the block", n)
	}
	if kind == nodeTypeInternal && n == 0 {
		return nodeView{}, errors.New("internal node without children")
	}

	node := nodeView{data: data, kind: kind, n: n}
	for i := 0; i < n; i++ {
		off := node.offset(i)
		if off < NodeHeaderSize(n) || off >= len(data) {
			return nodeView{}, errors.Newf("pair %d: offset %d out of range", i, off)
		}
		end := off + 1 + int(data[off])
		if kind == nodeTypeInternal {
			end += 8
		} else if end <= len(data) {
			size, err := valueSize(data[end:])
			if err != nil {
				return nodeView{}, errors.Wrapf(err, "pair %d", i)
			}
			end += size
		}
		if end > len(data) {
			return nodeView{}, errors.Newf("pair %d exceeds the block", i)
		}
	}
	return node, nil
}

func (n nodeView) isLeaf() bool { return n.kind == nodeTypeLeaf }

func (n nodeView) npairs() int { return n.n }

func (n nodeView) offset(i int) int {
	return int(binary.LittleEndian.Uint16(n.data[offNodeOffsets+i*offsetSize:]))
}

func (n nodeView) key(i int) Key {
	off := n.offset(i)
	return Key(n.data[off+1 : off+1+int(n.data[off])])
}

func (n nodeView) child(i int) BlockID {
	off := n.offset(i)
	return BlockID(binary.LittleEndian.Uint64(n.data[off+1+int(n.data[off]):]))
}

func (n nodeView) value(i int) Value {
	off := n.offset(i)
	v, _ := decodeValue(n.data[off+1+int(n.data[off]):])
	return v
}

// getOffsetIndex returns the index of the first pair whose key is >= key.
// It returns npairs if every key in the node is smaller.
func (n nodeView) getOffsetIndex(key Key) int {
	return sort.Search(n.n, func(i int) bool {
		return Compare(n.key(i), key) >= 0
	})
}
