package builder

import (
	"github.com/ValentinKolb/dTab/lib/btree"
	"github.com/ValentinKolb/dTab/lib/util"
	"github.com/cockroachdb/errors"
	gbtree "github.com/google/btree"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("btree")

// stagingDegree is the degree of the in-memory staging tree.
const stagingDegree = 32

// Writer receives the blocks of a built tree. Both blockstore.BlockStore and
// pagecache.Cache satisfy it.
type Writer interface {
	Put(id uint64, data []byte) error
	Sync() error
}

// Options configure the layout of a built tree.
type Options struct {
	// BlockSize is the size of every block (default btree.DefaultBlockSize).
	BlockSize int
	// InlineThreshold is the largest value stored inside a leaf; larger
	// values spill into dedicated blocks (default BlockSize/4).
	InlineThreshold int
	// MaxPairsPerNode caps the fan-out of leaves and internal nodes (0 = no cap).
	MaxPairsPerNode int
}

func (o Options) withDefaults() (Options, error) {
	if o.BlockSize == 0 {
		o.BlockSize = btree.DefaultBlockSize
	}
	if o.BlockSize < btree.MinBlockSize || o.BlockSize > 1<<16 {
		return o, errors.Newf("block size %d out of range [%d, %d]", o.BlockSize, btree.MinBlockSize, 1<<16)
	}
	if o.InlineThreshold <= 0 {
		o.InlineThreshold = o.BlockSize / 4
	}
	if o.MaxPairsPerNode < 0 {
		return o, errors.Newf("invalid max pairs per node %d", o.MaxPairsPerNode)
	}
	return o, nil
}

// Result describes a built tree.
type Result struct {
	Superblock  btree.Superblock `json:"superblock"`
	Leaves      int              `json:"leaves"`
	Internal    int              `json:"internal"`
	ValueBlocks int              `json:"value_blocks"`
	ValueSizes  util.SizeSummary `json:"value_sizes"`
}

// --------------------------------------------------------------------------
// Staging
// --------------------------------------------------------------------------

type entry struct {
	key     string
	flags   uint32
	expTime uint32
	value   []byte
}

func (e *entry) Less(than gbtree.Item) bool {
	return e.key < than.(*entry).key
}

// Builder stages pairs in memory and writes them as a tree in one pass.
// A Builder is not safe for concurrent use.
type Builder struct {
	opts  Options
	items *gbtree.BTree
	sizes *util.SizeHistogram
}

// New creates an empty builder.
func New(opts Options) (*Builder, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Builder{
		opts:  opts,
		items: gbtree.New(stagingDegree),
		sizes: util.NewSizeHistogram(),
	}, nil
}

// Add stages a pair. A later Add with the same key replaces the earlier one.
// exptime is a unix timestamp in seconds, 0 means the pair never expires.
func (b *Builder) Add(key, value []byte, flags, exptime uint32) error {
	if len(key) > btree.MaxKeySize {
		return errors.Newf("key of %d bytes exceeds the maximum of %d", len(key), btree.MaxKeySize)
	}
	if uint64(len(value)) > uint64(^uint32(0)) {
		return errors.Newf("value of %d bytes is too large", len(value))
	}
	b.items.ReplaceOrInsert(&entry{
		key:     string(key),
		flags:   flags,
		expTime: exptime,
		value:   append([]byte(nil), value...),
	})
	return nil
}

// Len returns the number of staged pairs.
func (b *Builder) Len() int {
	return b.items.Len()
}

// --------------------------------------------------------------------------
// Build
// --------------------------------------------------------------------------

type build struct {
	opts   Options
	w      Writer
	next   btree.BlockID
	result Result
}

func (bd *build) alloc() btree.BlockID {
	id := bd.next
	bd.next++
	return id
}

func (bd *build) write(id btree.BlockID, data []byte) error {
	if err := bd.w.Put(uint64(id), data); err != nil {
		return errors.Wrapf(err, "write block %d", id)
	}
	return nil
}

// Build writes all staged pairs bottom-up: value blocks and leaves first, then
// one internal level at a time, and the superblock last.
func (b *Builder) Build(w Writer) (Result, error) {
	bd := &build{opts: b.opts, w: w, next: btree.SuperblockID + 1}

	level, err := bd.writeLeaves(b)
	if err != nil {
		return Result{}, err
	}

	height := 0
	if len(level) > 0 {
		height = 1
	}
	for len(level) > 1 {
		if level, err = bd.writeInternalLevel(level); err != nil {
			return Result{}, err
		}
		height++
	}

	sb := btree.Superblock{
		BlockSize: uint32(b.opts.BlockSize),
		Root:      btree.NoBlock,
		Pairs:     uint64(b.items.Len()),
		Height:    uint16(height),
	}
	if len(level) == 1 {
		sb.Root = level[0].Child
	}
	sb.NextFree = bd.next
	if err := bd.write(btree.SuperblockID, sb.Encode()); err != nil {
		return Result{}, err
	}
	if err := w.Sync(); err != nil {
		return Result{}, errors.Wrap(err, "sync block store")
	}

	bd.result.Superblock = sb
	bd.result.ValueSizes = b.sizes.Summary()
	log.Infof("built tree: %d pairs, height %d, %d leaves, %d internal nodes, %d value blocks",
		sb.Pairs, sb.Height, bd.result.Leaves, bd.result.Internal, bd.result.ValueBlocks)
	return bd.result, nil
}

func (bd *build) fits(used, pairs, size int) bool {
	if bd.opts.MaxPairsPerNode > 0 && pairs >= bd.opts.MaxPairsPerNode {
		return false
	}
	return used+2+size <= bd.opts.BlockSize
}

func (bd *build) writeLeaves(b *Builder) ([]btree.InternalPair, error) {
	var (
		level []btree.InternalPair
		pairs []btree.LeafPair
		used  = btree.NodeHeaderSize(0)
		err   error
	)

	flush := func() error {
		if len(pairs) == 0 {
			return nil
		}
		data, err := btree.EncodeLeaf(bd.opts.BlockSize, pairs)
		if err != nil {
			return err
		}
		id := bd.alloc()
		if err := bd.write(id, data); err != nil {
			return err
		}
		level = append(level, btree.InternalPair{Key: pairs[len(pairs)-1].Key, Child: id})
		bd.result.Leaves++
		pairs, used = nil, btree.NodeHeaderSize(0)
		return nil
	}

	b.items.Ascend(func(i gbtree.Item) bool {
		e := i.(*entry)
		b.sizes.AddSample(int64(len(e.value)))

		var p btree.LeafPair
		if p, err = bd.leafPair(e); err != nil {
			return false
		}
		size := btree.LeafPairSize(p)
		if !bd.fits(used, len(pairs), size) {
			if err = flush(); err != nil {
				return false
			}
			if !bd.fits(used, 0, size) {
				err = errors.Newf("pair %q needs %d bytes and does not fit into a block of %d", e.key, size, bd.opts.BlockSize)
				return false
			}
		}
		pairs = append(pairs, p)
		used += 2 + size
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return level, nil
}

// leafPair converts a staged entry, writing large values into their own blocks.
func (bd *build) leafPair(e *entry) (btree.LeafPair, error) {
	v := btree.Value{Flags: e.flags, ExpTime: e.expTime, Size: uint32(len(e.value))}
	if len(e.value) <= bd.opts.InlineThreshold {
		v.Inline = e.value
		return btree.LeafPair{Key: btree.Key(e.key), Value: v}, nil
	}

	n := (len(e.value) + bd.opts.BlockSize - 1) / bd.opts.BlockSize
	if n > btree.MaxLargeBlocks {
		return btree.LeafPair{}, errors.Newf("value of %q needs %d blocks, the maximum is %d", e.key, n, btree.MaxLargeBlocks)
	}
	v.Large = make([]btree.BlockID, 0, n)
	for off := 0; off < len(e.value); off += bd.opts.BlockSize {
		end := off + bd.opts.BlockSize
		if end > len(e.value) {
			end = len(e.value)
		}
		block := make([]byte, bd.opts.BlockSize)
		copy(block, e.value[off:end])

		id := bd.alloc()
		if err := bd.write(id, block); err != nil {
			return btree.LeafPair{}, err
		}
		v.Large = append(v.Large, id)
		bd.result.ValueBlocks++
	}
	return btree.LeafPair{Key: btree.Key(e.key), Value: v}, nil
}

func (bd *build) writeInternalLevel(children []btree.InternalPair) ([]btree.InternalPair, error) {
	var (
		level []btree.InternalPair
		pairs []btree.InternalPair
		used  = btree.NodeHeaderSize(0)
	)

	flush := func() error {
		data, err := btree.EncodeInternal(bd.opts.BlockSize, pairs)
		if err != nil {
			return err
		}
		id := bd.alloc()
		if err := bd.write(id, data); err != nil {
			return err
		}
		level = append(level, btree.InternalPair{Key: pairs[len(pairs)-1].Key, Child: id})
		bd.result.Internal++
		pairs, used = nil, btree.NodeHeaderSize(0)
		return nil
	}

	for _, c := range children {
		size := btree.InternalPairSize(c)
		// an internal node needs at least two children to make progress
		if len(pairs) >= 2 && !bd.fits(used, len(pairs), size) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		pairs = append(pairs, c)
		used += 2 + size
	}
	if len(pairs) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return level, nil
}
