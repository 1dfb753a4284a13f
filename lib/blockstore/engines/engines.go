// Package engines opens a blockstore.BlockStore by implementation name.
package engines

import (
	"github.com/ValentinKolb/dTab/lib/blockstore"
	"github.com/ValentinKolb/dTab/lib/blockstore/engines/boltstore"
	"github.com/ValentinKolb/dTab/lib/blockstore/engines/memstore"
	"github.com/ValentinKolb/dTab/lib/blockstore/engines/pebblestore"
	"github.com/cockroachdb/errors"
)

// Open creates or opens a block store. path is ignored for the mem backend;
// for pebble it is a directory, for bolt a file.
func Open(impl blockstore.Implementation, path string) (blockstore.BlockStore, error) {
	switch impl {
	case blockstore.ImplMem:
		return memstore.NewMemStore(), nil
	case blockstore.ImplPebble:
		if path == "" {
			return nil, errors.New("pebble block store needs a directory")
		}
		return pebblestore.Open(path)
	case blockstore.ImplBolt:
		if path == "" {
			return nil, errors.New("bolt block store needs a file path")
		}
		return boltstore.Open(path)
	default:
		return nil, errors.Newf("unknown block store %q", impl)
	}
}
