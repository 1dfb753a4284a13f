package btree

import (
	"context"
	"time"
)

// Pair is a materialized key/value pair that no longer depends on any lock.
type Pair struct {
	Key   []byte `json:"key" msgpack:"key"`
	Flags uint32 `json:"flags,omitempty" msgpack:"flags,omitempty"`
	Value []byte `json:"value" msgpack:"value"`
}

// Collect drains it into memory, reading every value in full. A limit <= 0
// means no limit. The iterator is always finished when Collect returns.
func Collect(ctx context.Context, it *SliceKeysIterator, limit int) ([]Pair, error) {
	defer it.Done()

	var pairs []Pair
	for limit <= 0 || len(pairs) < limit {
		kv, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		data, err := ReadAll(ctx, kv.Value)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{
			Key:   append([]byte(nil), kv.Key...),
			Flags: kv.Flags,
			Value: data,
		})
	}
	return pairs, nil
}

// Count returns the number of pairs in it without reading any value data.
func Count(ctx context.Context, it *SliceKeysIterator) (int, error) {
	defer it.Done()

	n := 0
	for {
		_, ok, err := it.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// RangeGet runs a bounded range get in one call.
func RangeGet(ctx context.Context, txn Transaction, left, right Bound, limit int) ([]Pair, error) {
	return Collect(ctx, NewSliceKeysIterator(txn, left, right, time.Now()), limit)
}
