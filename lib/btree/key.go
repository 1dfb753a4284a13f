package btree

import "fmt"

// MaxKeySize is the largest store key a node can hold (the length is stored in one byte).
const MaxKeySize = 250

// Key is a store key.
type Key []byte

// KeyToStr maps a store key to the string whose byte order defines the total
// order of keys in the tree.
func KeyToStr(k Key) string {
	return string(k)
}

// Compare orders two keys by KeyToStr.
func Compare(a, b Key) int {
	sa, sb := KeyToStr(a), KeyToStr(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// --------------------------------------------------------------------------
// Bounds
// --------------------------------------------------------------------------

// BoundMode selects how a range bound is applied.
type BoundMode uint8

const (
	BoundNone   BoundMode = iota // unbounded
	BoundOpen                    // the bound key itself is excluded
	BoundClosed                  // the bound key itself is included
)

func (m BoundMode) String() string {
	switch m {
	case BoundNone:
		return "none"
	case BoundOpen:
		return "open"
	case BoundClosed:
		return "closed"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseBoundMode converts "none", "open" or "closed" into a BoundMode.
func ParseBoundMode(s string) (BoundMode, error) {
	switch s {
	case "", "none":
		return BoundNone, nil
	case "open":
		return BoundOpen, nil
	case "closed":
		return BoundClosed, nil
	default:
		return BoundNone, fmt.Errorf("invalid bound mode %q (expected none, open or closed)", s)
	}
}

// Bound is one end of a key range.
type Bound struct {
	Mode BoundMode `json:"mode" msgpack:"mode"`
	Key  Key       `json:"key,omitempty" msgpack:"key"`
}

// Unbounded returns a bound that does not restrict the range.
func Unbounded() Bound { return Bound{Mode: BoundNone} }

// Open returns a bound excluding k.
func Open(k string) Bound { return Bound{Mode: BoundOpen, Key: Key(k)} }

// Closed returns a bound including k.
func Closed(k string) Bound { return Bound{Mode: BoundClosed, Key: Key(k)} }

func (b Bound) String() string {
	if b.Mode == BoundNone {
		return "none"
	}
	return fmt.Sprintf("%s(%q)", b.Mode, KeyToStr(b.Key))
}
