package table

import (
	"sort"
	"strings"
)

// ServerID identifies a server of the cluster.
type ServerID string

// ServerSet is a sorted set of servers without duplicates. The zero value is
// the empty set. Sets are values: every modifying method returns a new set.
type ServerSet []ServerID

// NewServerSet builds a set from ids in any order.
func NewServerSet(ids ...ServerID) ServerSet {
	s := make(ServerSet, 0, len(ids))
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

func (s ServerSet) search(id ServerID) int {
	return sort.Search(len(s), func(i int) bool { return s[i] >= id })
}

// Contains reports whether id is in the set.
func (s ServerSet) Contains(id ServerID) bool {
	i := s.search(id)
	return i < len(s) && s[i] == id
}

// Add returns s with id added.
func (s ServerSet) Add(id ServerID) ServerSet {
	i := s.search(id)
	if i < len(s) && s[i] == id {
		return s
	}
	out := make(ServerSet, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, id)
	return append(out, s[i:]...)
}

// Remove returns s without id.
func (s ServerSet) Remove(id ServerID) ServerSet {
	i := s.search(id)
	if i == len(s) || s[i] != id {
		return s
	}
	out := make(ServerSet, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// Equal reports whether both sets hold the same servers.
func (s ServerSet) Equal(o ServerSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share memory with s.
func (s ServerSet) Clone() ServerSet {
	if s == nil {
		return nil
	}
	return append(ServerSet(nil), s...)
}

// Normalize sorts s and removes duplicates. Sets decoded from user input
// (JSON scenarios, RPC messages) are normalized before use.
func (s ServerSet) Normalize() ServerSet {
	return NewServerSet(s...)
}

func (s ServerSet) String() string {
	ids := make([]string, len(s))
	for i, id := range s {
		ids[i] = string(id)
	}
	return "{" + strings.Join(ids, ",") + "}"
}
