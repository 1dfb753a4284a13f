// Package lstore implements a local, in-memory, single-node L2F register based
// on the store.IStore interface. Records are not persisted between process
// restarts.
//
// All operations are thread-safe. Reads go straight to a concurrent map,
// swaps are serialized so the epoch check and the write are atomic.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	rec, _, _ := s.Get("users")
//	rec, swapped, err := s.CompareAndSwap("users", rec.Epoch, next, minted)
//
// For deployments where the leader must survive node failures use the dstore
// package, which replicates the same register with RAFT.
package lstore
