// Package store provides the durable register in which the table leader keeps
// the L2F configuration, branch history, shard config and replica reports of
// every table.
//
// Key Components:
//
//   - IStore Interface: Get, CompareAndSwap, SetConfig, Report, Tables and
//     GetInfo. L2F writes are optimistic: every record carries an epoch that
//     identifies its L2F and a swap only succeeds if the caller read the
//     current epoch. A caller that lost a race gets the current record back
//     and can recompute. SetConfig and Report leave the epoch alone.
//
//   - Register: The in-memory record set both implementations are built on.
//     It also knows how to save and load itself, which the replicated store
//     uses for RAFT snapshots.
//
//   - Error System: Typed return codes and messages (Error, RetCode), the same
//     across implementations and over the wire.
//
// Implementations:
//
//	- Local Store (lstore): a single node register held in memory.
//	  Available in the "github.com/ValentinKolb/dTab/lib/store/lstore" package.
//
//	- Distributed Store (dstore): the register replicated with the Dragonboat
//	  RAFT library. Every write is a log entry, so all replicas agree on the
//	  order of L2F changes, configs and reports.
//	  Available in the "github.com/ValentinKolb/dTab/lib/store/dstore" package.
package store
