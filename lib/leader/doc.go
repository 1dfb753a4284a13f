// Package leader implements the control loop of a table leader.
//
// A Leader collects F2L reports from the replicas of every table and
// periodically computes the next L2F with table.CalculateL2F. The desired
// shard configuration and the last report of every replica are stored in the
// store.IStore next to the L2F, so leaders on different nodes of a replicated
// store all compute from the same record. Decisions are written with an epoch
// compare-and-swap, so two leaders racing for the same table cannot both
// commit: the loser gets ErrStaleL2F and recomputes in the next round.
// Options.IsLeader limits the periodic rounds to one node.
//
// Reports are pushed by RPC handlers onto a multi-producer single-consumer
// queue and written to the store by the goroutine running Run, so Report
// never waits for a reconciliation round. Rounds of the same table are
// serialized.
//
// Newly elected primaries get a fresh branch. Its birth certificate, forking
// off the previous branch where the new primary stood, is registered in the
// same swap that installs the primary.
package leader
