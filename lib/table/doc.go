// Package table computes the leader-to-follower (L2F) configuration of a
// replicated table shard.
//
// The table leader collects follower-to-leader (F2L) reports (a state and a
// version per replica) and periodically calls CalculateL2F with the previous
// L2F and the desired ShardConfig. The result is persisted by the store
// package and broadcast to the replicas.
//
// Safety rule: every acknowledged write is on a majority of the voters, and
// while a voter change is in progress also on a majority of the temp voters.
// CalculateL2F keeps this rule by
//   - starting a voter change only when more than half of the new set can serve,
//   - committing it only once the primary runs on the dual majority,
//   - electing only a voter that is at least as caught up as a majority of voters.
//
// Versions are compared by projecting them onto the branch history of the
// current branch (BranchHistory.Project): writes on a branch that forked away
// do not count.
//
// Every step is a small pure function so it can be tested on its own:
// growReplicas, initiateVoterChange, commitVoterChange, shrinkReplicas,
// electPrimary and deposePrimary.
package table
