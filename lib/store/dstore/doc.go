// Package dstore implements the L2F register replicated with the Dragonboat
// RAFT consensus library. It provides a strongly consistent implementation of
// the store.IStore interface that can operate across multiple nodes.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. It serializes swaps into commands,
//     proposes them to the RAFT shard and decodes the results.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine that holds a
//     store.Register on every replica and applies committed commands to it.
//
//   - Communication Protocol: Defined in the internal package (Command, Query).
//
// Write Operations:
//
//	CompareAndSwap follows this flow:
//
//	1. The swap is serialized into a Command (binary header + msgpack payload)
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, every replica checks the epoch and applies the swap (Update in statemachine.go)
//	4. The resulting record and whether the swap happened are returned to the client
//
//	Since the epoch check runs inside the state machine, two leaders racing for
//	the same table are ordered by the RAFT log and exactly one of them wins.
//
//	SetConfig and Report take the same path. They do not touch the epoch, but
//	every replica ends up with the same config and reports, so any node
//	reconciles from the same snapshot. LeaderCheck tells a node whether it
//	leads the RAFT group and should run the periodic rounds.
//
// Read Operations:
//
//	Get and Tables use SyncRead (linearizable). GetInfo uses StaleRead.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a
//	short delay, up to 5 attempts. Every operation is bounded by the timeout
//	passed to NewDistributedStore.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot copies the register, SaveSnapshot writes that copy with
//	msgpack and RecoverFromSnapshot replaces the register. A recovering
//	replica then replays the log entries committed after the snapshot.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// For single node deployments consider the lstore package, which provides the
// same interface without consensus overhead.
package dstore
