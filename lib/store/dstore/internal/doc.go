// Package internal provides the communication protocol structures and serialization
// logic for the dstore package.
//
//   - Command System: write operations (CompareAndSwap). Commands are serialized,
//     proposed to the RAFT cluster and executed on the state machine. The outcome
//     is returned as a msgpack encoded CommandResult.
//
//   - Query System: read operations (Get, Tables, GetInfo). Queries are executed
//     locally on the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: Expected epoch (uint64, big endian)
//	- 4 bytes: Table name length (uint32, big endian)
//	- N bytes: Table name
//	- M bytes: msgpack payload with the new L2F and the newly minted branches
//
// The types in this package are not thread-safe. The RAFT protocol ensures
// sequential processing of commands on the state machine.
package internal
