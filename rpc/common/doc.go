// Package common provides core data structures and utilities shared by the
// rpc packages: the message protocol, client and server configuration, and the
// custom logger installed into Dragonboat.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Which fields are
//     used depends on MessageType; factory functions build every request and
//     response.
//
//   - MessageType: Enumeration of all operations, split into table shard
//     operations (range get, count) and leader shard operations (L2F read,
//     F2L reports, configuration, reconciliation).
//
//   - ServerConfig: Shards, RAFT parameters, storage, network and logging
//     settings of a server, with helpers converting to Dragonboat configs.
//
//   - ClientConfig: Endpoints, timeouts and retry behavior of a client.
//
//   - Logger: A dragonboat logger.ILogger implementation so that Dragonboat
//     and this module log in one format.
package common
