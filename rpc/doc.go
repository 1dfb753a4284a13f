// Package rpc connects dTab clients with the shards of a server.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, server and client configuration, and the
//     logger shared with Dragonboat.
//
//   - serializer: converts Messages to bytes (json, msgpack).
//
//   - transport: moves request and response bytes for a shard id. The http
//     subpackage also exports the process metrics.
//
//   - server: owns btree and leader shards and dispatches requests to them.
//
//   - client: RPCTable for btree shards and RPCLeader for leader shards.
package rpc
