// Package server implements the RPC server. It owns the shards of a node and
// routes every request of the transport to the adapter of the addressed shard.
//
// Shard types:
//
//   - btree: a read-only B-tree in a block store (mem, pebble or bolt) behind a
//     page cache. Serves range gets, counts and shard info.
//
//   - leader(lstore): a table leader whose L2F register lives in memory.
//
//   - leader(dstore): a table leader whose L2F register is replicated with
//     Dragonboat. Every node of the cluster starts a replica of the shard.
//
// Key Components:
//
//   - IRPCServerAdapter: turns a request message into a response message for
//     one shard and releases the shard on Close.
//
//   - NewBTreeServerAdapter, NewLeaderServerAdapter: the adapters of the two
//     shard kinds.
//
//   - RPCServer: creates the shards from a common.ServerConfig, runs the leader
//     loops and connects transport and serializer.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeBTree, Engine: "pebble", Path: "/data/users"},
//	    {ShardID: 200, Type: common.ShardTypeLocalLeader},
//	  },
//	  Endpoint: ":8080",
//	  LogLevel: "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewMsgpackSerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatal(err)
//	}
package server
