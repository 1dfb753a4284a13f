// Package client implements the RPC clients of dTab. Each client talks to
// one shard of a server through a transport and a serializer.
//
// Key Components:
//
//   - RPCTable: reads a btree shard (RangeGet, Count, Info).
//
//   - RPCLeader: talks to a table leader. Followers send their state with
//     Report and read the current L2F with GetL2F. Operators set the replica
//     placement with SetConfig and trigger a round with Reconcile.
//
// Errors sent back by a server are wrapped in ErrRemote.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	users, _ := client.NewRPCTable(100, config, http.NewHttpClientTransport(), serializer.NewMsgpackSerializer())
//	pairs, _ := users.RangeGet(btree.Closed("a"), btree.Open("b"), 10)
//
//	l, _ := client.NewRPCLeader(200, config, http.NewHttpClientTransport(), serializer.NewMsgpackSerializer())
//	rec, ok, _ := l.GetL2F("users")
//
// Thread Safety:
//
//	Clients are safe for concurrent use if their transport is.
package client
