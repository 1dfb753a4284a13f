// Package transport defines the interfaces for RPC communication. A transport
// only moves opaque request and response bytes for a shard id; serialization
// and dispatch live in the serializer and server packages.
//
// Key Components:
//
//   - IRPCClientTransport: client side, handles connections and sends requests.
//
//   - IRPCServerTransport: server side, receives requests and hands them to the
//     registered ServerHandleFunc.
//
// The http subpackage (default, also serves /metrics) and the tcp subpackage
// (framed requests multiplexed over long lived connections) provide the
// implementations selectable with the --transport flag of the dtab binary.
package transport
