// Package tcp implements a framed TCP transport of the RPC layer.
//
// Every request and response travels as one frame:
//
//	8 bytes shard id | 8 bytes request id | 4 bytes payload length | payload
//
// (all integers big endian). The request id lets a connection carry many
// requests at once; the server answers with the id of the request.
//
// Key Components:
//
//   - tcpServerTransport: accepts connections and reads frames in a loop. Each
//     request is handled in its own goroutine, bounded per connection, and the
//     response is written back on the same connection.
//
//   - tcpClientTransport: keeps ConnectionsPerEndpoint connections per endpoint
//     and picks them round-robin. A connection that fails is redialed on its
//     next use. Failed attempts are retried on the next connection with an
//     exponential backoff, up to RetryCount attempts.
//
// Compared to the http transport there is no per request connection handling
// and no HTTP framing, but also no /metrics endpoint.
//
// Thread Safety:
//
//	The client transport can be used concurrently once Connect returned.
//	Writes to one connection are serialized; responses are matched to the
//	waiting caller by request id.
package tcp
