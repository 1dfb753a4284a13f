// Package http implements the HTTP transport of the RPC layer.
//
// Key Components:
//
//   - httpServerTransport: serves POST /{shardId} (body: serialized request,
//     response: serialized response) and GET /metrics, which exposes all
//     VictoriaMetrics counters in Prometheus text format. With log level
//     debug every request is logged.
//
//   - httpClientTransport: posts requests round-robin across the configured
//     endpoints. A failed attempt is retried on the next endpoint, up to
//     RetryCount attempts.
//
// Thread Safety:
//
//	The client transport can be used concurrently once Connect returned. The
//	round-robin counter is advanced atomically.
package http
