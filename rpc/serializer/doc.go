// Package serializer provides message serialization for the RPC layer. It
// defines a common interface and two implementations.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - msgpackSerializerImpl: msgpack encoding. Compact, pair values travel as raw
//     bytes. This is the default.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging or for clients
//     written in other languages. Byte fields are base64 encoded.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.New("msgpack")
//	data, err := s.Serialize(message)
//	// ... send data ...
//	var received common.Message
//	err = s.Deserialize(receivedData, &received)
package serializer
