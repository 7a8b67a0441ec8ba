// Package serializer converts common.Message to and from bytes for the config-key
// service RPC system.
//
// Three implementations of IRPCSerializer exist:
//
//   - Binary: a 3 byte header (message type, 16 bit field flags) followed by the
//     present fields only. Strings and byte slices are length prefixed (uint32),
//     ids and codes are fixed width. An empty but non nil Value or Meta survives the
//     round trip. This is the fastest and most compact encoding.
//
//   - JSON: human readable, handy when debugging with curl against the http transport.
//
//   - GOB: Go's built-in encoding. Larger and slower than Binary, kept for completeness.
//
// Client and node must use the same serializer. All implementations are stateless
// and safe for concurrent use.
package serializer
