// Package base implements the stream transport shared by tcp and unix.
//
// Requests and responses are sent as frames: a 20 byte header (shard id, request
// id, payload length, all big endian) followed by the payload. Responses may
// arrive in any order, the client matches them to the waiting request by id.
//
// The protocol specific parts (dialing, listening, socket options) are supplied
// through IClientConnector and IServerConnector.
//
// Client:
//
//   - Several connections per endpoint, picked round robin.
//   - Failed sends are retried with exponential backoff. A connection that fails
//     while reading fails all of its pending requests and reconnects.
//
// Server:
//
//   - One goroutine per connection reads frames. Each request runs in its own
//     goroutine, bounded by the workers per connection.
//   - Read buffers come from a sync.Pool.
//   - Request counts and durations are exported through VictoriaMetrics/metrics.
package base
