// Package http implements the RPC transport over plain HTTP.
//
// Every request is a POST to /{shardId} carrying the serialized message as body,
// the response body is the serialized reply. The server additionally serves the
// Prometheus metrics of the process on GET /metrics.
//
// The client spreads requests round robin over its endpoints and retries a failed
// request on the next endpoint. It is safe for concurrent use.
package http
