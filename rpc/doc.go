// Package rpc is the communication layer of dCfg. It carries config-key, device
// and status requests from clients to a node and between nodes (followers relay
// writes to the leader over the same protocol).
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, server and client configuration, node status
//     and logger setup.
//
//   - transport: Pluggable stream (TCP, Unix sockets) and HTTP transports with
//     shard based routing.
//
//   - serializer: Binary, JSON and GOB encodings of Message.
//
//   - client: The config-key client used by the CLI and by followers to forward
//     requests to the leader.
//
//   - server: Runs one node: opens the engine, joins the quorum, drives the
//     config-key service on its event loop and answers requests.
package rpc
