// Package transport defines the contract between the RPC layer and the network.
//
// A transport moves opaque byte slices tagged with a shard id. The client side
// (IRPCClientTransport) connects to a list of endpoints and sends requests, the
// server side (IRPCServerTransport) hands every request to a ServerHandleFunc and
// writes back whatever it returns. Listen blocks until Close is called.
//
// Implementations live in the subpackages tcp, unix and http. tcp and unix share
// the framing, pooling and retry logic of base.
package transport
