// Package server implements the RPC server of the config-key service.
// It decodes requests arriving on a transport, hands them to the node's event loop and
// sends back the reply once the service produced it.
//
// The package focuses on:
//   - Assembling a node: storage engine, quorum (local or RAFT), config-key service and
//     device workflow, all running on one event loop
//   - Translating RPC messages into service operations and their replies back into messages
//   - Forwarding writes received on a follower to the leader's API endpoint
//   - Exposing Prometheus metrics
//
// Key Components:
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms. The client transport factory is used to reach
//     the leader when the node is a follower.
//
//   - configKeyOp / deviceOp: The operations posted onto the loop. Their reply is delivered
//     through a channel to the transport goroutine waiting for it. Requests flagged as
//     coming from a peer are acknowledged right away and never get a reply.
//
//   - leaderForwarder: Relays requests to the leader and passes the leader's reply on.
//     Every forward increments the hop counter of the message, a request that already
//     took MaxForwardHops hops fails with -EAGAIN.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Mode:          common.ModeLocal,
//	  Engine:        "memory",
//	  ShardID:       100,
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(0, 0),
//	  tcp.NewTCPClientTransport,
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The transport calls the handler concurrently. All service state is owned by the
//	event loop, so requests are processed one at a time in arrival order.
//	Serve must be called only once.
package server
