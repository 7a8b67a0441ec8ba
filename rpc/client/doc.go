// Package client implements the RPC client of the config-key service.
//
// NewRPCConfigKeyClient connects a transport and returns an IConfigKeyClient. Every
// call returns a Reply carrying the return code, the status line and the data of
// the service. A transport failure is returned as error instead, so callers can tell
// "the node said no" (Reply.Err) apart from "the node could not be reached".
//
// Usage Example:
//
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport: common.ClientTransportConfig{
//			Endpoints:  []string{"localhost:8080"},
//			RetryCount: 3,
//		},
//	}
//
//	c, err := client.NewRPCConfigKeyClient(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	reply, err := c.Put("mgr/x", []byte("1"))
//	if err == nil && !reply.OK() {
//		err = reply.Err()
//	}
//
// The client is safe for concurrent use. Forward sends an already built message
// unchanged and is used by followers to relay a request to the leader.
package client
