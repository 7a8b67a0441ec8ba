package server

import (
	"fmt"

	"github.com/ValentinKolb/dCfg/lib/configkey"
	"github.com/ValentinKolb/dCfg/rpc/client"
	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/serializer"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// forwardable is implemented by every op received over RPC
type forwardable interface {
	message() *common.Message
}

// leaderForwarder relays requests that need the leader to the leader's API endpoint and
// hands the leader's reply to the original requester.
type leaderForwarder struct {
	shardID      uint64
	members      map[uint64]string
	maxHops      int
	clientConfig common.ClientConfig
	newTransport func() transport.IRPCClientTransport
	serializer   serializer.IRPCSerializer

	// leader is read on the loop
	leader func() (uint64, bool)

	clients *xsync.MapOf[string, client.IConfigKeyClient]
}

func newLeaderForwarder(
	config common.ServerConfig,
	newTransport func() transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *leaderForwarder {
	return &leaderForwarder{
		shardID: config.ShardID,
		members: config.APIMembers,
		maxHops: config.MaxForwardHops,
		clientConfig: common.ClientConfig{
			TimeoutSecond: int(config.TimeoutSecond),
			Transport: common.ClientTransportConfig{
				RetryCount:             1,
				ConnectionsPerEndpoint: 1,
				SocketConf:             config.Transport.SocketConf,
				TCPConf:                config.Transport.TCPConf,
			},
		},
		newTransport: newTransport,
		serializer:   serializer,
		clients:      xsync.NewMapOf[string, client.IConfigKeyClient](),
	}
}

// ForwardToLeader is called on the loop and never blocks
func (f *leaderForwarder) ForwardToLeader(op configkey.Replier) {
	fo, ok := op.(forwardable)
	if !ok {
		f.fail(op, "request cannot be forwarded")
		return
	}

	msg := *fo.message()
	if int(msg.Hops) >= f.maxHops {
		f.fail(op, fmt.Sprintf("forward limit of %d hops reached", f.maxHops))
		return
	}

	leaderID, known := f.leader()
	if !known {
		f.fail(op, "no leader known")
		return
	}
	endpoint, ok := f.members[leaderID]
	if !ok {
		f.fail(op, fmt.Sprintf("no api endpoint known for leader %d", leaderID))
		return
	}

	msg.Hops++
	go f.send(op, leaderID, endpoint, &msg)
}

// send runs on its own goroutine
func (f *leaderForwarder) send(op configkey.Replier, leaderID uint64, endpoint string, msg *common.Message) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`dcfg_forwarded_total{type=%q}`, msg.MsgType)).Inc()

	c, err := f.client(endpoint)
	if err != nil {
		f.fail(op, fmt.Sprintf("leader %d unreachable: %v", leaderID, err))
		return
	}

	resp, err := c.Forward(msg)
	if err != nil {
		Logger.Warningf("Forwarding %s to leader %d (%s) failed: %v", msg.MsgType, leaderID, endpoint, err)
		f.fail(op, fmt.Sprintf("forwarding to leader %d failed: %v", leaderID, err))
		return
	}

	if op.FromPeer() {
		return
	}
	op.Reply(configkey.RetCode(resp.Code), resp.Status, resp.Value)
}

func (f *leaderForwarder) fail(op configkey.Replier, status string) {
	if op.FromPeer() {
		return
	}
	op.Reply(configkey.RetCAgain, status, nil)
}

// client returns the cached client of endpoint
func (f *leaderForwarder) client(endpoint string) (client.IConfigKeyClient, error) {
	if c, ok := f.clients.Load(endpoint); ok {
		return c, nil
	}

	config := f.clientConfig
	config.Transport.Endpoints = []string{endpoint}
	c, err := client.NewRPCConfigKeyClient(f.shardID, config, f.newTransport(), f.serializer)
	if err != nil {
		return nil, err
	}

	actual, loaded := f.clients.LoadOrStore(endpoint, c)
	if loaded {
		_ = c.Close()
	}
	return actual, nil
}

// close closes all cached clients
func (f *leaderForwarder) close() {
	f.clients.Range(func(endpoint string, c client.IConfigKeyClient) bool {
		if err := c.Close(); err != nil {
			Logger.Warningf("Failed to close client of %s: %v", endpoint, err)
		}
		f.clients.Delete(endpoint)
		return true
	})
}
