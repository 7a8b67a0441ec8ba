package unix

import (
	"net"

	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	"github.com/ValentinKolb/dCfg/rpc/transport/base"
)

// --------------------------------------------------------------------------
// Unix Client Connector
// --------------------------------------------------------------------------

// clientConnector implements base.IClientConnector for unix domain sockets
type clientConnector struct{}

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return base.TuneSocket(conn, config.Transport.SocketConf)
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new unix socket client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
