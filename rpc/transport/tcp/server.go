package tcp

import (
	"fmt"
	"net"

	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	"github.com/ValentinKolb/dCfg/rpc/transport/base"
)

const (
	defaultBufferSize     = 512 * 1024 // 512 KB
	defaultWorkersPerConn = 64
)

// --------------------------------------------------------------------------
// TCP Server Connector
// --------------------------------------------------------------------------

// serverConnector implements base.IServerConnector for TCP sockets
type serverConnector struct{}

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return base.TuneTCP(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a TCP server transport. Zero values select the defaults.
func NewTCPServerTransport(bufferSize, workersPerConn int) transport.IRPCServerTransport {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if workersPerConn <= 0 {
		workersPerConn = defaultWorkersPerConn
	}
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, workersPerConn)
}
