package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/dCfg/rpc/common"
	"github.com/ValentinKolb/dCfg/rpc/transport"
	"github.com/ValentinKolb/dCfg/rpc/transport/base"
)

const (
	defaultBufferSize     = 64 * 1024 // 64 KB
	defaultWorkersPerConn = 64
)

// --------------------------------------------------------------------------
// Unix Server Connector
// --------------------------------------------------------------------------

// serverConnector implements base.IServerConnector for unix domain sockets
type serverConnector struct{}

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Transport.Endpoint

	// Remove a stale socket file of a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	return base.TuneSocket(conn, config.Transport.SocketConf)
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a unix socket server transport. Zero values select the defaults.
func NewUnixServerTransport(bufferSize, workersPerConn int) transport.IRPCServerTransport {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if workersPerConn <= 0 {
		workersPerConn = defaultWorkersPerConn
	}
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, workersPerConn)
}
