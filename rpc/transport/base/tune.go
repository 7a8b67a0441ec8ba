package base

import (
	"net"
	"time"

	"github.com/ValentinKolb/dCfg/rpc/common"
)

// bufferedConn is implemented by *net.TCPConn and *net.UnixConn
type bufferedConn interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
}

// TuneSocket applies the socket buffer sizes to conn, zero values keep the system defaults
func TuneSocket(conn net.Conn, sock common.SocketConf) error {
	bc, ok := conn.(bufferedConn)
	if !ok {
		return nil
	}
	if sock.WriteBufferSize > 0 {
		if err := bc.SetWriteBuffer(sock.WriteBufferSize); err != nil {
			return err
		}
	}
	if sock.ReadBufferSize > 0 {
		if err := bc.SetReadBuffer(sock.ReadBufferSize); err != nil {
			return err
		}
	}
	return nil
}

// TuneTCP applies the socket buffer sizes and the TCP options to conn.
// Non TCP connections are left untouched.
func TuneTCP(conn net.Conn, sock common.SocketConf, opts common.TCPConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm if configured
	if err := tcpConn.SetNoDelay(opts.TCPNoDelay); err != nil {
		return err
	}

	if err := TuneSocket(tcpConn, sock); err != nil {
		return err
	}

	if opts.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(opts.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// negative keeps the system default
	if opts.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(opts.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}
