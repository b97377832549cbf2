package tcpserver

import (
	"net"
	"syscall"
	"time"
)

// clientConn is what a slot needs from a client socket.
//
// TryWrite must return immediately with however many bytes the kernel took.
// (0, nil) means "no room right now" and is not an error.
// Poll reports whether the peer has closed the connection; it must not block.
type clientConn interface {
	TryWrite(p []byte) (int, error)
	Poll() (closed bool, err error)
	RemoteAddr() string
	Close() error
}

type connOptions struct {
	sendBufferBytes int
	userTimeout     time.Duration
}

type tcpClient struct {
	conn    net.Conn
	raw     syscall.RawConn
	addr    string
	scratch [512]byte
}

func (c *tcpClient) RemoteAddr() string { return c.addr }

func (c *tcpClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func remoteAddrString(c net.Conn) string {
	if a := c.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
