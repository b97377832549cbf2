//go:build !linux

package tcpserver

import (
	"errors"
	"net"
	"os"
	"time"
)

// Without raw non-blocking syscalls, bound each call with a tiny deadline.
const ioBudget = time.Millisecond

func newTCPClient(c net.Conn, opts connOptions) (*tcpClient, error) {
	if tc, ok := c.(*net.TCPConn); ok && opts.sendBufferBytes > 0 {
		_ = tc.SetWriteBuffer(opts.sendBufferBytes)
	}
	return &tcpClient{conn: c, addr: remoteAddrString(c)}, nil
}

func (c *tcpClient) TryWrite(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(ioBudget))
	n, err := c.conn.Write(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (c *tcpClient) Poll() (bool, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(ioBudget))
	_, err := c.conn.Read(c.scratch[:])
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return false, nil
	default:
		return true, err
	}
}
