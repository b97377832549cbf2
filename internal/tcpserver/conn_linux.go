//go:build linux

package tcpserver

import (
	"errors"
	"fmt"
	"log"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func newTCPClient(c net.Conn, opts connOptions) (*tcpClient, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection %T exposes no file descriptor", c)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}

	var optErr error
	if err := raw.Control(func(fd uintptr) {
		optErr = applySockopts(int(fd), opts)
	}); err != nil {
		return nil, fmt.Errorf("socket control: %w", err)
	}
	if optErr != nil {
		// Best-effort: the kernel defaults still work.
		log.Printf("tcpserver: socket options addr=%s: %v", remoteAddrString(c), optErr)
	}

	return &tcpClient{conn: c, raw: raw, addr: remoteAddrString(c)}, nil
}

func applySockopts(fd int, opts connOptions) error {
	if opts.sendBufferBytes > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.sendBufferBytes); err != nil {
			return fmt.Errorf("SO_SNDBUF: %w", err)
		}
	}
	if opts.userTimeout > 0 {
		ms := int(opts.userTimeout.Milliseconds())
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, ms); err != nil {
			return fmt.Errorf("TCP_USER_TIMEOUT: %w", err)
		}
	}
	return nil
}

// TryWrite issues a single write(2) on the non-blocking socket and never
// parks in the runtime poller.
func (c *tcpClient) TryWrite(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var werr error
	err := c.raw.Write(func(fd uintptr) bool {
		n, werr = unix.Write(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	switch {
	case werr == nil:
		return n, nil
	case errors.Is(werr, unix.EAGAIN), errors.Is(werr, unix.EINTR):
		return 0, nil
	default:
		return 0, werr
	}
}

// Poll discards anything the client sent and detects an orderly close.
func (c *tcpClient) Poll() (bool, error) {
	var n int
	var rerr error
	err := c.raw.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), c.scratch[:], unix.MSG_DONTWAIT)
		return true
	})
	if err != nil {
		return true, err
	}
	switch {
	case rerr == nil && n == 0:
		return true, nil
	case rerr == nil:
		return false, nil
	case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EINTR):
		return false, nil
	default:
		return true, rerr
	}
}
