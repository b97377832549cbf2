package tcpserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pvtcast/internal/stream"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type fakeNetwork struct {
	deny         bool
	connected    bool
	shuttingDown bool

	requests int
	releases int
	users    []string
}

func (n *fakeNetwork) RequestAccess(user string) bool {
	n.requests++
	n.users = append(n.users, user)
	return !n.deny
}

func (n *fakeNetwork) IsConnected(string) bool    { return n.connected }
func (n *fakeNetwork) IsShuttingDown(string) bool { return n.shuttingDown }
func (n *fakeNetwork) Release(string)             { n.releases++ }

type fakeConn struct {
	addr       string
	writeFn    func(p []byte) (int, error)
	pollClosed bool
	pollErr    error

	written []byte
	writes  int
	closes  int
}

func (c *fakeConn) TryWrite(p []byte) (int, error) {
	c.writes++
	n, err := len(p), error(nil)
	if c.writeFn != nil {
		n, err = c.writeFn(p)
	}
	if n > 0 {
		c.written = append(c.written, p[:n]...)
	}
	return n, err
}

func (c *fakeConn) Poll() (bool, error) { return c.pollClosed, c.pollErr }
func (c *fakeConn) RemoteAddr() string  { return c.addr }
func (c *fakeConn) Close() error {
	c.closes++
	return nil
}

func newTestServer(t *testing.T, capacity int) (*Server, *stream.Buffer, *fakeNetwork) {
	t.Helper()
	buf, err := stream.NewBuffer(capacity)
	require.NoError(t, err)
	nw := &fakeNetwork{connected: true}
	s, err := New(Config{
		Enable: true,
		Port:   2948,
		Modes:  ModeMask(0).With(ModeRover),
		Mode:   ModeRover,
	}, Deps{Stream: buf, Network: nw})
	require.NoError(t, err)
	return s, buf, nw
}

// forceRunning puts s in RUNNING without a listener, starting the liveness
// window at now.
func forceRunning(s *Server, now time.Time) {
	s.state = StateRunning
	s.timer = now
}

// stubAcceptor returns an acceptor whose hand-off channel is pre-filled and
// whose goroutine never runs.
func stubAcceptor(t *testing.T, conns ...clientConn) *acceptor {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := &acceptor{
		ln:      ln,
		pending: make(chan clientConn, len(conns)+1),
		done:    make(chan struct{}),
	}
	for _, c := range conns {
		a.pending <- c
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func stubHalt(t *testing.T) {
	t.Helper()
	old := haltFn
	haltFn = func(msg string) { panic(msg) }
	t.Cleanup(func() { haltFn = old })
}

func stubListen(t *testing.T, fn func(port int) (net.Listener, error)) {
	t.Helper()
	old := listenFn
	listenFn = fn
	t.Cleanup(func() { listenFn = old })
}

func loopbackListen(int) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
