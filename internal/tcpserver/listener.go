package tcpserver

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

var listenFn = func(port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", port))
}

var wrapConnFn = func(c net.Conn, opts connOptions) (clientConn, error) {
	return newTCPClient(c, opts)
}

// acceptor runs Accept on its own goroutine and hands connections to the
// tick through an unbuffered channel. At most one accepted connection waits
// in the hand-off; anything beyond that stays in the kernel backlog until
// the tick has a free slot and takes the pending one.
type acceptor struct {
	ln      net.Listener
	opts    connOptions
	pending chan clientConn

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func startAcceptor(ln net.Listener, opts connOptions) *acceptor {
	a := &acceptor{
		ln:      ln,
		opts:    opts,
		pending: make(chan clientConn),
		done:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *acceptor) run() {
	defer a.wg.Done()
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-a.done:
				return
			default:
			}
			log.Printf("tcpserver: accept failed: %v", err)
			select {
			case <-a.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		cc, err := wrapConnFn(c, a.opts)
		if err != nil {
			log.Printf("tcpserver: reject addr=%s: %v", remoteAddrString(c), err)
			_ = c.Close()
			continue
		}

		select {
		case a.pending <- cc:
		case <-a.done:
			_ = cc.Close()
			return
		}
	}
}

// take returns a pending connection without blocking.
func (a *acceptor) take() (clientConn, bool) {
	select {
	case c := <-a.pending:
		return c, true
	default:
		return nil, false
	}
}

func (a *acceptor) addr() net.Addr {
	return a.ln.Addr()
}

// Close stops accepting and waits for the accept goroutine to exit.
func (a *acceptor) Close() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.done)
		err = a.ln.Close()
		a.wg.Wait()
	})
	return err
}
