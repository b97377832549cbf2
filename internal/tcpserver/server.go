package tcpserver

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"pvtcast/internal/stream"
)

// MaxClients is the number of client slots.
const MaxClients = 4

// occupancyBits is the width of the slot occupancy bitset.
const occupancyBits = 8

var haltFn = func(msg string) {
	for {
		log.Print(msg)
		time.Sleep(5 * time.Second)
	}
}

// Stream is the read side of the shared byte stream.
type Stream interface {
	Ring() stream.Ring
	Head() int
	Window(off, n int) []byte
}

// Network grants and reports on network access for a named user.
type Network interface {
	RequestAccess(user string) bool
	IsConnected(user string) bool
	IsShuttingDown(user string) bool
	Release(user string)
}

type Config struct {
	Enable bool
	Port   int
	// Modes the server may run under; Mode is the current one.
	Modes ModeMask
	Mode  Mode

	SettleDelay    time.Duration
	LivenessWindow time.Duration

	SendBufferBytes int
	UserTimeout     time.Duration

	// NetworkUser identifies this service to the Network provider.
	NetworkUser string
}

type Deps struct {
	Stream  Stream
	Network Network
	Metrics *Metrics

	// Conflict reports whether another transport currently owns the link.
	// Optional.
	Conflict func() bool
	// ClientsChanged is called from the tick whenever the number of
	// occupied slots changes. Optional.
	ClientsChanged func(n int)
}

type ClientSnapshot struct {
	Slot         int    `json:"slot"`
	Session      string `json:"session"`
	RemoteAddr   string `json:"remote_addr"`
	ConnectedUTC string `json:"connected_utc"`
	Unread       int    `json:"unread_bytes"`
	BytesSent    uint64 `json:"sent_bytes"`
	BytesSkipped uint64 `json:"skipped_bytes"`
}

type Snapshot struct {
	Enabled   bool             `json:"enabled"`
	State     string           `json:"state"`
	Port      int              `json:"port"`
	Mode      string           `json:"mode"`
	Listen    string           `json:"listen,omitempty"`
	MaxUnread int              `json:"max_unread_bytes"`
	Clients   []ClientSnapshot `json:"clients"`
	LastError string           `json:"last_error,omitempty"`
}

// Server is the TCP fan-out service. Tick, Retain and Stop must be called
// from one goroutine; SetEnabled, SetMode and Snapshot are safe from any.
type Server struct {
	cfg  Config
	deps Deps

	enabled atomic.Bool
	mode    atomic.Uint32

	state State
	// timer marks entry to the current state; in RUNNING it is the start
	// of the current liveness window.
	timer time.Time

	acc       *acceptor
	slots     [MaxClients]slot
	occupied  uint8
	maxUnread int
	lastErr   string

	snap atomic.Value // Snapshot
}

func New(cfg Config, deps Deps) (*Server, error) {
	checkSlotWidth(MaxClients)
	if deps.Stream == nil {
		return nil, fmt.Errorf("tcpserver: stream is nil")
	}
	if deps.Network == nil {
		return nil, fmt.Errorf("tcpserver: network is nil")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("tcpserver: port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 15 * time.Second
	}
	if cfg.NetworkUser == "" {
		cfg.NetworkUser = "tcp-server"
	}

	s := &Server{cfg: cfg, deps: deps}
	s.enabled.Store(cfg.Enable)
	s.mode.Store(uint32(cfg.Mode))
	s.deps.Metrics.setState(StateOff)
	s.publish()
	return s, nil
}

func checkSlotWidth(n int) {
	if n > occupancyBits {
		haltFn(fmt.Sprintf("tcpserver: %d client slots exceed the %d-bit occupancy set", n, occupancyBits))
	}
}

func (s *Server) SetEnabled(v bool) { s.enabled.Store(v) }

func (s *Server) Enabled() bool { return s.enabled.Load() }

func (s *Server) SetMode(m Mode) { s.mode.Store(uint32(m)) }

func (s *Server) State() State { return s.state }

// Addr returns the bound listener address while RUNNING.
func (s *Server) Addr() net.Addr {
	if s.acc == nil {
		return nil
	}
	return s.acc.addr()
}

func (s *Server) modeAllowed() bool {
	return s.cfg.Modes.Has(Mode(s.mode.Load()))
}

func (s *Server) wanted() bool {
	if !s.enabled.Load() || !s.modeAllowed() {
		return false
	}
	return s.deps.Conflict == nil || !s.deps.Conflict()
}

// Tick advances the lifecycle and, while RUNNING, accepts and drains
// clients. It returns the unread byte count of the slowest occupied slot,
// which the producer must treat as still in use.
func (s *Server) Tick(now time.Time) int {
	switch s.state {
	case StateOff:
		s.tickOff(now)
	case StateNetworkStarted:
		s.tickNetworkStarted(now)
	case StateRunning:
		s.tickRunning(now)
	default:
		haltFn(fmt.Sprintf("tcpserver: invalid lifecycle state %d", uint8(s.state)))
	}
	s.publish()
	return s.maxUnread
}

func (s *Server) tickOff(now time.Time) {
	if !s.wanted() {
		return
	}
	if !s.deps.Network.RequestAccess(s.cfg.NetworkUser) {
		return
	}
	s.setState(StateNetworkStarted, now)
}

func (s *Server) tickNetworkStarted(now time.Time) {
	user := s.cfg.NetworkUser
	if s.deps.Network.IsShuttingDown(user) || !s.enabled.Load() || !s.modeAllowed() {
		s.deps.Network.Release(user)
		s.setState(StateOff, now)
		return
	}
	if !s.deps.Network.IsConnected(user) || now.Sub(s.timer) < s.cfg.SettleDelay {
		return
	}

	ln, err := listenFn(s.cfg.Port)
	if err != nil {
		s.deps.Metrics.bindFailed()
		msg := fmt.Sprintf("listen port=%d: %v", s.cfg.Port, err)
		if msg != s.lastErr {
			log.Printf("tcpserver: %s", msg)
		}
		s.lastErr = msg
		return
	}
	s.lastErr = ""
	s.acc = startAcceptor(ln, connOptions{
		sendBufferBytes: s.cfg.SendBufferBytes,
		userTimeout:     s.cfg.UserTimeout,
	})
	log.Printf("tcpserver: listening addr=%s", ln.Addr())
	s.setState(StateRunning, now)
}

func (s *Server) tickRunning(now time.Time) {
	user := s.cfg.NetworkUser
	if !s.enabled.Load() || !s.modeAllowed() || s.deps.Network.IsShuttingDown(user) {
		s.teardown(now)
		return
	}

	s.pollSlots()
	s.acceptPass(now)
	s.drain()
	s.sweep(now)
	s.maxUnread = s.computeMaxUnread()
	s.deps.Metrics.setMaxUnread(s.maxUnread)
}

// Stop closes every client, the listener and releases the network from any
// state. It is the shutdown path and leaves the server in OFF.
func (s *Server) Stop() {
	if s.state == StateOff {
		return
	}
	s.teardown(time.Now())
	s.publish()
}

func (s *Server) teardown(now time.Time) {
	for i := range s.slots {
		s.dropSlot(i, ReasonServerStopped)
	}
	if s.acc != nil {
		if err := s.acc.Close(); err != nil {
			log.Printf("tcpserver: close listener: %v", err)
		}
		s.acc = nil
	}
	s.maxUnread = 0
	s.deps.Metrics.setMaxUnread(0)
	s.deps.Network.Release(s.cfg.NetworkUser)
	s.setState(StateOff, now)
}

func (s *Server) setState(st State, now time.Time) {
	if st != s.state {
		log.Printf("tcpserver: state %s -> %s", s.state, st)
	}
	s.state = st
	s.timer = now
	s.deps.Metrics.setState(st)
}

// Snapshot returns the state as of the end of the last Tick.
func (s *Server) Snapshot() Snapshot {
	snap, _ := s.snap.Load().(Snapshot)
	snap.Enabled = s.enabled.Load()
	return snap
}

func (s *Server) publish() {
	snap := Snapshot{
		State:     s.state.String(),
		Port:      s.cfg.Port,
		Mode:      Mode(s.mode.Load()).String(),
		MaxUnread: s.maxUnread,
		Clients:   []ClientSnapshot{},
		LastError: s.lastErr,
	}
	if a := s.Addr(); a != nil {
		snap.Listen = a.String()
	}
	ring := s.deps.Stream.Ring()
	head := s.deps.Stream.Head()
	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		sl := &s.slots[i]
		snap.Clients = append(snap.Clients, ClientSnapshot{
			Slot:         i,
			Session:      sl.session,
			RemoteAddr:   sl.addr,
			ConnectedUTC: sl.connectedAt.UTC().Format(time.RFC3339Nano),
			Unread:       ring.Distance(sl.tail, head),
			BytesSent:    sl.bytesSent,
			BytesSkipped: sl.bytesSkipped,
		})
	}
	s.snap.Store(snap)
}
