// Package network reports whether the uplink used by local services is
// available and arbitrates which of them currently hold it.
package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"time"
)

type Config struct {
	// Interface to watch. Empty means any non-loopback interface.
	Interface    string
	PollInterval time.Duration
}

// Link is the result of one interface probe.
type Link struct {
	Interface string
	Addr      string
}

type Snapshot struct {
	Interface string   `json:"interface"`
	Up        bool     `json:"up"`
	Addr      string   `json:"addr,omitempty"`
	Users     []string `json:"users"`
	Closing   bool     `json:"closing"`
	LastError string   `json:"last_error,omitempty"`
}

// probeFn returns the first usable link, ok=false when none is up.
var probeFn = probeInterfaces

// Monitor polls the watched interface and tracks access holders.
//
// A holder sees IsShuttingDown once the link has gone away after its access
// was granted, or once the monitor itself is closing. The flag sticks until
// the holder calls Release, so a brief flap still forces a full restart.
type Monitor struct {
	cfg Config

	mu      sync.Mutex
	link    Link
	up      bool
	lastErr string
	closing bool
	// users maps holder name to "link lost since grant".
	users map[string]bool
}

func New(cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	m := &Monitor{cfg: cfg, users: map[string]bool{}}
	m.Refresh()
	return m
}

// Run polls until ctx is done, then marks the monitor closing.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-t.C:
			m.Refresh()
		}
	}
}

// Refresh probes the interface once.
func (m *Monitor) Refresh() {
	link, ok, err := probeFn(m.cfg.Interface)

	m.mu.Lock()
	defer m.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg != m.lastErr && msg != "" {
		log.Printf("network: probe interface=%q: %v", m.cfg.Interface, err)
	}
	m.lastErr = msg

	if ok != m.up {
		if ok {
			log.Printf("network: link up interface=%s addr=%s", link.Interface, link.Addr)
		} else {
			log.Printf("network: link down interface=%q", m.cfg.Interface)
		}
	}
	if !ok {
		for u := range m.users {
			m.users[u] = true
		}
		link = Link{}
	}
	m.up = ok
	m.link = link
}

// RequestAccess registers user as a holder. It fails only while closing.
func (m *Monitor) RequestAccess(user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	if _, held := m.users[user]; !held {
		log.Printf("network: access granted user=%s", user)
	}
	m.users[user] = false
	return true
}

func (m *Monitor) IsConnected(user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.users[user]
	return held && m.up && !m.closing
}

func (m *Monitor) IsShuttingDown(user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing || m.users[user]
}

func (m *Monitor) Release(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.users[user]; !held {
		return
	}
	delete(m.users, user)
	log.Printf("network: access released user=%s", user)
}

// Close refuses new access and asks every holder to shut down.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closing = true
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.users))
	for u := range m.users {
		users = append(users, u)
	}
	sort.Strings(users)
	name := m.link.Interface
	if name == "" {
		name = m.cfg.Interface
	}
	return Snapshot{
		Interface: name,
		Up:        m.up,
		Addr:      m.link.Addr,
		Users:     users,
		Closing:   m.closing,
		LastError: m.lastErr,
	}
}

func probeInterfaces(name string) (Link, bool, error) {
	var ifaces []net.Interface
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return Link{}, false, fmt.Errorf("%s not found: %w", name, err)
		}
		ifaces = []net.Interface{*iface}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return Link{}, false, fmt.Errorf("list interfaces: %w", err)
		}
		ifaces = all
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if a := usableAddr(addrs); a != "" {
			return Link{Interface: iface.Name, Addr: a}, true, nil
		}
	}
	return Link{}, false, nil
}

// usableAddr prefers IPv4 and ignores link-local addresses.
func usableAddr(addrs []net.Addr) string {
	var v6 string
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() || ipn.IP.IsLinkLocalUnicast() {
			continue
		}
		if ipn.IP.To4() != nil {
			return ipn.IP.String()
		}
		if v6 == "" {
			v6 = ipn.IP.String()
		}
	}
	return v6
}
