package tcpserver

import (
	"fmt"
	"strings"
)

// State is the server lifecycle state.
type State uint8

const (
	StateOff State = iota
	StateNetworkStarted
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateNetworkStarted:
		return "network_started"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(s))
	}
}

// Mode is a receiver operating mode.
type Mode uint8

const (
	ModeRover Mode = iota
	ModeBase
)

var modeNames = map[string]Mode{
	"rover": ModeRover,
	"base":  ModeBase,
}

func (m Mode) String() string {
	for name, v := range modeNames {
		if v == m {
			return name
		}
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// ModeMask is the set of modes the server may run under.
type ModeMask uint8

func (mm ModeMask) Has(m Mode) bool { return mm&(1<<m) != 0 }

func (mm ModeMask) With(m Mode) ModeMask { return mm | 1<<m }

func ParseModeMask(names []string) (ModeMask, error) {
	var mm ModeMask
	for _, n := range names {
		m, err := ParseMode(n)
		if err != nil {
			return 0, err
		}
		mm = mm.With(m)
	}
	return mm, nil
}

// DropReason explains why a client slot was released.
type DropReason string

const (
	ReasonTransportClosed DropReason = "transport-closed"
	ReasonWriteError      DropReason = "write-error"
	ReasonStale           DropReason = "stale"
	ReasonServerStopped   DropReason = "server-stopped"
)
