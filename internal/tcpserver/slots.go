package tcpserver

import (
	"log"
	"math/bits"
	"time"

	"github.com/google/uuid"
)

type slot struct {
	conn    clientConn
	addr    string
	session string
	tail    int

	recentlySentData bool
	writeErrored     bool

	connectedAt  time.Time
	bytesSent    uint64
	bytesSkipped uint64
}

func (s *Server) isOccupied(i int) bool {
	return s.occupied&(1<<uint(i)) != 0
}

// Clients returns the number of occupied slots.
func (s *Server) Clients() int {
	return bits.OnesCount8(s.occupied)
}

// freeSlot returns the lowest unoccupied index, or -1.
func (s *Server) freeSlot() int {
	i := bits.TrailingZeros8(^s.occupied)
	if i >= MaxClients {
		return -1
	}
	return i
}

// acceptPass fills free slots, lowest index first, from pending connections.
func (s *Server) acceptPass(now time.Time) {
	if s.acc == nil {
		return
	}
	for {
		i := s.freeSlot()
		if i < 0 {
			return
		}
		if !s.tryAccept(i, now) {
			return
		}
	}
}

func (s *Server) tryAccept(i int, now time.Time) bool {
	c, ok := s.acc.take()
	if !ok {
		return false
	}
	s.occupy(i, c, now)
	return true
}

func (s *Server) occupy(i int, c clientConn, now time.Time) {
	s.slots[i] = slot{
		conn:             c,
		addr:             c.RemoteAddr(),
		session:          uuid.NewString(),
		tail:             s.deps.Stream.Head(),
		recentlySentData: true,
		connectedAt:      now,
	}
	s.occupied |= 1 << uint(i)
	log.Printf("tcpserver: client connected slot=%d addr=%s session=%s", i, s.slots[i].addr, s.slots[i].session)
	s.deps.Metrics.accepted()
	s.clientsChanged()
}

// dropSlot releases slot i. Dropping a free slot does nothing.
func (s *Server) dropSlot(i int, reason DropReason) {
	if !s.isOccupied(i) {
		return
	}
	sl := &s.slots[i]
	if sl.conn != nil {
		_ = sl.conn.Close()
	}
	log.Printf("tcpserver: client dropped slot=%d addr=%s session=%s reason=%s sent=%d", i, sl.addr, sl.session, reason, sl.bytesSent)
	s.slots[i] = slot{}
	s.occupied &^= 1 << uint(i)
	s.deps.Metrics.dropped(reason)
	s.clientsChanged()
}

func (s *Server) clientsChanged() {
	n := s.Clients()
	s.deps.Metrics.setClients(n)
	if s.deps.ClientsChanged != nil {
		s.deps.ClientsChanged(n)
	}
}

// pollSlots drops clients whose peer has gone away.
func (s *Server) pollSlots() {
	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		closed, err := s.slots[i].conn.Poll()
		if err != nil {
			log.Printf("tcpserver: client slot=%d read: %v", i, err)
		}
		if closed {
			s.dropSlot(i, ReasonTransportClosed)
		}
	}
}
