package tcpserver

import (
	"log"
	"time"
)

// drain gives every occupied slot one bounded write of the longest
// contiguous unread run. Slots whose write failed are released before
// returning so the next accept pass can reuse them.
func (s *Server) drain() {
	ring := s.deps.Stream.Ring()
	head := s.deps.Stream.Head()

	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		sl := &s.slots[i]
		unread := ring.Distance(sl.tail, head)
		if unread == 0 {
			continue
		}
		p := s.deps.Stream.Window(sl.tail, unread)
		n, err := sl.conn.TryWrite(p)
		if err != nil {
			log.Printf("tcpserver: client slot=%d write: %v", i, err)
			sl.writeErrored = true
			continue
		}
		if n <= 0 {
			continue
		}
		sl.tail = ring.Advance(sl.tail, n)
		sl.recentlySentData = true
		sl.bytesSent += uint64(n)
		s.deps.Metrics.sent(n)
	}

	for i := range s.slots {
		if s.isOccupied(i) && s.slots[i].writeErrored {
			s.dropSlot(i, ReasonWriteError)
		}
	}
}

// sweep runs once per liveness window: a slot that delivered nothing since
// the previous sweep is stale; the rest must prove delivery again.
func (s *Server) sweep(now time.Time) {
	if now.Sub(s.timer) < s.cfg.LivenessWindow {
		return
	}
	s.timer = now
	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		if !s.slots[i].recentlySentData {
			s.dropSlot(i, ReasonStale)
			continue
		}
		s.slots[i].recentlySentData = false
	}
}

func (s *Server) computeMaxUnread() int {
	ring := s.deps.Stream.Ring()
	head := s.deps.Stream.Head()
	worst := 0
	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		if u := ring.Distance(s.slots[i].tail, head); u > worst {
			worst = u
		}
	}
	return worst
}
