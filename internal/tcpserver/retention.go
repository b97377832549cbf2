package tcpserver

import (
	"pvtcast/internal/stream"
)

// Retain applies a producer discard: any occupied slot whose cursor points
// into [d.Old, d.New) is moved to d.New so it never reads overwritten bytes.
// Cursors outside the range are already past the discard and stay put.
func (s *Server) Retain(d stream.Discard) {
	ring := s.deps.Stream.Ring()
	for i := range s.slots {
		if !s.isOccupied(i) {
			continue
		}
		sl := &s.slots[i]
		if !ring.Contains(d.Old, d.New, sl.tail) {
			continue
		}
		lost := ring.Distance(sl.tail, d.New)
		sl.tail = d.New
		sl.bytesSkipped += uint64(lost)
		s.deps.Metrics.skipped(lost)
	}
}
