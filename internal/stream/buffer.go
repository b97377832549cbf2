package stream

import "fmt"

// Discard describes a forced advance of the retained floor from Old to New
// because the producer ran out of room. Bytes in [Old, New) are gone.
type Discard struct {
	Old int
	New int
}

// Buffer is the shared circular byte stream.
//
// One producer appends; any number of consumers read through their own
// cursors using Head and Window. The buffer never waits for consumers: when
// an append would overrun the bytes still demanded by the slowest consumer,
// the floor moves forward and the caller gets a Discard so lagging cursors
// can be fast-forwarded.
//
// Usable capacity is Capacity()-1 so head == tail always means "nothing unread".
//
// Buffer is not safe for concurrent use; the tick loop owns it.
type Buffer struct {
	ring  Ring
	data  []byte
	head  int
	floor int

	appended  uint64
	discarded uint64
}

func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("stream capacity must be >= 2, got %d", capacity)
	}
	return &Buffer{
		ring: NewRing(capacity),
		data: make([]byte, capacity),
	}, nil
}

func (b *Buffer) Ring() Ring    { return b.ring }
func (b *Buffer) Capacity() int { return len(b.data) }
func (b *Buffer) Head() int     { return b.head }
func (b *Buffer) Floor() int    { return b.floor }

// Retained is the number of bytes between the floor and head that some
// consumer may still need.
func (b *Buffer) Retained() int {
	return b.ring.Distance(b.floor, b.head)
}

// Append copies p into the ring and advances head. Input longer than the
// usable capacity is written in pieces so every returned Discard spans less
// than one full lap. Discards are returned in the order they happened and
// must be applied to consumer cursors in that order.
func (b *Buffer) Append(p []byte) []Discard {
	var out []Discard
	limit := len(b.data) - 1
	for len(p) > 0 {
		n := min(len(p), limit)
		chunk := p[:n]
		p = p[n:]

		if over := b.Retained() + n - limit; over > 0 {
			old := b.floor
			b.floor = b.ring.Advance(b.floor, over)
			b.discarded += uint64(over)
			out = append(out, Discard{Old: old, New: b.floor})
		}

		first := copy(b.data[b.head:], chunk)
		copy(b.data, chunk[first:])
		b.head = b.ring.Advance(b.head, n)
		b.appended += uint64(n)
	}
	return out
}

// Window returns up to n bytes starting at off without crossing the physical
// end of the ring. The slice aliases the buffer and is only valid until the
// next Append.
func (b *Buffer) Window(off, n int) []byte {
	if !b.ring.Valid(off) || n <= 0 {
		return nil
	}
	n = b.ring.Contiguous(off, n)
	return b.data[off : off+n]
}

// ReportConsumerDemand records how many bytes behind head the slowest live
// consumer is. Everything older than that may be overwritten.
func (b *Buffer) ReportConsumerDemand(maxUnread int) {
	if maxUnread < 0 {
		maxUnread = 0
	}
	if r := b.Retained(); maxUnread > r {
		maxUnread = r
	}
	b.floor = b.ring.Advance(b.head, b.ring.Size()-maxUnread)
}

// Stats returns lifetime counters.
func (b *Buffer) Stats() (appended, discarded uint64) {
	return b.appended, b.discarded
}
