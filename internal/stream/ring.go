package stream

// Ring does offset arithmetic modulo a fixed capacity.
//
// All offsets passed in must already be in [0, Size()). Ring holds no data;
// it is shared by the producer-side Buffer and by every consumer cursor so the
// modulo logic lives in exactly one place.
type Ring struct {
	size int
}

func NewRing(size int) Ring {
	if size <= 0 {
		size = 1
	}
	return Ring{size: size}
}

func (r Ring) Size() int { return r.size }

// Advance returns off moved forward by n, wrapped.
func (r Ring) Advance(off, n int) int {
	return (off + n%r.size) % r.size
}

// Distance returns how many bytes lie between from (inclusive) and to
// (exclusive) walking forward.
func (r Ring) Distance(from, to int) int {
	d := to - from
	if d < 0 {
		d += r.size
	}
	return d
}

// Contains reports whether off lies in the circular half-open range
// [start, end). An empty range (start == end) contains nothing.
func (r Ring) Contains(start, end, off int) bool {
	return r.Distance(start, off) < r.Distance(start, end)
}

// Contiguous returns the length of the longest run starting at off that is
// at most n bytes and does not cross the physical end of the ring.
func (r Ring) Contiguous(off, n int) int {
	return min(n, r.size-off)
}

// Valid reports whether off is a legal offset.
func (r Ring) Valid(off int) bool {
	return off >= 0 && off < r.size
}
