package tcpserver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvtcast/internal/stream"
)

func TestRetain_FastForwardsOnlyCursorsInsideDiscard(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _, _ := newTestServer(t, 1000)
	s.deps.Metrics = NewMetrics(reg)

	tails := []int{120, 90, 150}
	for i, tail := range tails {
		s.occupy(i, &fakeConn{}, t0)
		s.slots[i].tail = tail
	}

	s.Retain(stream.Discard{Old: 100, New: 150})

	assert.Equal(t, 150, s.slots[0].tail)
	assert.Equal(t, 90, s.slots[1].tail)
	assert.Equal(t, 150, s.slots[2].tail)
	assert.Equal(t, uint64(30), s.slots[0].bytesSkipped)
	assert.Zero(t, s.slots[1].bytesSkipped)
	assert.Zero(t, s.slots[2].bytesSkipped)
	assert.Equal(t, 30.0, testutil.ToFloat64(s.deps.Metrics.bytesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.deps.Metrics.forcedAdvance))
}

func TestRetain_DiscardAcrossPhysicalEnd(t *testing.T) {
	s, _, _ := newTestServer(t, 100)
	s.occupy(0, &fakeConn{}, t0)
	s.occupy(1, &fakeConn{}, t0)
	s.occupy(2, &fakeConn{}, t0)
	s.slots[0].tail = 95
	s.slots[1].tail = 3
	s.slots[2].tail = 10

	s.Retain(stream.Discard{Old: 90, New: 10})

	assert.Equal(t, 10, s.slots[0].tail)
	assert.Equal(t, uint64(15), s.slots[0].bytesSkipped)
	assert.Equal(t, 10, s.slots[1].tail)
	assert.Equal(t, uint64(7), s.slots[1].bytesSkipped)
	assert.Equal(t, 10, s.slots[2].tail)
	assert.Zero(t, s.slots[2].bytesSkipped)
}

func TestRetain_IgnoresFreeSlots(t *testing.T) {
	s, _, _ := newTestServer(t, 100)
	s.slots[1].tail = 20 // stale value in a free slot
	s.Retain(stream.Discard{Old: 10, New: 30})
	assert.Equal(t, 20, s.slots[1].tail)
	assert.Equal(t, 0, s.Clients())
}

// A stalled client pins the buffer until the producer runs out of room; the
// discard then moves it forward to the oldest byte that still exists.
func TestRetain_StalledClientFollowsBufferFloor(t *testing.T) {
	s, buf, _ := newTestServer(t, 100)
	forceRunning(s, t0)

	c := &fakeConn{writeFn: func([]byte) (int, error) { return 0, nil }}
	s.occupy(0, c, t0)

	for _, d := range buf.Append(bytesFrom(0, 90)) {
		s.Retain(d)
	}
	buf.ReportConsumerDemand(s.Tick(t0.Add(ms(1))))
	require.Equal(t, 0, buf.Floor())

	discards := buf.Append(bytesFrom(90, 25))
	require.Equal(t, []stream.Discard{{Old: 0, New: 16}}, discards)
	for _, d := range discards {
		s.Retain(d)
	}

	assert.Equal(t, buf.Floor(), s.slots[0].tail)
	assert.Equal(t, 99, buf.Ring().Distance(s.slots[0].tail, buf.Head()))

	c.writeFn = nil
	s.Tick(t0.Add(ms(2)))
	s.Tick(t0.Add(ms(3)))
	assert.Equal(t, bytesFrom(16, 99), c.written)
}
