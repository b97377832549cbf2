package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(start + i)
	}
	return out
}

func TestNewBuffer_RejectsTinyCapacity(t *testing.T) {
	_, err := NewBuffer(1)
	require.EqualError(t, err, "stream capacity must be >= 2, got 1")
}

func TestBuffer_AppendAndWindow(t *testing.T) {
	b, err := NewBuffer(16)
	require.NoError(t, err)

	discards := b.Append([]byte("hello"))
	assert.Empty(t, discards)
	assert.Equal(t, 5, b.Head())
	assert.Equal(t, []byte("hello"), b.Window(0, 5))
	assert.Equal(t, []byte("he"), b.Window(0, 2))
}

func TestBuffer_WindowStopsAtPhysicalEnd(t *testing.T) {
	b, err := NewBuffer(8)
	require.NoError(t, err)

	b.Append(seq(0, 6))
	b.ReportConsumerDemand(0)
	b.Append(seq(6, 4)) // wraps: offsets 6,7,0,1

	assert.Equal(t, 2, b.Head())
	assert.Equal(t, []byte{6, 7}, b.Window(6, 4))
	assert.Equal(t, []byte{8, 9}, b.Window(0, 2))
	assert.Nil(t, b.Window(8, 1))
}

func TestBuffer_NoDiscardWithoutDemandPressure(t *testing.T) {
	b, err := NewBuffer(100)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		b.ReportConsumerDemand(0)
		assert.Empty(t, b.Append(seq(i, 60)))
	}
	appended, discarded := b.Stats()
	assert.EqualValues(t, 600, appended)
	assert.EqualValues(t, 0, discarded)
}

func TestBuffer_DiscardWhenDemandPinsData(t *testing.T) {
	b, err := NewBuffer(100)
	require.NoError(t, err)

	b.Append(seq(0, 80))
	b.ReportConsumerDemand(80) // a consumer still sits at offset 0

	discards := b.Append(seq(80, 40))
	require.Len(t, discards, 1)
	// Usable capacity is 99: retained 80 + 40 = 120, so 21 bytes go.
	assert.Equal(t, Discard{Old: 0, New: 21}, discards[0])
	assert.Equal(t, 21, b.Floor())
	assert.Equal(t, 99, b.Retained())

	_, discarded := b.Stats()
	assert.EqualValues(t, 21, discarded)
}

func TestBuffer_AppendLongerThanCapacitySplits(t *testing.T) {
	// Capacity 1000, 1200 bytes before any consumer exists.
	b, err := NewBuffer(1000)
	require.NoError(t, err)

	discards := b.Append(seq(0, 1200))
	require.Len(t, discards, 1)
	assert.Equal(t, Discard{Old: 0, New: 201}, discards[0])
	assert.Equal(t, 200, b.Head())
	assert.Equal(t, 999, b.Retained())

	// The newest bytes survive.
	assert.Equal(t, seq(1200-200, 200), b.Window(0, 200))
}

func TestBuffer_ReportConsumerDemandClampsToRetained(t *testing.T) {
	b, err := NewBuffer(50)
	require.NoError(t, err)

	b.Append(seq(0, 10))
	b.ReportConsumerDemand(0)
	assert.Equal(t, 10, b.Floor())

	b.Append(seq(10, 5))
	b.ReportConsumerDemand(1000)
	assert.Equal(t, 10, b.Floor())

	b.ReportConsumerDemand(-3)
	assert.Equal(t, b.Head(), b.Floor())
}

func TestBuffer_ContentIsByteExactAcrossWrap(t *testing.T) {
	b, err := NewBuffer(10)
	require.NoError(t, err)

	var got bytes.Buffer
	tail := 0
	for i := 0; i < 7; i++ {
		b.Append(seq(i*4, 4))
		for tail != b.Head() {
			w := b.Window(tail, b.Ring().Distance(tail, b.Head()))
			got.Write(w)
			tail = b.Ring().Advance(tail, len(w))
		}
		b.ReportConsumerDemand(0)
	}
	assert.Equal(t, seq(0, 28), got.Bytes())
}
