package web

import (
	"sync/atomic"
	"time"

	"pvtcast/internal/gnss"
	"pvtcast/internal/indicator"
	"pvtcast/internal/network"
	"pvtcast/internal/tcpserver"
)

// Providers supply live component snapshots. Each must be safe to call from
// any goroutine; nil providers are reported as zero values.
type Providers struct {
	TCPServer func() tcpserver.Snapshot
	GNSS      func() gnss.Snapshot
	Network   func() network.Snapshot
	Indicator func() indicator.Snapshot
}

// StreamStats is published by the tick loop, which owns the buffer.
type StreamStats struct {
	Capacity       int    `json:"capacity"`
	RetainedBytes  int    `json:"retained_bytes"`
	AppendedBytes  uint64 `json:"appended_bytes"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
}

type Status struct {
	startUnixNano int64
	lastTickNano  int64
	ticks         uint64
	mode          atomic.Value // string
	stream        atomic.Value // StreamStats
	providers     Providers
}

func NewStatus(p Providers) *Status {
	s := &Status{providers: p}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	s.stream.Store(StreamStats{})
	return s
}

func (s *Status) SetMode(mode string) {
	s.mode.Store(mode)
}

// MarkTick records one pass of the tick loop.
func (s *Status) MarkTick(nowUTC time.Time, st StreamStats) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.ticks, 1)
	s.stream.Store(st)
}

type StatusSnapshot struct {
	Service     string             `json:"service"`
	NowUTC      string             `json:"now_utc"`
	UptimeSec   int64              `json:"uptime_sec"`
	Mode        string             `json:"mode"`
	Ticks       uint64             `json:"ticks"`
	LastTickUTC string             `json:"last_tick_utc,omitempty"`
	Stream      StreamStats        `json:"stream"`
	TCPServer   tcpserver.Snapshot `json:"tcp_server"`
	GNSS        gnss.Snapshot      `json:"gnss"`
	Network     network.Snapshot   `json:"network"`
	Indicator   indicator.Snapshot `json:"indicator"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "pvtcast",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Mode:      s.mode.Load().(string),
		Ticks:     atomic.LoadUint64(&s.ticks),
		Stream:    s.stream.Load().(StreamStats),
	}
	if last := atomic.LoadInt64(&s.lastTickNano); last != 0 {
		snap.LastTickUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}

	p := s.providers
	if p.TCPServer != nil {
		snap.TCPServer = p.TCPServer()
	}
	if p.GNSS != nil {
		snap.GNSS = p.GNSS()
	}
	if p.Network != nil {
		snap.Network = p.Network()
	}
	if p.Indicator != nil {
		snap.Indicator = p.Indicator()
	}
	return snap
}
