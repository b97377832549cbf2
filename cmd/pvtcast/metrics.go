package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"pvtcast/internal/web"
)

// streamMetrics mirrors the buffer's lifetime counters. The buffer belongs to
// the tick goroutine, so values are pushed once per tick rather than
// collected on scrape.
type streamMetrics struct {
	capacity  prometheus.Gauge
	retained  prometheus.Gauge
	appended  prometheus.Counter
	discarded prometheus.Counter

	lastAppended  uint64
	lastDiscarded uint64
}

func newStreamMetrics(reg prometheus.Registerer) *streamMetrics {
	const ns, sub = "pvtcast", "stream"
	m := &streamMetrics{
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "capacity_bytes",
			Help: "Size of the shared stream buffer.",
		}),
		retained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "retained_bytes",
			Help: "Bytes still demanded by the slowest client.",
		}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "appended_bytes_total",
			Help: "Receiver bytes written into the stream.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "discarded_bytes_total",
			Help: "Bytes overwritten before every client had read them.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.capacity, m.retained, m.appended, m.discarded)
	}
	return m
}

func (m *streamMetrics) observe(st web.StreamStats) {
	m.capacity.Set(float64(st.Capacity))
	m.retained.Set(float64(st.RetainedBytes))
	if d := st.AppendedBytes - m.lastAppended; d > 0 {
		m.appended.Add(float64(d))
	}
	if d := st.DiscardedBytes - m.lastDiscarded; d > 0 {
		m.discarded.Add(float64(d))
	}
	m.lastAppended = st.AppendedBytes
	m.lastDiscarded = st.DiscardedBytes
}
