package tcpserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one Server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	state         prometheus.Gauge
	clients       prometheus.Gauge
	maxUnread     prometheus.Gauge
	accepts       prometheus.Counter
	drops         *prometheus.CounterVec
	bytesSent     prometheus.Counter
	bytesSkipped  prometheus.Counter
	bindFailures  prometheus.Counter
	forcedAdvance prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns, sub = "pvtcast", "tcp_server"
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "state",
			Help: "Lifecycle state (0=off, 1=network_started, 2=running).",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "clients",
			Help: "Occupied client slots.",
		}),
		maxUnread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "max_unread_bytes",
			Help: "Unread bytes of the slowest connected client.",
		}),
		accepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "accepts_total",
			Help: "Clients accepted into a slot.",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "drops_total",
			Help: "Clients released from a slot, by reason.",
		}, []string{"reason"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "sent_bytes_total",
			Help: "Bytes accepted by client sockets.",
		}),
		bytesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "skipped_bytes_total",
			Help: "Bytes clients never received because the producer overwrote them.",
		}),
		bindFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "bind_failures_total",
			Help: "Listener bind attempts that failed.",
		}),
		forcedAdvance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "forced_advances_total",
			Help: "Client cursors moved forward by a producer discard.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.state, m.clients, m.maxUnread, m.accepts, m.drops,
			m.bytesSent, m.bytesSkipped, m.bindFailures, m.forcedAdvance)
	}
	return m
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.state.Set(float64(s))
	}
}

func (m *Metrics) setClients(n int) {
	if m != nil {
		m.clients.Set(float64(n))
	}
}

func (m *Metrics) setMaxUnread(n int) {
	if m != nil {
		m.maxUnread.Set(float64(n))
	}
}

func (m *Metrics) accepted() {
	if m != nil {
		m.accepts.Inc()
	}
}

func (m *Metrics) dropped(r DropReason) {
	if m != nil {
		m.drops.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) sent(n int) {
	if m != nil {
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) skipped(n int) {
	if m != nil {
		m.bytesSkipped.Add(float64(n))
		m.forcedAdvance.Inc()
	}
}

func (m *Metrics) bindFailed() {
	if m != nil {
		m.bindFailures.Inc()
	}
}
