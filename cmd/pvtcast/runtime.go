package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pvtcast/internal/config"
	"pvtcast/internal/indicator"
	"pvtcast/internal/stream"
	"pvtcast/internal/tcpserver"
	"pvtcast/internal/web"
)

// maxChunksPerTick bounds how much source data one tick ingests so a burst
// cannot starve client writes.
const maxChunksPerTick = 64

// liveRuntime owns the shared stream and drives the TCP server. Everything but
// apply runs on the tick goroutine.
type liveRuntime struct {
	cfg     config.Config
	buf     *stream.Buffer
	svc     *tcpserver.Server
	chunks  <-chan []byte
	led     *indicator.Indicator
	status  *web.Status
	metrics *streamMetrics
}

// newLiveRuntime wires the stream and TCP server. providers supplies the
// snapshots of components owned by the caller; the TCP server's is added here.
func newLiveRuntime(cfg config.Config, nw tcpserver.Network, chunks <-chan []byte, led *indicator.Indicator, providers web.Providers, reg prometheus.Registerer) (*liveRuntime, error) {
	buf, err := stream.NewBuffer(cfg.Stream.Capacity)
	if err != nil {
		return nil, err
	}
	modes, err := tcpserver.ParseModeMask(cfg.TCPServer.Modes)
	if err != nil {
		return nil, fmt.Errorf("tcp_server.modes: %w", err)
	}
	mode, err := tcpserver.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("mode: %w", err)
	}

	svc, err := tcpserver.New(tcpserver.Config{
		Enable:          cfg.TCPServer.Enable,
		Port:            cfg.TCPServer.Port,
		Modes:           modes,
		Mode:            mode,
		SettleDelay:     cfg.TCPServer.SettleDelay,
		LivenessWindow:  cfg.TCPServer.LivenessWindow,
		SendBufferBytes: cfg.TCPServer.SendBufferBytes,
		UserTimeout:     cfg.TCPServer.UserTimeout,
	}, tcpserver.Deps{
		Stream:         buf,
		Network:        nw,
		Metrics:        tcpserver.NewMetrics(reg),
		ClientsChanged: led.SetClients,
	})
	if err != nil {
		return nil, err
	}

	providers.TCPServer = svc.Snapshot
	status := web.NewStatus(providers)
	status.SetMode(mode.String())
	return &liveRuntime{
		cfg:     cfg,
		buf:     buf,
		svc:     svc,
		chunks:  chunks,
		led:     led,
		status:  status,
		metrics: newStreamMetrics(reg),
	}, nil
}

// Run ticks until ctx is done, then stops the server.
func (r *liveRuntime) Run(ctx context.Context) {
	t := time.NewTicker(r.cfg.TCPServer.TickInterval)
	defer t.Stop()
	log.Printf("runtime: tick loop started interval=%s capacity=%d", r.cfg.TCPServer.TickInterval, r.buf.Capacity())
	for {
		select {
		case <-ctx.Done():
			r.svc.Stop()
			return
		case now := <-t.C:
			r.tick(now)
		}
	}
}

func (r *liveRuntime) tick(now time.Time) {
	r.pullSource()
	maxUnread := r.svc.Tick(now)
	r.buf.ReportConsumerDemand(maxUnread)

	appended, discarded := r.buf.Stats()
	st := web.StreamStats{
		Capacity:       r.buf.Capacity(),
		RetainedBytes:  r.buf.Retained(),
		AppendedBytes:  appended,
		DiscardedBytes: discarded,
	}
	r.metrics.observe(st)
	r.status.MarkTick(now.UTC(), st)
}

func (r *liveRuntime) pullSource() {
	for i := 0; i < maxChunksPerTick; i++ {
		select {
		case p, ok := <-r.chunks:
			if !ok {
				log.Printf("runtime: source stopped")
				r.chunks = nil
				return
			}
			r.ingest(p)
		default:
			return
		}
	}
}

// ingest appends p and moves any client caught inside a discarded range.
// Discards must reach the server before the next drain.
func (r *liveRuntime) ingest(p []byte) {
	for _, d := range r.buf.Append(p) {
		r.svc.Retain(d)
	}
}

// apply makes the runtime-adjustable parts of cfg effective. It is safe to
// call from any goroutine.
func (r *liveRuntime) apply(cfg config.Config) error {
	mode, err := tcpserver.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	r.svc.SetMode(mode)
	r.svc.SetEnabled(cfg.TCPServer.Enable)
	r.status.SetMode(mode.String())
	log.Printf("runtime: applied mode=%s tcp_server.enable=%t", mode, cfg.TCPServer.Enable)
	return nil
}

func (r *liveRuntime) handler(settings web.SettingsStore, logs *web.LogBuffer, gatherer prometheus.Gatherer) http.Handler {
	return web.Handler(r.status, r.svc, settings, logs, gatherer)
}
