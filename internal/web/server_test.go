package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pvtcast/internal/gnss"
	"pvtcast/internal/tcpserver"
)

type fakeTCP struct {
	mu      sync.Mutex
	enabled bool
	sets    []bool
}

func (f *fakeTCP) Snapshot() tcpserver.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return tcpserver.Snapshot{
		Enabled: f.enabled,
		State:   "running",
		Port:    2948,
		Clients: []tcpserver.ClientSnapshot{{Slot: 0, RemoteAddr: "10.0.0.9:40000"}},
	}
}

func (f *fakeTCP) SetEnabled(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = v
	f.sets = append(f.sets, v)
}

func (f *fakeTCP) recorded() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.sets...)
}

func newTestStatus(tcp *fakeTCP) *Status {
	st := NewStatus(Providers{
		TCPServer: tcp.Snapshot,
		GNSS: func() gnss.Snapshot {
			return gnss.Snapshot{Source: "serial", Device: "/dev/ttyACM0", Connected: true, Bytes: 1234}
		},
	})
	st.SetMode("rover")
	return st
}

func writeTempConfigFile(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return p
}

func TestAPIStatus(t *testing.T) {
	tcp := &fakeTCP{enabled: true}
	st := newTestStatus(tcp)
	st.MarkTick(time.Time{}, StreamStats{Capacity: 16384, RetainedBytes: 10, AppendedBytes: 99})

	ts := httptest.NewServer(Handler(st, tcp, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "pvtcast" || snap.Mode != "rover" {
		t.Fatalf("service=%q mode=%q", snap.Service, snap.Mode)
	}
	if snap.Ticks != 1 || snap.LastTickUTC == "" || snap.Stream.AppendedBytes != 99 {
		t.Fatalf("tick info=%+v stream=%+v", snap.LastTickUTC, snap.Stream)
	}
	if snap.TCPServer.State != "running" || len(snap.TCPServer.Clients) != 1 {
		t.Fatalf("tcp_server=%+v", snap.TCPServer)
	}
	if snap.GNSS.Bytes != 1234 || !snap.GNSS.Connected {
		t.Fatalf("gnss=%+v", snap.GNSS)
	}
}

func TestAPIStatus_RejectsPost(t *testing.T) {
	ts := httptest.NewServer(Handler(newTestStatus(&fakeTCP{}), nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != "GET" {
		t.Fatalf("status=%d allow=%q", resp.StatusCode, resp.Header.Get("Allow"))
	}
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(newTestStatus(&fakeTCP{}), nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), "tcp_server=running port=2948 clients=1") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}

	resp2, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp2.StatusCode)
	}
}

func TestAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(newTestStatus(&fakeTCP{}), nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get about: %v", err)
	}
	defer resp.Body.Close()
	var out AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Service != "pvtcast" || out.GoVersion == "" {
		t.Fatalf("about=%+v", out)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "pvtcast_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	ts := httptest.NewServer(Handler(newTestStatus(&fakeTCP{}), nil, SettingsStore{}, nil, reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "pvtcast_test_total 3") {
		t.Fatalf("metrics body=%s", b)
	}
}

func TestMetrics_AbsentWithoutGatherer(t *testing.T) {
	ts := httptest.NewServer(Handler(newTestStatus(&fakeTCP{}), nil, SettingsStore{}, nil, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
