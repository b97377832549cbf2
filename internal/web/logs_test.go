package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("tcpserver: state off"))
	_, _ = b.Write([]byte(" -> network_started\nnetwork: link "))
	_, _ = b.Write([]byte("up\r\n\n"))

	lines, dropped := b.Snapshot(0)
	want := []string{"tcpserver: state off -> network_started", "network: link up"}
	if !reflect.DeepEqual(lines, want) || dropped != 0 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		_, _ = fmt.Fprintf(b, "line %d\n", i)
	}
	lines, dropped := b.Snapshot(2)
	if !reflect.DeepEqual(lines, []string{"line 3", "line 4"}) || dropped != 2 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
}

func TestLogBuffer_AsLogOutput(t *testing.T) {
	b := NewLogBuffer(10)
	l := log.New(b, "", 0)
	l.Printf("gnss: connected %s", "/dev/ttyACM0")
	lines, _ := b.Snapshot(1)
	if len(lines) != 1 || lines[0] != "gnss: connected /dev/ttyACM0" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogsHandler(t *testing.T) {
	b := NewLogBuffer(2)
	for i := 0; i < 3; i++ {
		_, _ = fmt.Fprintf(b, "l%d\n", i)
	}
	ts := httptest.NewServer(b.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "?tail=5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var out LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !reflect.DeepEqual(out.Lines, []string{"l1", "l2"}) || out.Dropped != 1 {
		t.Fatalf("out=%+v", out)
	}

	resp, err = http.Get(ts.URL + "?tail=1&format=text")
	if err != nil {
		t.Fatalf("get text: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "[dropped=1]\nl2\n" {
		t.Fatalf("body=%q", body)
	}

	resp, err = http.Get(ts.URL + "?tail=0")
	if err != nil {
		t.Fatalf("get bad tail: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
