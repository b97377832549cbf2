package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"pvtcast/internal/config"
	"pvtcast/internal/tcpserver"
)

// TCPServerControl is the part of the TCP server the API may touch.
type TCPServerControl interface {
	Snapshot() tcpserver.Snapshot
	SetEnabled(enable bool)
}

// SettingsStore persists runtime changes to the YAML config. An empty
// ConfigPath makes changes runtime-only.
type SettingsStore struct {
	ConfigPath string
}

func (s SettingsStore) persistent() bool {
	return strings.TrimSpace(s.ConfigPath) != ""
}

func (s SettingsStore) load() (config.Config, error) {
	return config.Load(s.ConfigPath)
}

func (s SettingsStore) save(cfg config.Config) error {
	return config.Save(s.ConfigPath, cfg)
}

// TCPServerPayloadIn is the POST schema; enable is required.
type TCPServerPayloadIn struct {
	Enable *bool `json:"enable"`
}

type TCPServerPayload struct {
	Enable    bool   `json:"enable"`
	Persisted bool   `json:"persisted"`
	State     string `json:"state"`
	Port      int    `json:"port"`
	Clients   int    `json:"clients"`
}

func decodeTCPServerPayloadStrict(body []byte) (TCPServerPayloadIn, error) {
	var p TCPServerPayloadIn
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return TCPServerPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return TCPServerPayloadIn{}, errors.New("invalid json: trailing data")
	}
	if p.Enable == nil {
		return TCPServerPayloadIn{}, errors.New("enable is required")
	}
	return p, nil
}

func tcpServerPayload(tcp TCPServerControl, persisted bool) TCPServerPayload {
	snap := tcp.Snapshot()
	return TCPServerPayload{
		Enable:    snap.Enabled,
		Persisted: persisted,
		State:     snap.State,
		Port:      snap.Port,
		Clients:   len(snap.Clients),
	}
}

func tcpServerHandler(tcp TCPServerControl, settings SettingsStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, tcpServerPayload(tcp, settings.persistent()))
			return
		}

		if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
			http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
			return
		}
		p, err := decodeTCPServerPayloadStrict(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Disk first: a change that cannot be saved is not applied.
		if settings.persistent() {
			cfg, err := settings.load()
			if err != nil {
				http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
				return
			}
			cfg.TCPServer.Enable = *p.Enable
			if err := settings.save(cfg); err != nil {
				http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
				return
			}
		}
		tcp.SetEnabled(*p.Enable)
		log.Printf("web: tcp_server enable=%t persisted=%t", *p.Enable, settings.persistent())

		writeJSON(w, http.StatusOK, tcpServerPayload(tcp, settings.persistent()))
	})
}
