// Package indicator drives a GPIO output (typically an LED) that is lit
// while at least one TCP client is connected.
package indicator

import (
	"fmt"
	"log"
	"sync"
)

type Config struct {
	Enable bool
	// Pin is BCM GPIO numbering.
	Pin int
}

type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Pin       int    `json:"pin,omitempty"`
	On        bool   `json:"on"`
	LastError string `json:"last_error,omitempty"`
}

type output interface {
	Set(on bool) error
	Close() error
}

type Indicator struct {
	cfg Config

	mu      sync.Mutex
	out     output
	on      bool
	lastErr string
}

func New(cfg Config) *Indicator {
	return &Indicator{cfg: cfg}
}

// Start claims the GPIO line. A disabled indicator does nothing.
func (in *Indicator) Start() error {
	if in == nil || !in.cfg.Enable {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.out != nil {
		return nil
	}
	out, err := openLineFn(in.cfg.Pin)
	if err != nil {
		in.lastErr = err.Error()
		return err
	}
	in.out = out
	log.Printf("indicator: enabled pin=%d", in.cfg.Pin)
	return nil
}

// SetClients lights the output when n > 0.
func (in *Indicator) SetClients(n int) {
	if in == nil {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.out == nil {
		return
	}
	on := n > 0
	if on == in.on {
		return
	}
	if err := in.out.Set(on); err != nil {
		msg := fmt.Sprintf("set pin=%d: %v", in.cfg.Pin, err)
		if msg != in.lastErr {
			log.Printf("indicator: %s", msg)
		}
		in.lastErr = msg
		return
	}
	in.on = on
	in.lastErr = ""
}

// Close turns the output off and releases the line.
func (in *Indicator) Close() error {
	if in == nil {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.out == nil {
		return nil
	}
	_ = in.out.Set(false)
	err := in.out.Close()
	in.out = nil
	in.on = false
	return err
}

func (in *Indicator) Snapshot() Snapshot {
	if in == nil {
		return Snapshot{}
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	snap := Snapshot{Enabled: in.cfg.Enable, On: in.on, LastError: in.lastErr}
	if in.cfg.Enable {
		snap.Pin = in.cfg.Pin
	}
	return snap
}
