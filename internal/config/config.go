package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Mode is the receiver's current operating mode.
	Mode      string          `yaml:"mode"`
	Stream    StreamConfig    `yaml:"stream"`
	TCPServer TCPServerConfig `yaml:"tcp_server"`
	Network   NetworkConfig   `yaml:"network"`
	GNSS      GNSSConfig      `yaml:"gnss"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Web       WebConfig       `yaml:"web"`
}

type StreamConfig struct {
	Capacity int `yaml:"capacity"`
}

type TCPServerConfig struct {
	Enable bool `yaml:"enable"`
	Port   int  `yaml:"port"`
	// Modes the server is allowed to run under.
	Modes []string `yaml:"modes"`

	TickInterval   time.Duration `yaml:"tick_interval"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	LivenessWindow time.Duration `yaml:"liveness_window"`

	// Zero keeps the kernel default.
	SendBufferBytes int           `yaml:"send_buffer_bytes"`
	UserTimeout     time.Duration `yaml:"user_timeout"`
}

type NetworkConfig struct {
	// Interface may be empty to accept any non-loopback interface.
	Interface    string        `yaml:"interface"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type GNSSConfig struct {
	Source     string `yaml:"source"`
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	Addr       string `yaml:"addr"`
	ChunkBytes int    `yaml:"chunk_bytes"`
}

type IndicatorConfig struct {
	Enable bool `yaml:"enable"`
	// Pin is BCM GPIO numbering.
	Pin int `yaml:"pin"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

var knownModes = []string{"rover", "base"}

var supportedBauds = map[int]bool{
	4800: true, 9600: true, 19200: true, 38400: true, 57600: true,
	115200: true, 230400: true, 460800: true, 921600: true,
}

// Load reads path, rejecting unknown keys, then applies defaults and
// validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "rover"
	}
	if !isKnownMode(cfg.Mode) {
		return fmt.Errorf("mode must be one of %s, got %q", strings.Join(knownModes, "|"), cfg.Mode)
	}

	if cfg.Stream.Capacity == 0 {
		cfg.Stream.Capacity = 16384
	}
	if cfg.Stream.Capacity < 2 || cfg.Stream.Capacity > 16<<20 {
		return fmt.Errorf("stream.capacity must be between 2 and %d", 16<<20)
	}

	ts := &cfg.TCPServer
	if ts.Port == 0 {
		ts.Port = 2948
	}
	if ts.Port < 1 || ts.Port > 65535 {
		return fmt.Errorf("tcp_server.port must be between 1 and 65535")
	}
	if len(ts.Modes) == 0 {
		ts.Modes = append([]string(nil), knownModes...)
	}
	for i, m := range ts.Modes {
		m = strings.ToLower(strings.TrimSpace(m))
		if !isKnownMode(m) {
			return fmt.Errorf("tcp_server.modes[%d] must be one of %s, got %q", i, strings.Join(knownModes, "|"), ts.Modes[i])
		}
		ts.Modes[i] = m
	}
	if ts.TickInterval == 0 {
		ts.TickInterval = 50 * time.Millisecond
	}
	if ts.TickInterval < time.Millisecond || ts.TickInterval > time.Second {
		return fmt.Errorf("tcp_server.tick_interval must be between 1ms and 1s")
	}
	if ts.SettleDelay == 0 {
		ts.SettleDelay = time.Second
	}
	if ts.LivenessWindow == 0 {
		ts.LivenessWindow = 15 * time.Second
	}
	if ts.SettleDelay < 0 {
		return fmt.Errorf("tcp_server.settle_delay must be >= 0")
	}
	if ts.LivenessWindow <= ts.TickInterval {
		return fmt.Errorf("tcp_server.liveness_window must be greater than tcp_server.tick_interval")
	}
	if ts.SendBufferBytes < 0 {
		return fmt.Errorf("tcp_server.send_buffer_bytes must be >= 0")
	}
	if ts.UserTimeout < 0 {
		return fmt.Errorf("tcp_server.user_timeout must be >= 0")
	}

	if cfg.Network.PollInterval == 0 {
		cfg.Network.PollInterval = time.Second
	}
	if cfg.Network.PollInterval < 0 {
		return fmt.Errorf("network.poll_interval must be > 0")
	}

	g := &cfg.GNSS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "serial"
	}
	switch g.Source {
	case "serial":
		if g.Baud == 0 {
			g.Baud = 115200
		}
		if !supportedBauds[g.Baud] {
			return fmt.Errorf("gnss.baud %d is not supported", g.Baud)
		}
	case "tcp":
		if strings.TrimSpace(g.Addr) == "" {
			return fmt.Errorf("gnss.addr is required when gnss.source is 'tcp'")
		}
	default:
		return fmt.Errorf("gnss.source must be 'serial' or 'tcp', got %q", g.Source)
	}
	if g.ChunkBytes == 0 {
		g.ChunkBytes = 1024
	}
	if g.ChunkBytes < 1 || g.ChunkBytes >= cfg.Stream.Capacity {
		return fmt.Errorf("gnss.chunk_bytes must be between 1 and stream.capacity-1")
	}

	if cfg.Indicator.Pin == 0 {
		cfg.Indicator.Pin = 17
	}
	if cfg.Indicator.Pin < 0 {
		return fmt.Errorf("indicator.pin must be > 0")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}
	return nil
}

// Save validates cfg and writes it to path. The file is replaced atomically
// so a power cut never leaves a truncated config behind.
func Save(path string, cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func isKnownMode(m string) bool {
	for _, k := range knownModes {
		if m == k {
			return true
		}
	}
	return false
}
