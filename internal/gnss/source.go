package gnss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
)

type Config struct {
	// Source is "serial" or "tcp". Empty means serial.
	Source string

	// Device may be empty to auto-detect /dev/ttyACM* and /dev/ttyUSB*.
	Device string
	Baud   int

	// Addr is host:port when Source is tcp.
	Addr string

	// ChunkBytes bounds the size of each read.
	ChunkBytes int
}

type Snapshot struct {
	Source    string `json:"source"`
	Device    string `json:"device,omitempty"`
	Baud      int    `json:"baud,omitempty"`
	Addr      string `json:"addr,omitempty"`
	Connected bool   `json:"connected"`

	Bytes      uint64 `json:"bytes"`
	Chunks     uint64 `json:"chunks"`
	Reconnects uint64 `json:"reconnects"`

	LastDataUTC string `json:"last_data_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

var (
	openSerialFn = func(path string, baud int) (io.ReadCloser, error) { return openSerial(path, baud) }
	dialFn       = func(ctx context.Context, addr string) (io.ReadCloser, error) {
		d := &net.Dialer{Timeout: 2 * time.Second}
		return d.DialContext(ctx, "tcp", addr)
	}

	backoffMin = 250 * time.Millisecond
	backoffMax = 10 * time.Second

	detectCandidates = defaultCandidates()
)

// Source reads the receiver on its own goroutine and delivers chunks on a
// channel. The channel is closed when the reader stops.
type Source struct {
	cfg    Config
	chunks chan []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu      sync.Mutex
	closer  io.Closer
	started bool
}

func New(cfg Config) (*Source, error) {
	src := strings.ToLower(strings.TrimSpace(cfg.Source))
	if src == "" {
		src = SourceSerial
	}
	switch src {
	case SourceSerial:
		if cfg.Baud == 0 {
			cfg.Baud = 115200
		}
	case SourceTCP:
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("gnss: addr is required for source=tcp")
		}
	default:
		return nil, fmt.Errorf("gnss: unknown source %q", cfg.Source)
	}
	cfg.Source = src
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 1024
	}

	s := &Source{cfg: cfg, chunks: make(chan []byte, 64)}
	s.last.Store(s.baseSnapshot())
	return s, nil
}

func (s *Source) baseSnapshot() Snapshot {
	snap := Snapshot{Source: s.cfg.Source}
	if s.cfg.Source == SourceTCP {
		snap.Addr = s.cfg.Addr
	} else {
		snap.Device = s.cfg.Device
		snap.Baud = s.cfg.Baud
	}
	return snap
}

// Chunks delivers receiver bytes in arrival order. Each slice is owned by
// the receiver. A Source runs once; Start after Close is a no-op.
func (s *Source) Chunks() <-chan []byte { return s.chunks }

func (s *Source) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(childCtx)
	return nil
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.chunks)

	log.Printf("gnss: reader started source=%s", s.describe())
	backoff := backoffMin
	opened := false
	for {
		if ctx.Err() != nil {
			return
		}

		rc, label, err := s.open(ctx)
		if err != nil {
			s.setError(err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
			continue
		}
		backoff = backoffMin
		if opened {
			s.update(func(snap *Snapshot) { snap.Reconnects++ })
		}
		opened = true

		s.setCloser(rc)
		if ctx.Err() != nil {
			_ = rc.Close()
			return
		}
		log.Printf("gnss: connected %s", label)
		s.update(func(snap *Snapshot) {
			snap.Connected = true
			snap.LastError = ""
			if s.cfg.Source == SourceSerial {
				snap.Device = label
			}
		})

		err = s.pump(ctx, rc)
		_ = rc.Close()
		s.setCloser(nil)
		s.update(func(snap *Snapshot) { snap.Connected = false })
		if ctx.Err() != nil {
			return
		}
		s.setError(fmt.Sprintf("read %s: %v", label, err))
		log.Printf("gnss: disconnected %s: %v", label, err)
	}
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, string, error) {
	if s.cfg.Source == SourceTCP {
		rc, err := dialFn(ctx, s.cfg.Addr)
		if err != nil {
			return nil, "", fmt.Errorf("dial addr=%s: %w", s.cfg.Addr, err)
		}
		return rc, s.cfg.Addr, nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, "", errors.New("auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	rc, err := openSerialFn(device, s.cfg.Baud)
	if err != nil {
		return nil, "", fmt.Errorf("open device=%s baud=%d: %w", device, s.cfg.Baud, err)
	}
	return rc, device, nil
}

// pump copies reads into chunks until the reader fails or ctx ends.
func (s *Source) pump(ctx context.Context, r io.Reader) error {
	buf := make([]byte, s.cfg.ChunkBytes)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
			now := time.Now().UTC().Format(time.RFC3339Nano)
			s.update(func(snap *Snapshot) {
				snap.Bytes += uint64(n)
				snap.Chunks++
				snap.LastDataUTC = now
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}

func (s *Source) describe() string {
	if s.cfg.Source == SourceTCP {
		return "tcp addr=" + s.cfg.Addr
	}
	if s.cfg.Device == "" {
		return fmt.Sprintf("serial device=auto baud=%d", s.cfg.Baud)
	}
	return fmt.Sprintf("serial device=%s baud=%d", s.cfg.Device, s.cfg.Baud)
}

// Close stops the reader and waits for it. Chunks is closed afterwards.
func (s *Source) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	// Cancel before taking the closer: the reader checks ctx after
	// publishing a new closer, so one of the two sides closes it.
	cancel()

	s.mu.Lock()
	closer := s.closer
	s.closer = nil
	s.mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Source) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap, _ := s.last.Load().(Snapshot)
	return snap
}

func (s *Source) setCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closer = c
}

func (s *Source) setError(msg string) {
	s.update(func(snap *Snapshot) { snap.LastError = msg })
}

// update is only called from the reader goroutine.
func (s *Source) update(fn func(*Snapshot)) {
	snap := s.Snapshot()
	fn(&snap)
	s.last.Store(snap)
}

func defaultCandidates() []string {
	var out []string
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			out = append(out, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	return out
}

func autoDetectDevice() string {
	for _, p := range detectCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
