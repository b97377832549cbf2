package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pvtcast/internal/config"
	"pvtcast/internal/gnss"
	"pvtcast/internal/indicator"
	"pvtcast/internal/network"
	"pvtcast/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "/etc/pvtcast/pvtcast.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, configPath, logs); err != nil {
		log.Fatalf("pvtcast: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, configPath string, logs *web.LogBuffer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	nw := network.New(network.Config{
		Interface:    cfg.Network.Interface,
		PollInterval: cfg.Network.PollInterval,
	})
	go nw.Run(ctx)

	src, err := gnss.New(gnss.Config{
		Source:     cfg.GNSS.Source,
		Device:     cfg.GNSS.Device,
		Baud:       cfg.GNSS.Baud,
		Addr:       cfg.GNSS.Addr,
		ChunkBytes: cfg.GNSS.ChunkBytes,
	})
	if err != nil {
		return err
	}
	if err := src.Start(ctx); err != nil {
		return err
	}
	defer src.Close()

	led := indicator.New(indicator.Config{Enable: cfg.Indicator.Enable, Pin: cfg.Indicator.Pin})
	if err := led.Start(); err != nil {
		// The indicator is cosmetic; keep serving without it.
		log.Printf("indicator init failed: %v", err)
	}
	defer led.Close()

	rt, err := newLiveRuntime(cfg, nw, src.Chunks(), led, web.Providers{
		GNSS:      src.Snapshot,
		Network:   nw.Snapshot,
		Indicator: led.Snapshot,
	}, reg)
	if err != nil {
		return err
	}

	go reloadOnHangup(ctx, configPath, rt)

	go func() {
		h := rt.handler(web.SettingsStore{ConfigPath: configPath}, logs, reg)
		if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
			log.Printf("web server stopped: %v", err)
		}
	}()

	log.Printf("pvtcast starting mode=%s port=%d web=%s", cfg.Mode, cfg.TCPServer.Port, cfg.Web.Listen)
	rt.Run(ctx)
	log.Printf("pvtcast stopping")
	return nil
}

// reloadOnHangup re-reads the config on SIGHUP and applies what can change
// without a restart.
func reloadOnHangup(ctx context.Context, configPath string, rt *liveRuntime) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			if err := rt.apply(cfg); err != nil {
				log.Printf("config apply failed: %v", err)
			}
		}
	}
}
