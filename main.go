// ABOUTME: Entry point for the resonate-stream sink daemon
// ABOUTME: Parses flags and config, then serves a sink over websockets with metrics and mDNS
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-stream/internal/config"
	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/version"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-stream/pkg/discovery"
	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
	"github.com/Resonate-Protocol/resonate-stream/pkg/transport"
)

func main() {
	fs := pflag.NewFlagSet("resonate-stream", pflag.ExitOnError)

	var (
		configPath   = fs.StringP("config", "c", "", "YAML config file")
		name         = fs.StringP("name", "n", "", "Sink name (default: hostname)")
		friendlyName = fs.String("friendly-name", "", "Display name announced over mDNS")
		listen       = fs.StringP("listen", "l", "", "Listen address (default :8927)")
		path         = fs.String("path", "", "Websocket path (default /stream)")
		out          = fs.StringP("output", "o", "", "Audio output: oto or null")
		fifoSeconds  = fs.Int("fifo-seconds", 0, "Jitter buffer depth in seconds")
		noMDNS       = fs.Bool("no-mdns", false, "Disable mDNS advertisement")
		noOpus       = fs.Bool("no-opus", false, "Do not offer the Opus codec")
		logLevel     = fs.String("log-level", "", "Log level (debug, info, warn, error)")
		logFile      = fs.String("log-file", "", "Also write logs to this file")
		jsonLogs     = fs.Bool("json-logs", false, "Log JSON even on a terminal")
		showVersion  = fs.BoolP("version", "v", false, "Print version and exit")
	)
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.LoadSink(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// flags win over the file
	if fs.Changed("name") {
		cfg.Name = *name
	}
	if fs.Changed("friendly-name") {
		cfg.FriendlyName = *friendlyName
	}
	if fs.Changed("listen") {
		cfg.Listen = *listen
	}
	if fs.Changed("path") {
		cfg.Path = *path
	}
	if fs.Changed("output") {
		cfg.Output = *out
	}
	if fs.Changed("fifo-seconds") {
		cfg.FifoSeconds = *fifoSeconds
	}
	if *noMDNS {
		cfg.Announce = false
	}
	if *noOpus {
		cfg.Opus = false
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-file") {
		cfg.Log.File = *logFile
	}
	if *jsonLogs {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		JSON:    cfg.Log.JSON,
		Service: "resonate-sink",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	log := logging.WithComponent("main")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("sink stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("sink stopped")
}

func newDevice(cfg *config.Sink, base zerolog.Logger) output.Device {
	if cfg.Output == "null" {
		return output.NewNull(output.NullConfig{})
	}
	return output.NewOto(output.OtoConfig{BufferSize: cfg.BufferSize, Logger: &base})
}

func run(ctx context.Context, cfg *config.Sink, log zerolog.Logger) error {
	base := logging.Base()
	dev := newDevice(cfg, base)
	s := sink.New(sink.Config{
		Name:             cfg.Name,
		FifoSeconds:      cfg.FifoSeconds,
		RecoveryFraction: cfg.RecoveryFraction,
		OutdatedSlack:    cfg.OutdatedSlack,
		Decoders:         decode.Options{DisableOpus: !cfg.Opus},
		Logger:           &base,
	}, dev)
	defer s.Shutdown()

	srv := transport.NewServer(transport.ServerConfig{
		Name:         cfg.Name,
		FriendlyName: cfg.FriendlyName,
		Logger:       &base,
	}, s)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, srv)
	mux.Handle(cfg.MetricsPath, promhttp.Handler())

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	if cfg.Announce {
		port := ln.Addr().(*net.TCPAddr).Port
		disc := discovery.NewManager(discovery.Config{
			Name:         cfg.Name,
			FriendlyName: cfg.FriendlyName,
			Path:         cfg.Path,
			Port:         port,
			Logger:       &base,
		})
		if err := disc.Advertise(); err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement failed")
		}
		defer disc.Stop()
	}

	log.Info().
		Str("name", cfg.Name).
		Str("addr", ln.Addr().String()).
		Str("path", cfg.Path).
		Str("output", cfg.Output).
		Str("version", version.Version).
		Msg("sink listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		srv.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
