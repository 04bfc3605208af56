// ABOUTME: Source CLI that streams a file or test tone to one or more sinks
// ABOUTME: Sinks are given by name or URL, or found with mDNS discovery
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/Resonate-Protocol/resonate-stream/internal/config"
	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/discovery"
	"github.com/Resonate-Protocol/resonate-stream/pkg/player"
	"github.com/Resonate-Protocol/resonate-stream/pkg/source"
	"github.com/Resonate-Protocol/resonate-stream/pkg/transport"
)

func main() {
	fs := pflag.NewFlagSet("resonate-source", pflag.ExitOnError)

	var (
		configPath = fs.StringP("config", "c", "", "YAML config file")
		file       = fs.StringP("file", "f", "", "Audio file to stream (WAV, MP3, FLAC)")
		tone       = fs.Float64("tone", 440, "Test tone frequency in Hz when no file is given")
		duration   = fs.DurationP("duration", "d", 30*time.Second, "Test tone length")
		sinks      = fs.StringArrayP("sink", "s", nil, "Sink name or ws:// URL (repeatable)")
		discover   = fs.Duration("discover", 0, "Browse mDNS this long and stream to every sink found")
		format     = fs.String("format", "", "Preferred stream format: raw or opus")
		name       = fs.StringP("name", "n", "", "Source name reported to sinks")
		logLevel   = fs.String("log-level", "", "Log level (debug, info, warn, error)")
		logFile    = fs.String("log-file", "", "Also write logs to this file")
		jsonLogs   = fs.Bool("json-logs", false, "Log JSON even on a terminal")
	)
	fs.Parse(os.Args[1:])

	cfg, err := config.LoadSource(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if fs.Changed("sink") {
		cfg.Sinks = *sinks
	}
	if fs.Changed("discover") {
		cfg.Discover = *discover
	}
	if fs.Changed("format") {
		switch *format {
		case "raw":
			cfg.Format = capability.MediaTypeRaw
		case "opus":
			cfg.Format = capability.MediaTypeOpus
		default:
			cfg.Format = *format
		}
	}
	if fs.Changed("name") {
		cfg.Name = *name
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
	if len(cfg.Sinks) == 0 && cfg.Discover == 0 {
		fmt.Fprintln(os.Stderr, "no sinks: use --sink or --discover")
		os.Exit(2)
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		JSON:    cfg.Log.JSON,
		Service: "resonate-source",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	log := logging.WithComponent("main")

	src, title, err := openSource(*file, *tone, *duration)
	if err != nil {
		log.Error().Err(err).Msg("failed to open source")
		os.Exit(1)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, src, title, log); err != nil {
		log.Error().Err(err).Msg("streaming failed")
		os.Exit(1)
	}
}

func openSource(file string, freq float64, length time.Duration) (source.DataSource, string, error) {
	if file != "" {
		src, err := source.Open(file)
		if err != nil {
			return nil, "", err
		}
		return src, source.Title(file), nil
	}
	src, err := source.NewTone(source.ToneConfig{Frequency: freq, Length: length})
	if err != nil {
		return nil, "", err
	}
	return src, fmt.Sprintf("%.0f Hz tone", freq), nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}

func run(ctx context.Context, cfg *config.Source, src source.DataSource, title string, log zerolog.Logger) error {
	base := logging.Base()
	disc := discovery.NewManager(discovery.Config{Logger: &base})
	defer disc.Stop()

	names := cfg.Sinks
	needBrowse := cfg.Discover > 0
	for _, n := range names {
		if !isURL(n) {
			needBrowse = true
		}
	}
	if needBrowse {
		disc.Browse()
	}

	if cfg.Discover > 0 {
		log.Info().Dur("for", cfg.Discover).Msg("discovering sinks")
		select {
		case <-time.After(cfg.Discover):
		case <-ctx.Done():
			return nil
		}
		for _, info := range disc.Known() {
			names = append(names, info.Name)
		}
		if len(names) == 0 {
			return fmt.Errorf("no sinks found")
		}
	}

	resolve := func(ctx context.Context, name string) (string, error) {
		if isURL(name) {
			return name, nil
		}
		return disc.Resolve(ctx, name)
	}
	dialer := transport.NewDialer(transport.ClientConfig{
		ClientID:    cfg.ClientID,
		Name:        cfg.Name,
		CallTimeout: cfg.CallTimeout,
		Logger:      &base,
	}, resolve)

	p := player.New(player.Config{
		StartDelay:      cfg.StartDelay,
		CommandLead:     cfg.CommandLead,
		CatchUpFraction: cfg.CatchUpFraction,
		PositionRetries: cfg.PositionRetries,
		PositionBackoff: cfg.PositionBackoff,
		CallTimeout:     cfg.CallTimeout,
		Sync: clock.SyncOptions{
			Rounds:    cfg.Sync.Rounds,
			Threshold: cfg.Sync.Threshold,
			Backoff:   cfg.Sync.Backoff,
		},
		Logger: &base,
	}, dialer)
	defer p.Close()

	results := make(chan player.Event, len(names))
	removed := make(chan player.SinkRemoved, len(names))
	p.AddListener(func(e player.Event) {
		switch ev := e.(type) {
		case player.SinkAdded:
			log.Info().Str("sink", ev.Sink).Msg("sink joined")
			results <- ev
		case player.SinkAddFailed:
			log.Error().Err(ev.Err).Str("sink", ev.Sink).Msg("sink failed to join")
			results <- ev
		case player.SinkRemoved:
			log.Info().Str("sink", ev.Sink).Bool("lost", ev.Lost).Msg("sink left")
			select {
			case removed <- ev:
			default:
			}
		case player.VolumeChanged:
			log.Info().Str("sink", ev.Sink).Int16("volume", ev.Volume).Msg("volume changed")
		case player.MuteChanged:
			log.Info().Str("sink", ev.Sink).Bool("mute", ev.Mute).Msg("mute changed")
		}
	})

	if err := p.SetDataSource(src); err != nil {
		return err
	}
	p.SetPreferredFormat(cfg.Format)

	pending := 0
	for _, n := range names {
		if p.AddSink(n) {
			pending++
		}
	}
	joined := 0
	for ; pending > 0; pending-- {
		select {
		case e := <-results:
			if _, ok := e.(player.SinkAdded); ok {
				joined++
			}
		case <-ctx.Done():
			return nil
		}
	}
	if joined == 0 {
		return fmt.Errorf("no sink joined")
	}

	format := src.Format()
	length := format.Duration(src.InputSize())
	log.Info().
		Str("title", title).
		Stringer("format", format).
		Dur("length", length).
		Int("sinks", joined).
		Msg("starting playback")
	if !p.Play() {
		return fmt.Errorf("play was refused")
	}

	// the first sink starts after the start delay plus the play lead
	done := time.After(length + cfg.StartDelay + time.Duration(joined)*cfg.CommandLead)
	for {
		select {
		case <-done:
			log.Info().Msg("playback finished")
			return nil
		case <-removed:
			if p.SinkCount() == 0 {
				return fmt.Errorf("every sink left")
			}
		case <-ctx.Done():
			log.Info().Msg("interrupted, pausing")
			p.Pause()
			return nil
		}
	}
}
