// ABOUTME: Structured logging setup shared by every component
// ABOUTME: Configures one zerolog base logger and hands out component loggers
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config captures options for configuring the base logger
type Config struct {
	Level   string    // "debug", "info", ... (defaults to LOG_LEVEL or info)
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry
	Console bool      // force human readable output
	JSON    bool      // never use human readable output
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the base logger exactly once
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		name := cfg.Level
		if name == "" {
			name = os.Getenv("LOG_LEVEL")
		}
		if name != "" {
			if parsed, err := zerolog.ParseLevel(name); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}
		if !cfg.JSON && (cfg.Console || isTerminal(writer)) {
			writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
		}

		service := cfg.Service
		if service == "" {
			service = "resonate-stream"
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

// Base returns the configured base logger
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a child logger annotated with the component name
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// Or returns l annotated with the component name, or a fresh component logger when l is nil
func Or(l *zerolog.Logger, component string) zerolog.Logger {
	if l == nil {
		return WithComponent(component)
	}
	return l.With().Str("component", component).Logger()
}

// Options are the logging settings binaries expose
type Options struct {
	Level   string
	File    string // also write logs here
	JSON    bool
	Service string
}

// Setup configures the base logger for a binary. The returned func closes
// the log file.
func Setup(opts Options) (func(), error) {
	var w io.Writer = os.Stdout
	closer := func() {}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = func() { f.Close() }
	}

	Configure(Config{
		Level:   opts.Level,
		Output:  w,
		Service: opts.Service,
		Console: !opts.JSON && isatty.IsTerminal(os.Stdout.Fd()),
		JSON:    opts.JSON,
	})
	return closer, nil
}
