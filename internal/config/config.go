// ABOUTME: YAML configuration for the sink daemon and the source CLI
// ABOUTME: Files are parsed strictly and missing values fall back to defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// Logging selects log level and destination
type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // also write logs here
	JSON  bool   `yaml:"json"` // never use the console writer
}

// Sync tunes the clock exchange
type Sync struct {
	Rounds    int           `yaml:"rounds"`
	Threshold time.Duration `yaml:"threshold"`
	Backoff   time.Duration `yaml:"backoff"`
}

// Sink configures the sink daemon
type Sink struct {
	Name         string `yaml:"name"`
	FriendlyName string `yaml:"friendly_name"`
	Listen       string `yaml:"listen"`
	Path         string `yaml:"path"`
	MetricsPath  string `yaml:"metrics_path"`
	Announce     bool   `yaml:"announce"`

	Output           string        `yaml:"output"` // "oto" or "null"
	BufferSize       time.Duration `yaml:"buffer_size"`
	FifoSeconds      int           `yaml:"fifo_seconds"`
	RecoveryFraction float64       `yaml:"recovery_fraction"`
	OutdatedSlack    time.Duration `yaml:"outdated_slack"`
	Opus             bool          `yaml:"opus"`

	Log Logging `yaml:"log"`
}

// Source configures the source CLI
type Source struct {
	Name     string        `yaml:"name"`
	ClientID string        `yaml:"client_id"`
	Sinks    []string      `yaml:"sinks"` // names, or ws:// URLs
	Discover time.Duration `yaml:"discover"`
	Format   string        `yaml:"format"`

	StartDelay      time.Duration `yaml:"start_delay"`
	CommandLead     time.Duration `yaml:"command_lead"`
	CatchUpFraction float64       `yaml:"catch_up_fraction"`
	PositionRetries int           `yaml:"position_retries"`
	PositionBackoff time.Duration `yaml:"position_backoff"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	Sync            Sync          `yaml:"sync"`

	Log Logging `yaml:"log"`
}

// DefaultSink returns the sink defaults
func DefaultSink() *Sink {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "resonate-sink"
	}
	return &Sink{
		Name:             host,
		Listen:           ":8927",
		Path:             "/stream",
		MetricsPath:      "/metrics",
		Announce:         true,
		Output:           "oto",
		BufferSize:       100 * time.Millisecond,
		FifoSeconds:      5,
		RecoveryFraction: 0.5,
		OutdatedSlack:    10 * time.Microsecond,
		Opus:             true,
		Log:              Logging{Level: "info"},
	}
}

// DefaultSource returns the source defaults
func DefaultSource() *Source {
	return &Source{
		Name:            "resonate-source",
		Format:          capability.MediaTypeRaw,
		StartDelay:      100 * time.Millisecond,
		CommandLead:     250 * time.Millisecond,
		CatchUpFraction: 0.9,
		PositionRetries: 15,
		PositionBackoff: 2 * time.Second,
		CallTimeout:     5 * time.Second,
		Sync: Sync{
			Rounds:    5,
			Threshold: 10 * time.Millisecond,
			Backoff:   time.Second,
		},
		Log: Logging{Level: "info"},
	}
}

// LoadSink reads a sink config file over the defaults. An empty path
// returns the defaults.
func LoadSink(path string) (*Sink, error) {
	cfg := DefaultSink()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSource reads a source config file over the defaults. An empty path
// returns the defaults.
func LoadSource(path string) (*Source, error) {
	cfg := DefaultSource()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string, into interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks values the daemon cannot run with
func (c *Sink) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("sink name must not be empty")
	}
	switch c.Output {
	case "oto", "null":
	default:
		return fmt.Errorf("unknown output %q (want oto or null)", c.Output)
	}
	if c.FifoSeconds < 2 {
		return fmt.Errorf("fifo_seconds must be at least 2, got %d", c.FifoSeconds)
	}
	if c.RecoveryFraction <= 0 || c.RecoveryFraction > 1 {
		return fmt.Errorf("recovery_fraction must be in (0, 1], got %g", c.RecoveryFraction)
	}
	return nil
}

// Validate checks values the source cannot run with
func (c *Source) Validate() error {
	switch c.Format {
	case capability.MediaTypeRaw, capability.MediaTypeOpus:
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	if c.CatchUpFraction <= 0 || c.CatchUpFraction > 1 {
		return fmt.Errorf("catch_up_fraction must be in (0, 1], got %g", c.CatchUpFraction)
	}
	if c.Discover < 0 {
		return fmt.Errorf("discover must not be negative")
	}
	return nil
}
