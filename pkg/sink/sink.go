// ABOUTME: Sink construction, configuration and read-only properties
// ABOUTME: Wires the stream clock, audio device, jitter buffer and workers together
package sink

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
	"github.com/Resonate-Protocol/resonate-stream/internal/observer"
	"github.com/Resonate-Protocol/resonate-stream/internal/tasks"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/jitter"
)

var (
	ErrNotOpen               = errors.New("stream not open")
	ErrNotOwner              = errors.New("caller does not own the stream")
	ErrAlreadyOpen           = errors.New("stream already open by caller")
	ErrAlreadyConfigured     = errors.New("port already configured")
	ErrNotConfigured         = errors.New("port not configured")
	ErrConfigurationRejected = errors.New("configuration rejected")
	ErrVolumeOutOfRange      = errors.New("volume out of range")
	ErrDisabled              = errors.New("volume control disabled")
)

const (
	workerOutput = "output"
	workerDecode = "decode"
)

// Config holds sink settings
type Config struct {
	Name             string        // metrics label and log field (default "sink")
	FifoSeconds      int           // buffer depth in seconds (default 5)
	RecoveryFraction float64       // refill fraction required after an underrun (default 0.5)
	OutdatedSlack    time.Duration // chunks due sooner than this after an underrun are dropped (default 10µs)
	Decoders         decode.Options
	Clock            *clock.Clock
	Logger           *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "sink"
	}
	if c.FifoSeconds <= 1 {
		c.FifoSeconds = 5
	}
	if c.RecoveryFraction <= 0 || c.RecoveryFraction > 1 {
		c.RecoveryFraction = 0.5
	}
	if c.OutdatedSlack == 0 {
		c.OutdatedSlack = 10 * time.Microsecond
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// port is the configured half of a sink, replaced on every Connect
type port struct {
	config        capability.Capability
	decoder       decode.Decoder
	buffer        *jitter.Buffer
	format        audio.Format
	deviceFrames  int
	lowThreshold  int
	recoverAt     int
	bytesPerFrame int
}

// Sink receives a timed audio stream and renders it on an output device
type Sink struct {
	config Config
	log    zerolog.Logger
	clock  *clock.Clock
	device output.Device
	caps   []capability.Capability

	listeners *observer.Registry[Listener]
	devHandle observer.Handle
	state     *stateMachine
	workers   *tasks.Registry
	timers    *tasks.Timers

	streamMu sync.Mutex // serialises Open, Close and Release
	cmd      sync.Mutex // serialises Play, Pause and Flush
	mu       sync.Mutex
	owner    string
	port     *port

	lateChunks atomic.Int64
	lateLog    rate.Sometimes
	discardLog rate.Sometimes
	staleLog   rate.Sometimes
}

// New creates a sink rendering to device
func New(config Config, device output.Device) *Sink {
	config = config.withDefaults()
	l := logging.Or(config.Logger, "sink")

	s := &Sink{
		config:     config,
		log:        l.With().Str("sink", config.Name).Logger(),
		clock:      config.Clock,
		device:     device,
		caps:       decode.Capabilities(config.Decoders),
		listeners:  observer.New[Listener](),
		timers:     tasks.NewTimers(config.Clock),
		lateLog:    rate.Sometimes{Interval: time.Second},
		discardLog: rate.Sometimes{Interval: time.Second},
		staleLog:   rate.Sometimes{Interval: time.Second},
	}
	s.workers = tasks.NewRegistry(config.Name, &s.log)
	s.state = newStateMachine(func(from, to PlayState) {
		s.log.Debug().Stringer("old", from).Stringer("new", to).Msg("play state changed")
		metrics.PlayState.WithLabelValues(config.Name).Set(float64(to))
		s.emit(PlayStateChanged{Old: from, New: to})
	})
	s.devHandle = device.AddListener(deviceListener{s})
	return s
}

// Name returns the configured sink name
func (s *Sink) Name() string {
	return s.config.Name
}

// Clock returns the stream clock
func (s *Sink) Clock() *clock.Clock {
	return s.clock
}

// PlayState returns the current playback state
func (s *Sink) PlayState() PlayState {
	return s.state.get()
}

func (s *Sink) currentPort() *port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Configuration returns the negotiated configuration, if connected
func (s *Sink) Configuration() (capability.Capability, bool) {
	p := s.currentPort()
	if p == nil {
		return capability.Capability{}, false
	}
	return p.config, true
}

// FifoSize returns the buffer capacity in bytes, 0 when not configured
func (s *Sink) FifoSize() int {
	p := s.currentPort()
	if p == nil {
		return 0
	}
	return p.buffer.Capacity()
}

// FifoPosition returns the combined buffer occupancy in bytes
func (s *Sink) FifoPosition() int {
	p := s.currentPort()
	if p == nil {
		return 0
	}
	pos := p.buffer.CombinedSize()
	metrics.FifoPosition.WithLabelValues(s.config.Name).Set(float64(pos))
	return pos
}

// Delay returns the buffer occupancy in bytes and the device buffer in frames
func (s *Sink) Delay() (fifoPosition int, deviceFrames int) {
	p := s.currentPort()
	if p == nil {
		return 0, 0
	}
	return p.buffer.CombinedSize(), p.deviceFrames
}

// Shutdown releases the stream and stops every worker. The sink cannot be
// used afterwards.
func (s *Sink) Shutdown() {
	s.streamMu.Lock()
	owner := s.owner
	s.streamMu.Unlock()

	if owner != "" {
		s.Release(owner)
	}
	s.timers.CancelAll()
	s.workers.Close()
	s.device.RemoveListener(s.devHandle)
}

func (s *Sink) emitFifoPositionChanged() {
	metrics.FifoSignals.WithLabelValues(s.config.Name).Inc()
	s.emit(FifoPositionChanged{})
}
