// ABOUTME: Port configuration: capability offers and Connect
// ABOUTME: Connect validates a configuration, opens the device and starts the workers
package sink

import (
	"context"
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/jitter"
)

// Capabilities returns the configurations this sink accepts
func (s *Sink) Capabilities() []capability.Capability {
	out := make([]capability.Capability, len(s.caps))
	copy(out, s.caps)
	return out
}

// Connect configures the port with a concrete configuration. host and path
// name the source object and are only logged.
func (s *Sink) Connect(host, path string, config capability.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner == "" {
		return ErrNotOpen
	}
	if s.port != nil {
		return ErrAlreadyConfigured
	}
	if !capability.MatchConfiguration(s.caps, config) {
		s.log.Warn().Stringer("config", config).Msg("configuration does not match any capability")
		return ErrConfigurationRejected
	}

	rate, channels, format, err := capability.PCMParams(config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationRejected, err)
	}
	if format != capability.FormatS16LE {
		return fmt.Errorf("%w: unsupported audio format %s", ErrConfigurationRejected, format)
	}
	f := audio.S16LE(rate, channels)

	dec, err := decode.New(config.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigurationRejected, err)
	}
	if err := dec.Configure(config); err != nil {
		return fmt.Errorf("failed to configure decoder: %w", err)
	}

	frames, err := s.device.Open(format, rate, channels)
	if err != nil {
		dec.Close()
		return fmt.Errorf("failed to open audio device: %w", err)
	}

	bps := f.BytesPerSecond()
	capacity := bps * s.config.FifoSeconds
	p := &port{
		config:        config,
		decoder:       dec,
		buffer:        jitter.NewBuffer(capacity, bps, dec.FrameSize()*f.BytesPerFrame()),
		format:        f,
		deviceFrames:  frames,
		lowThreshold:  bps * (s.config.FifoSeconds - 1),
		recoverAt:     int(float64(capacity) * s.config.RecoveryFraction),
		bytesPerFrame: f.BytesPerFrame(),
	}
	s.port = p

	if _, err := s.workers.Go(workerOutput, func(ctx context.Context) { s.runOutput(ctx, p) }); err != nil {
		s.log.Warn().Err(err).Msg("output worker not started")
	}
	if _, err := s.workers.Go(workerDecode, func(ctx context.Context) { s.runDecoder(ctx, p) }); err != nil {
		s.log.Warn().Err(err).Msg("decode worker not started")
	}

	s.log.Info().
		Str("host", host).
		Str("path", path).
		Stringer("config", config).
		Int("fifo_bytes", capacity).
		Int("device_frames", frames).
		Msg("port configured")
	return nil
}
