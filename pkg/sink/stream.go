// ABOUTME: Stream ownership and clock methods of a sink
// ABOUTME: One owner at a time; a new owner takes over and the old one is notified
package sink

import (
	"time"
)

// Open claims the stream for owner. A different owner takes over the stream,
// tearing down any configured port of the previous one.
func (s *Sink) Open(owner string) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	s.mu.Lock()
	prev := s.owner
	s.mu.Unlock()

	if prev == owner {
		return ErrAlreadyOpen
	}

	if prev != "" {
		s.log.Info().Str("owner", prev).Str("new_owner", owner).Msg("stream taken over")
		s.emit(OwnershipLost{NewOwner: owner})
	}
	s.cleanup(false)

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()

	s.log.Info().Str("owner", owner).Msg("stream opened")
	return nil
}

// Close releases the stream, letting queued audio finish playing
func (s *Sink) Close(owner string) error {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	s.mu.Lock()
	current := s.owner
	s.mu.Unlock()

	if current == "" {
		return ErrNotOpen
	}
	if current != owner {
		s.log.Warn().Str("caller", owner).Str("owner", current).Msg("close from non-owner rejected")
		return ErrNotOwner
	}

	s.cleanup(true)

	s.mu.Lock()
	s.owner = ""
	s.mu.Unlock()

	s.log.Info().Str("owner", owner).Msg("stream closed")
	return nil
}

// Release tears down the stream after the owner's session went away
func (s *Sink) Release(owner string) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	s.mu.Lock()
	current := s.owner
	s.mu.Unlock()

	if current == "" || current != owner {
		return
	}

	s.emit(OwnershipLost{})
	s.cleanup(false)

	s.mu.Lock()
	s.owner = ""
	s.mu.Unlock()

	s.log.Info().Str("owner", owner).Msg("stream released after session loss")
}

// Owner returns the current owner, empty when the stream is not open
func (s *Sink) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SetTime sets the stream clock so that Now() reports t
func (s *Sink) SetTime(t uint64) {
	s.clock.SetTime(t)
}

// AdjustTime moves the stream clock by delta nanoseconds
func (s *Sink) AdjustTime(delta int64) {
	s.clock.AdjustBy(delta)
	s.log.Debug().Int64("delta_ns", delta).Int64("adjustment_ns", s.clock.Adjustment()).Msg("clock adjusted")
}

// cleanup stops the workers and releases the port. With drain it first
// waits for playback to stop and lets the device play out its buffer.
func (s *Sink) cleanup(drain bool) {
	s.timers.CancelAll()

	drainDevice := drain && s.state.get() == Playing
	if drain {
		deadline := time.Now().Add(time.Duration(s.config.FifoSeconds+1) * time.Second)
		for s.state.get() == Playing && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	s.mu.Lock()
	p := s.port
	s.port = nil
	s.mu.Unlock()

	if p != nil {
		p.buffer.Wake()
	}
	s.workers.Stop(workerOutput)
	s.workers.Stop(workerDecode)

	if p != nil {
		if err := s.device.Close(drainDevice); err != nil {
			s.log.Warn().Err(err).Msg("failed to close audio device")
		}
		if err := p.decoder.Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close decoder")
		}
		p.buffer.Clear()
	}

	s.lateChunks.Store(0)
	s.state.flushed()
}
