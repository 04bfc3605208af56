// ABOUTME: Play, Pause and Flush commands of a sink
// ABOUTME: Pause and Flush may be deferred to a future stream clock time
package sink

import (
	"context"
	"fmt"
)

// Play starts the output worker if it is not already running. Pauses still
// scheduled are cancelled; one already running finishes first.
func (s *Sink) Play() error {
	p := s.currentPort()
	if p == nil {
		return ErrNotConfigured
	}
	s.timers.CancelAll()

	s.cmd.Lock()
	defer s.cmd.Unlock()
	if s.workers.Running(workerOutput) {
		return nil
	}

	if _, err := s.workers.Go(workerOutput, func(ctx context.Context) { s.runOutput(ctx, p) }); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}
	if err := s.device.Play(); err != nil {
		s.log.Warn().Err(err).Msg("failed to resume audio device")
	}
	s.log.Debug().Msg("play")
	return nil
}

// Pause stops output at stream time at. Zero or a past time pauses now;
// a future time is applied by a scheduled task without blocking the caller.
func (s *Sink) Pause(at uint64) error {
	if at == 0 || at <= s.clock.Now() {
		s.doPause()
		return nil
	}

	s.timers.At(at, s.doPause)
	s.log.Debug().Dur("in", s.clock.Until(at)).Msg("pause scheduled")
	return nil
}

func (s *Sink) doPause() {
	s.cmd.Lock()
	defer s.cmd.Unlock()

	if !s.workers.Stop(workerOutput) {
		return
	}
	if err := s.device.Pause(); err != nil {
		s.log.Warn().Err(err).Msg("failed to pause audio device")
	}
	s.state.paused()
	s.log.Debug().Msg("paused")
}

// Flush waits until stream time at, then drops all buffered audio and
// returns the number of bytes released. A pause due at or before at is
// applied first.
func (s *Sink) Flush(ctx context.Context, at uint64) (int, error) {
	if at != 0 {
		if err := s.clock.SleepUntil(ctx, at); err != nil {
			return 0, err
		}
	}
	s.timers.Settle(s.clock.Now())

	p := s.currentPort()
	if p == nil {
		return 0, ErrNotConfigured
	}

	s.cmd.Lock()
	defer s.cmd.Unlock()
	size := p.buffer.Clear()
	s.emitFifoPositionChanged()
	s.state.flushed()

	s.log.Debug().Int("bytes", size).Msg("flushed")
	return size, nil
}
