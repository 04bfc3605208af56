// ABOUTME: Output scheduler: writes decoded PCM to the device at presentation time
// ABOUTME: Handles underrun with refill-based recovery, stale drops and resync sleeps
package sink

import (
	"context"

	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
)

// waitFor blocks until cond holds or ctx is done. cond is re-checked on
// every buffer wake.
func waitFor(ctx context.Context, ready <-chan struct{}, cond func() bool) bool {
	for !cond() {
		select {
		case <-ready:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

func (s *Sink) runOutput(ctx context.Context, p *port) {
	buf := p.buffer
	notEmpty := func() bool { return buf.Len() > 0 }

	if !waitFor(ctx, buf.Ready(), notEmpty) {
		return
	}
	if front, ok := buf.Front(); ok {
		if err := s.clock.SleepUntil(ctx, front.Timestamp); err != nil {
			return
		}
		s.log.Debug().Uint64("at", s.clock.Now()).Msg("playback started")
	}

	underrun := false
	for ctx.Err() == nil {
		if buf.Len() == 0 {
			if !underrun {
				s.log.Warn().Uint64("at", s.clock.Now()).Msg("buffer underrun")
				metrics.Underruns.WithLabelValues(s.config.Name).Inc()
			}
			underrun = true
			s.state.underrun()

			if !waitFor(ctx, buf.Ready(), notEmpty) {
				return
			}
			continue
		}

		if underrun {
			if !s.recoverOutput(ctx, p) {
				return
			}
			underrun = false
		}

		front, ok := buf.Front()
		if !ok {
			continue
		}
		if front.Resync {
			if now := s.clock.Now(); front.Timestamp > now {
				s.log.Warn().
					Uint64("until", front.Timestamp).
					Dur("sleep", s.clock.Until(front.Timestamp)).
					Msg("resync, sleeping until chunk is due")
				if err := s.clock.SleepUntil(ctx, front.Timestamp); err != nil {
					return
				}
			} else {
				s.log.Warn().Msg("encountered outdated chunk for resync")
			}
			// a flush may have emptied the buffer while sleeping
			if buf.Len() == 0 {
				continue
			}
			buf.ClearResync()
		}

		s.writeNext(p)
	}
}

// recoverOutput waits for the buffer to refill after an underrun, dropping
// chunks that went stale meanwhile. It returns false when stopped.
func (s *Sink) recoverOutput(ctx context.Context, p *port) bool {
	buf := p.buffer
	refilled := func() bool {
		return buf.CombinedSize() >= p.recoverAt && buf.Len() > 0
	}

	for {
		if !waitFor(ctx, buf.Ready(), refilled) {
			return false
		}

		c, ok := buf.PopFront()
		if !ok {
			continue
		}
		if c.Timestamp < clock.Add(s.clock.Now(), s.config.OutdatedSlack) {
			metrics.StaleDrops.WithLabelValues(s.config.Name).Inc()
			s.staleLog.Do(func() {
				s.log.Warn().Uint64("timestamp", c.Timestamp).Msg("dropping outdated chunk during underrun recovery")
			})
			s.emitFifoPositionChanged()
			continue
		}

		c.Resync = true
		buf.PushFront(c)
		if err := s.device.Recover(); err != nil {
			s.log.Warn().Err(err).Msg("failed to recover audio device")
		}
		s.log.Info().Int("fifo_position", buf.CombinedSize()).Msg("recovered from underrun")
		return true
	}
}

// writeNext writes as much of the front chunk as the device wants
func (s *Sink) writeNext(p *port) {
	buf := p.buffer
	size := buf.DecodedSize()

	want := p.deviceFrames * p.bytesPerFrame
	if frames := s.device.FramesWanted(); frames > 0 {
		want = max(want, frames*p.bytesPerFrame)
	}
	if want <= 0 {
		want = size
	}
	want = min(want, size)

	c, ok := buf.PartialConsume(want)
	if !ok {
		return
	}

	if size-c.Len() <= p.lowThreshold {
		s.emitFifoPositionChanged()
	}
	pcm := c.Bytes()
	if err := s.device.Write(pcm); err != nil {
		s.log.Debug().Err(err).Msg("device write failed")
		return
	}
	s.state.written()
	metrics.BytesWritten.WithLabelValues(s.config.Name).Add(float64(len(pcm)))
}
