// ABOUTME: Data arrival and the decode worker
// ABOUTME: Late chunks are dropped on arrival; on-time chunks are decoded into the jitter buffer
package sink

import (
	"context"
	"errors"

	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
	"github.com/Resonate-Protocol/resonate-stream/pkg/jitter"
)

// HandleData accepts one encoded chunk due at timestamp. The sink takes
// ownership of payload.
func (s *Sink) HandleData(timestamp uint64, payload []byte) {
	p := s.currentPort()
	if p == nil {
		s.log.Debug().Msg("not configured, ignoring data")
		return
	}

	now := s.clock.Now()
	if timestamp < now {
		s.lateLog.Do(func() {
			s.log.Warn().Uint64("late_ns", now-timestamp).Msg("dropping data that is already out of date")
		})
		metrics.LateChunks.WithLabelValues(s.config.Name).Inc()
		s.lateChunks.Add(1)
		s.emitFifoPositionChanged()
		return
	}

	c := jitter.Chunk{Timestamp: timestamp, Data: payload}
	if s.lateChunks.Swap(0) > 0 {
		c.Resync = true
	}

	if err := p.buffer.Enqueue(c); err != nil {
		s.discard("arrival", p, len(payload))
	}
}

func (s *Sink) discard(stage string, p *port, size int) {
	metrics.Discards.WithLabelValues(s.config.Name, stage).Inc()
	s.discardLog.Do(func() {
		s.log.Warn().
			Str("stage", stage).
			Int("capacity", p.buffer.Capacity()).
			Int("size", p.buffer.CombinedSize()).
			Int("data_size", size).
			Msg("buffer is full, discarding received data")
	})
}

// runDecoder moves chunks from the arrival queue to the decoded queue
func (s *Sink) runDecoder(ctx context.Context, p *port) {
	buf := p.buffer
	for ctx.Err() == nil {
		c, ok := buf.PeekArrival()
		if !ok {
			select {
			case <-buf.Arrived():
				continue
			case <-ctx.Done():
				return
			}
		}

		pcm, err := p.decoder.Decode(c.Bytes())
		if err != nil {
			s.log.Warn().Err(err).Uint64("timestamp", c.Timestamp).Msg("failed to decode chunk")
			buf.Drop(c)
			continue
		}

		c.Data = pcm
		c.Offset = 0
		if err := buf.Promote(c); errors.Is(err, jitter.ErrOverflow) {
			s.discard("decoded", p, len(pcm))
		}
	}
}
