// ABOUTME: Per-sink emission worker
// ABOUTME: Primes the sink FIFO, then refills it each time the sink signals low water
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
	"github.com/Resonate-Protocol/resonate-stream/pkg/source"
)

// startEmitter launches the worker for ep unless one is running
func (p *Player) startEmitter(ep *endpoint, src source.DataSource) {
	_, err := p.emitters.Go(ep.name, func(ctx context.Context) {
		if err := p.emit(ctx, ep, src); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Str("sink", ep.name).Msg("emission stopped")
		}
	})
	if err != nil {
		p.log.Debug().Err(err).Str("sink", ep.name).Msg("emitter not started")
	}
}

// emitting reports whether ep has a running worker
func (p *Player) emitting(ep *endpoint) bool {
	return p.emitters.Running(ep.name)
}

type emission struct {
	p   *Player
	ep  *endpoint
	src source.DataSource
	buf []byte
}

func (p *Player) emit(ctx context.Context, ep *endpoint, src source.DataSource) error {
	e := &emission{p: p, ep: ep, src: src, buf: make([]byte, ep.packetBytes)}
	log := p.log.With().Str("sink", ep.name).Logger()
	log.Debug().Int("packet_bytes", ep.packetBytes).Int("fifo_size", ep.fifoSize).Msg("emission started")

	// prime: fill the FIFO without waiting for the sink
	if _, err := e.burst(ctx, ep.fifoSize, false); err != nil {
		return err
	}

	for ctx.Err() == nil && ep.position().remaining > 0 {
		select {
		case <-ep.fifo:
		case <-ctx.Done():
			return nil
		}

		pos, err := e.fifoPosition(ctx)
		if err != nil {
			return err
		}
		if _, err := e.burst(ctx, ep.fifoSize-pos, true); err != nil {
			return err
		}
	}

	log.Debug().Msg("emission finished")
	return nil
}

// fifoPosition asks the sink how full its FIFO is, retrying on timeouts
func (e *emission) fifoPosition(ctx context.Context) (int, error) {
	cfg := e.p.config
	var lastErr error
	for i := 0; i < cfg.PositionRetries; i++ {
		var pos int
		err := e.p.call(ctx, func(ctx context.Context) error {
			var err error
			pos, err = e.ep.conn.FifoPosition(ctx)
			return err
		})
		if err == nil {
			return pos, nil
		}
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return 0, fmt.Errorf("failed to get fifo position: %w", err)
		}

		lastErr = err
		e.p.log.Warn().Err(err).Str("sink", e.ep.name).Int("attempt", i+1).Msg("fifo position timed out")
		if !sleep(ctx, cfg.PositionBackoff) {
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("failed to get fifo position after %d attempts: %w", cfg.PositionRetries, lastErr)
}

// burst sends whole packets while they fit in budget bytes. In steady state
// packets already behind the clock are skipped but still advance the cursor.
func (e *emission) burst(ctx context.Context, budget int, skipOutdated bool) (int, error) {
	ep := e.ep
	emitted := 0
	for ctx.Err() == nil && emitted+ep.packetBytes <= budget {
		cur := ep.position()
		if cur.remaining <= 0 {
			break
		}
		if !e.src.IsDataReady() {
			if !sleep(ctx, e.p.config.DataWait) {
				break
			}
			continue
		}

		offset := e.src.InputSize() - cur.remaining
		n, err := e.src.ReadAt(e.buf, int64(offset))
		if err != nil && !errors.Is(err, io.EOF) {
			return emitted, fmt.Errorf("failed to read source at %d: %w", offset, err)
		}
		if n == 0 {
			ep.setRemaining(0)
			break
		}

		payload, err := ep.encoder.Encode(e.buf[:n])
		if err != nil {
			return emitted, fmt.Errorf("failed to encode: %w", err)
		}

		if skipOutdated && cur.timestamp < e.p.clock.Now() {
			e.p.log.Warn().
				Str("sink", ep.name).
				Dur("outdated_by", time.Duration(e.p.clock.Now()-cur.timestamp)).
				Msg("skipping outdated audio")
			metrics.OutdatedSkipped.WithLabelValues(ep.name).Inc()
		} else {
			if err := ep.conn.SendData(ctx, cur.timestamp, payload); err != nil {
				return emitted, fmt.Errorf("failed to send data: %w", err)
			}
			metrics.BytesEmitted.WithLabelValues(ep.name).Add(float64(n))
			emitted += n
		}
		ep.advance(n)
	}
	return emitted, nil
}

// sleep waits d or until ctx is done; false when cancelled
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
