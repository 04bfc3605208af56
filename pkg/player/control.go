// ABOUTME: Global play and pause across all open sinks
// ABOUTME: Pause flushes each sink and rewinds its read cursor by what was discarded
package player

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
)

// Play starts emission on every open sink from one shared timestamp placed
// far enough ahead for each sink to receive its play command. Sinks after
// the first are aligned to the first sink's read cursor.
func (p *Player) Play() bool {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.state == StatePlaying {
		p.mu.Unlock()
		return true
	}
	if p.source == nil {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	// flushes from the last pause must land before emission restarts
	p.flushes.Wait()

	p.mu.Lock()
	src := p.source
	start := clock.Add(p.clock.Now(), time.Duration(len(p.sinks))*p.config.CommandLead)
	p.mu.Unlock()

	var starting []*endpoint
	for _, ep := range p.openSinks() {
		if !p.emitting(ep) {
			starting = append(starting, ep)
		}
	}

	var g errgroup.Group
	for _, ep := range starting {
		g.Go(func() error {
			if err := p.call(context.Background(), ep.conn.Play); err != nil {
				p.log.Error().Err(err).Str("sink", ep.name).Msg("play failed")
			}
			return nil
		})
	}
	g.Wait()

	remaining := -1
	for _, ep := range starting {
		c := ep.position()
		if remaining < 0 {
			remaining = c.remaining
		} else {
			c.remaining = remaining
		}
		c.timestamp = start
		ep.setCursor(c)
		p.startEmitter(ep, src)
	}

	p.mu.Lock()
	p.setStateLocked(StatePlaying)
	p.mu.Unlock()

	if now := p.clock.Now(); now > start {
		p.log.Warn().Dur("late_by", time.Duration(now-start)).Msg("play commands finished after start time")
	}
	return true
}

// Pause suspends every emitting sink at a shared future time, then flushes
// each one slightly later. Returns false when the player is not playing or
// paused.
func (p *Player) Pause() bool {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.state != StatePlaying {
		paused := p.state == StatePaused
		p.mu.Unlock()
		return paused
	}
	pauseAt := clock.Add(p.clock.Now(), time.Duration(len(p.sinks))*p.config.CommandLead)
	flushAt := clock.Add(pauseAt, p.config.FlushDelay)
	p.mu.Unlock()

	var pausing []*endpoint
	for _, ep := range p.openSinks() {
		if p.emitting(ep) {
			pausing = append(pausing, ep)
		}
	}

	var g errgroup.Group
	for _, ep := range pausing {
		g.Go(func() error {
			err := p.call(context.Background(), func(ctx context.Context) error {
				return ep.conn.Pause(ctx, pauseAt)
			})
			if err != nil {
				p.log.Error().Err(err).Str("sink", ep.name).Msg("pause failed")
			}
			p.emitters.Stop(ep.name)
			return nil
		})
	}
	g.Wait()

	p.mu.Lock()
	p.setStateLocked(StatePaused)
	p.mu.Unlock()

	for _, ep := range pausing {
		p.startFlush(ep, flushAt)
	}

	if now := p.clock.Now(); now > pauseAt {
		p.log.Warn().Dur("late_by", time.Duration(now-pauseAt)).Msg("pause commands finished after pause time")
	}
	return true
}

// startFlush asks ep to discard its buffer at the given time without
// blocking the caller
func (p *Player) startFlush(ep *endpoint, at uint64) {
	_, err := p.flushes.Go(ep.name, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout+p.clock.Until(at))
		defer cancel()

		n, err := ep.conn.Flush(ctx, at)
		if err != nil {
			p.log.Error().Err(err).Str("sink", ep.name).Msg("flush failed")
			return
		}
		p.flushed(ep, n)
	})
	if err != nil {
		p.log.Warn().Err(err).Str("sink", ep.name).Msg("flush not started")
	}
}

// flushed rewinds ep's read cursor by the whole packets the sink discarded.
// A reply that arrives after playback resumed is stale and ignored.
func (p *Player) flushed(ep *endpoint, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePaused || p.source == nil {
		p.log.Debug().Str("sink", ep.name).Int("bytes", n).Msg("ignoring stale flush reply")
		return
	}
	if !ep.opened() || ep.packetBytes <= 0 {
		return
	}

	n -= n % ep.packetBytes
	inputSize := p.source.InputSize()
	c := ep.position()
	if c.remaining+n < inputSize {
		c.remaining += n
	} else {
		c.remaining = inputSize
	}
	ep.setRemaining(c.remaining)

	p.log.Debug().Str("sink", ep.name).Int("rewound", n).Int("remaining", c.remaining).Msg("flush rewound cursor")
}
