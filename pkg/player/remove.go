// ABOUTME: Sink removal, explicit or after the session is lost
// ABOUTME: Teardown runs on a task and skips the stream close when the sink is unreachable
package player

import (
	"context"
	"slices"

	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
)

// RemoveSink starts removing name. It returns false when the sink is unknown
// or an operation for it is already in flight. Completion is reported as
// SinkRemoved.
func (p *Player) RemoveSink(name string) bool {
	ep := p.find(name)
	if ep == nil {
		p.log.Warn().Str("sink", name).Msg("remove sink: not found")
		return false
	}

	_, err := p.ops.Go(name, func(ctx context.Context) {
		p.teardown(ctx, ep, false)
	})
	return err == nil
}

// RemoveAllSinks starts removing every sink; false if there are none
func (p *Player) RemoveAllSinks() bool {
	p.mu.Lock()
	names := make([]string, 0, len(p.sinks))
	for _, ep := range p.sinks {
		names = append(names, ep.name)
	}
	p.mu.Unlock()

	for _, name := range names {
		p.RemoveSink(name)
	}
	return len(names) > 0
}

// SinkCount returns the number of joined sinks
func (p *Player) SinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sinks)
}

// lose handles a dropped session. A sink still joining fails its join;
// a joined sink is removed without a stream close.
func (p *Player) lose(ep *endpoint) {
	p.mu.Lock()
	ep.lost = true
	placed := slices.Contains(p.sinks, ep)
	p.mu.Unlock()

	if !placed {
		return
	}
	if _, err := p.losses.Go(ep.name, func(ctx context.Context) {
		p.teardown(ctx, ep, true)
	}); err != nil {
		p.log.Debug().Err(err).Str("sink", ep.name).Msg("sink loss already being handled")
	}
}

// teardown stops emission, closes the remote stream unless lost, and drops
// the sink from the player
func (p *Player) teardown(ctx context.Context, ep *endpoint, lost bool) {
	if !ep.beginRemove() {
		return
	}
	log := p.log.With().Str("sink", ep.name).Bool("lost", lost).Logger()

	p.ctl.Lock()
	p.emitters.Stop(ep.name)
	p.mu.Lock()
	p.sinks = slices.DeleteFunc(p.sinks, func(e *endpoint) bool { return e == ep })
	p.mu.Unlock()
	ep.setState(endpointClosed)
	p.ctl.Unlock()

	if !lost {
		if err := p.call(ctx, ep.conn.CloseStream); err != nil {
			log.Warn().Err(err).Msg("failed to close stream")
		}
	}
	if err := ep.conn.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close session")
	}
	ep.release()

	metrics.SinksOpen.Dec()
	metrics.Forget(ep.name)
	log.Info().Msg("sink removed")
	p.events.post(SinkRemoved{Sink: ep.name, Lost: lost})
}
