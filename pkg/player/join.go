// ABOUTME: Sink join: session, negotiation, clock exchange and start point
// ABOUTME: Runs on a per-name task so the caller is never blocked by the network
package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/internal/metrics"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/source"
)

var errClosed = errors.New("player closed")

// AddSink starts joining name in the background. It returns false when the
// sink already joined, an operation for it is in flight, or no data source is
// set. The outcome is reported as SinkAdded or SinkAddFailed.
func (p *Player) AddSink(name string) bool {
	p.mu.Lock()
	if p.closed || p.source == nil || p.findLocked(name) != nil {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	_, err := p.ops.Go(name, func(ctx context.Context) {
		p.join(ctx, name)
	})
	return err == nil
}

// call runs fn with the per-call timeout
func (p *Player) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Player) join(ctx context.Context, name string) {
	log := p.log.With().Str("sink", name).Logger()
	ep := newEndpoint(name)

	err := func() error {
		var err error
		ep.conn, err = p.dialer.Dial(ctx, name, p.signalsFor(ep))
		if err != nil {
			return fmt.Errorf("failed to dial sink: %w", err)
		}
		return p.open(ctx, ep)
	}()
	if err != nil {
		log.Warn().Err(err).Msg("failed to add sink")
		if ep.conn != nil {
			ep.conn.Close()
		}
		ep.release()
		p.events.post(SinkAddFailed{Sink: name, Err: err})
		return
	}

	log.Info().
		Str("media_type", ep.config.Type).
		Int("fifo_size", ep.fifoSize).
		Msg("sink added")
	p.events.post(SinkAdded{Sink: name})
}

// open prepares the sink's stream and port, then places it on the timeline
func (p *Player) open(ctx context.Context, ep *endpoint) error {
	p.mu.Lock()
	src, preferred := p.source, p.preferred
	p.mu.Unlock()
	if src == nil {
		return ErrNoDataSource
	}
	ep.format = src.Format()

	if err := p.call(ctx, ep.conn.OpenStream); err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	var offered []capability.Capability
	err := p.call(ctx, func(ctx context.Context) error {
		var err error
		offered, err = ep.conn.Capabilities(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get capabilities: %w", err)
	}

	if err := p.negotiate(ep, offered, preferred); err != nil {
		return err
	}

	err = p.call(ctx, func(ctx context.Context) error {
		return ep.conn.Connect(ctx, p.config.Host, p.config.Path, ep.config)
	})
	if err != nil {
		return fmt.Errorf("failed to connect port: %w", err)
	}

	err = p.call(ctx, func(ctx context.Context) error {
		var err error
		ep.fifoSize, err = ep.conn.FifoSize(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get fifo size: %w", err)
	}

	syncOpts := p.config.Sync
	if syncOpts.Logger == nil {
		l := p.log.With().Str("sink", ep.name).Logger()
		syncOpts.Logger = &l
	}
	res, err := clock.Synchronize(ctx, p.clock, ep.conn, syncOpts)
	if err != nil {
		return fmt.Errorf("failed to synchronize clock: %w", err)
	}
	if !res.Converged {
		p.log.Warn().Str("sink", ep.name).Dur("estimate", res.Estimate).Msg("clock exchange did not converge")
	}

	return p.place(ep, src)
}

// negotiate picks the media type and configures an encoder for it, falling
// back to raw PCM when the preferred encoder cannot handle the source
func (p *Player) negotiate(ep *endpoint, offered []capability.Capability, preferred string) error {
	choice, err := capability.Select(offered, preferred)
	if err != nil {
		return fmt.Errorf("failed to select capability: %w", err)
	}

	enc, err := newEncoder(choice.Type, ep.format)
	if err != nil && choice.Type != capability.MediaTypeRaw {
		p.log.Warn().Err(err).Str("sink", ep.name).Str("media_type", choice.Type).Msg("encoder unavailable, falling back to raw")
		if _, ok := capability.Find(offered, capability.MediaTypeRaw); !ok {
			return fmt.Errorf("failed to select capability: %w", capability.ErrNoMatch)
		}
		enc, err = newEncoder(capability.MediaTypeRaw, ep.format)
	}
	if err != nil {
		return err
	}

	ep.encoder = enc
	ep.config = enc.Configuration()
	ep.packetBytes = enc.FrameSize() * ep.format.BytesPerFrame()
	return nil
}

func newEncoder(mediaType string, format audio.Format) (encode.Encoder, error) {
	enc, err := encode.New(mediaType)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	if err := enc.Configure(format); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to configure encoder: %w", err)
	}
	return enc, nil
}

// place computes the sink's start point and marks it open. The first open
// sink starts a little ahead of now from the beginning of the source; later
// sinks start from the first sink's cursor, fast-forwarded.
func (p *Player) place(ep *endpoint, src source.DataSource) error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errClosed
	}
	if p.source != src {
		p.mu.Unlock()
		return errors.New("data source changed while joining")
	}
	if ep.lost {
		p.mu.Unlock()
		return errors.New("session lost while joining")
	}

	var lead *endpoint
	for _, other := range p.sinks {
		if other.opened() {
			lead = other
			break
		}
	}

	now := p.clock.Now()
	if lead == nil {
		ep.setCursor(cursor{
			timestamp: clock.Add(now, p.config.StartDelay),
			remaining: src.InputSize(),
		})
	} else {
		ep.setCursor(catchUp(now, lead.position(), src.InputSize(), ep.format, ep.packetBytes, p.config.CatchUpFraction))
	}

	ep.setState(endpointOpened)
	p.sinks = append(p.sinks, ep)
	playing := p.state == StatePlaying
	p.mu.Unlock()

	metrics.SinksOpen.Inc()
	if playing {
		p.startEmitter(ep, src)
	}
	return nil
}

func (p *Player) signalsFor(ep *endpoint) Signals {
	name := ep.name
	return Signals{
		FifoPositionChanged: ep.signalFifo,
		VolumeChanged: func(v int16) {
			p.events.post(VolumeChanged{Sink: name, Volume: v})
		},
		MuteChanged: func(m bool) {
			p.events.post(MuteChanged{Sink: name, Mute: m})
		},
		OwnershipLost: func(owner string) {
			p.log.Warn().Str("sink", name).Str("new_owner", owner).Msg("sink taken over by another source")
			p.lose(ep)
		},
		Lost: func(err error) {
			p.log.Warn().Err(err).Str("sink", name).Msg("sink session lost")
			p.lose(ep)
		},
	}
}
