// ABOUTME: Per-sink volume and mute passthrough
// ABOUTME: An empty sink name addresses every sink for mute
package player

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

func (p *Player) conn(name string) (SinkConn, error) {
	ep := p.find(name)
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSink, name)
	}
	return ep.conn, nil
}

// Volume returns the volume of name
func (p *Player) Volume(ctx context.Context, name string) (int16, error) {
	c, err := p.conn(name)
	if err != nil {
		return 0, err
	}
	var v int16
	err = p.call(ctx, func(ctx context.Context) error {
		v, err = c.Volume(ctx)
		return err
	})
	return v, err
}

// SetVolume sets the volume of name
func (p *Player) SetVolume(ctx context.Context, name string, volume int16) error {
	c, err := p.conn(name)
	if err != nil {
		return err
	}
	return p.call(ctx, func(ctx context.Context) error {
		return c.SetVolume(ctx, volume)
	})
}

// VolumeRange returns the volume bounds and step of name
func (p *Player) VolumeRange(ctx context.Context, name string) (low, high, step int16, err error) {
	c, err := p.conn(name)
	if err != nil {
		return 0, 0, 0, err
	}
	err = p.call(ctx, func(ctx context.Context) error {
		low, high, step, err = c.VolumeRange(ctx)
		return err
	})
	return low, high, step, err
}

// Enabled reports whether name accepts volume control
func (p *Player) Enabled(ctx context.Context, name string) (bool, error) {
	c, err := p.conn(name)
	if err != nil {
		return false, err
	}
	var on bool
	err = p.call(ctx, func(ctx context.Context) error {
		on, err = c.Enabled(ctx)
		return err
	})
	return on, err
}

// Mute returns the mute state of name. With an empty name it reports true
// only when every sink is muted.
func (p *Player) Mute(ctx context.Context, name string) (bool, error) {
	if name != "" {
		c, err := p.conn(name)
		if err != nil {
			return false, err
		}
		var m bool
		err = p.call(ctx, func(ctx context.Context) error {
			m, err = c.Mute(ctx)
			return err
		})
		return m, err
	}

	sinks := p.openSinks()
	if len(sinks) == 0 {
		return false, ErrUnknownSink
	}
	muted := make([]bool, len(sinks))
	g, ctx := errgroup.WithContext(ctx)
	for i, ep := range sinks {
		g.Go(func() error {
			return p.call(ctx, func(ctx context.Context) error {
				m, err := ep.conn.Mute(ctx)
				muted[i] = m
				if err != nil {
					return fmt.Errorf("failed to get mute of %s: %w", ep.name, err)
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, m := range muted {
		if !m {
			return false, nil
		}
	}
	return true, nil
}

// SetMute sets the mute state of name, or of every sink when name is empty
func (p *Player) SetMute(ctx context.Context, name string, mute bool) error {
	if name != "" {
		c, err := p.conn(name)
		if err != nil {
			return err
		}
		return p.call(ctx, func(ctx context.Context) error {
			return c.SetMute(ctx, mute)
		})
	}

	sinks := p.openSinks()
	if len(sinks) == 0 {
		return ErrUnknownSink
	}
	var g errgroup.Group
	for _, ep := range sinks {
		g.Go(func() error {
			err := p.call(ctx, func(ctx context.Context) error {
				return ep.conn.SetMute(ctx, mute)
			})
			if err != nil {
				p.log.Error().Err(err).Str("sink", ep.name).Msg("set mute failed")
				return fmt.Errorf("failed to set mute of %s: %w", ep.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
