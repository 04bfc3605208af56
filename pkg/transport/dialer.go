// ABOUTME: player.Dialer backed by websocket clients
// ABOUTME: Resolves sink names to URLs and dials them under one source identity
package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Resonate-Protocol/resonate-stream/pkg/player"
)

// Resolver maps a sink name to its websocket URL
type Resolver func(ctx context.Context, name string) (string, error)

// StaticResolver resolves names from a fixed table
func StaticResolver(urls map[string]string) Resolver {
	return func(ctx context.Context, name string) (string, error) {
		url, ok := urls[name]
		if !ok {
			return "", fmt.Errorf("unknown sink %q", name)
		}
		return url, nil
	}
}

// Dialer dials sinks for a player
type Dialer struct {
	config  ClientConfig
	resolve Resolver
}

var _ player.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer. A client id is generated when none is set.
func NewDialer(config ClientConfig, resolve Resolver) *Dialer {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	return &Dialer{config: config, resolve: resolve}
}

// ClientID returns the identity this dialer opens streams under
func (d *Dialer) ClientID() string {
	return d.config.ClientID
}

// Dial resolves name and connects to it
func (d *Dialer) Dial(ctx context.Context, name string, signals player.Signals) (player.SinkConn, error) {
	url, err := d.resolve(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	c, err := Dial(ctx, url, d.config, signals)
	if err != nil {
		return nil, err
	}
	return c, nil
}
