// ABOUTME: Remote sink contract consumed by the player
// ABOUTME: Implemented by the transport client and by in-process fakes in tests
package player

import (
	"context"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
)

// Signals are notifications a sink sends without being asked.
// Callbacks run on the connection's receive path and must not block.
type Signals struct {
	FifoPositionChanged func()
	VolumeChanged       func(volume int16)
	MuteChanged         func(mute bool)
	OwnershipLost       func(newOwner string)
	// Lost is called once when the session drops without a Close
	Lost func(err error)
}

// SinkConn is a session with one remote sink
type SinkConn interface {
	clock.Peer

	OpenStream(ctx context.Context) error
	CloseStream(ctx context.Context) error

	Capabilities(ctx context.Context) ([]capability.Capability, error)
	Connect(ctx context.Context, host, path string, config capability.Capability) error

	FifoSize(ctx context.Context) (int, error)
	FifoPosition(ctx context.Context) (int, error)

	Play(ctx context.Context) error
	Pause(ctx context.Context, at uint64) error
	Flush(ctx context.Context, at uint64) (int, error)

	Volume(ctx context.Context) (int16, error)
	SetVolume(ctx context.Context, volume int16) error
	VolumeRange(ctx context.Context) (low, high, step int16, err error)
	Mute(ctx context.Context) (bool, error)
	SetMute(ctx context.Context, mute bool) error
	Enabled(ctx context.Context) (bool, error)

	// SendData ships one encoded chunk stamped with its presentation time
	SendData(ctx context.Context, timestamp uint64, payload []byte) error

	// Close ends the session
	Close() error
}

// Dialer establishes sessions with named sinks
type Dialer interface {
	Dial(ctx context.Context, name string, signals Signals) (SinkConn, error)
}
