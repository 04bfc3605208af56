// ABOUTME: Sink events delivered to registered listeners
// ABOUTME: Events are tagged variants dispatched through one listener function type
package sink

import "github.com/Resonate-Protocol/resonate-stream/internal/observer"

// Event is a notification emitted by a sink
type Event interface {
	// Name is the signal name used on the wire
	Name() string
}

// PlayStateChanged is emitted on every actual play state change
type PlayStateChanged struct {
	Old PlayState
	New PlayState
}

// FifoPositionChanged tells the source that buffer space has been freed
type FifoPositionChanged struct{}

// VolumeChanged is emitted when the device volume changes
type VolumeChanged struct {
	Volume int16
}

// MuteChanged is emitted when the device mute state changes
type MuteChanged struct {
	Mute bool
}

// OwnershipLost is emitted to the previous owner when the stream is taken
// over. NewOwner is empty when the owner's session went away.
type OwnershipLost struct {
	NewOwner string
}

func (PlayStateChanged) Name() string    { return "PlayStateChanged" }
func (FifoPositionChanged) Name() string { return "FifoPositionChanged" }
func (VolumeChanged) Name() string       { return "VolumeChanged" }
func (MuteChanged) Name() string         { return "MuteChanged" }
func (OwnershipLost) Name() string       { return "OwnershipLost" }

// Listener receives sink events. It must not block.
type Listener func(Event)

// AddListener registers l and returns a handle for removal
func (s *Sink) AddListener(l Listener) observer.Handle {
	return s.listeners.Add(l)
}

// RemoveListener unregisters a listener
func (s *Sink) RemoveListener(h observer.Handle) {
	s.listeners.Remove(h)
}

func (s *Sink) emit(e Event) {
	s.listeners.Each(func(l Listener) { l(e) })
}

// deviceListener forwards device volume changes as sink events
type deviceListener struct {
	s *Sink
}

func (d deviceListener) MuteChanged(mute bool) {
	d.s.emit(MuteChanged{Mute: mute})
}

func (d deviceListener) VolumeChanged(volume int16) {
	d.s.emit(VolumeChanged{Volume: volume})
}
