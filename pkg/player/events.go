// ABOUTME: Player events and the listener dispatch goroutine
// ABOUTME: Events are queued so listeners never run on network or worker goroutines
package player

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-stream/internal/observer"
)

// Event is one of the player event types below
type Event interface {
	Name() string
}

// SinkAdded reports a sink finished joining
type SinkAdded struct{ Sink string }

// SinkAddFailed reports a join that did not complete
type SinkAddFailed struct {
	Sink string
	Err  error
}

// SinkRemoved reports a sink left; Lost is set when the session dropped
type SinkRemoved struct {
	Sink string
	Lost bool
}

// VolumeChanged relays a sink volume change
type VolumeChanged struct {
	Sink   string
	Volume int16
}

// MuteChanged relays a sink mute change
type MuteChanged struct {
	Sink string
	Mute bool
}

// StateChanged reports a player state transition
type StateChanged struct{ Old, New State }

func (SinkAdded) Name() string     { return "SinkAdded" }
func (SinkAddFailed) Name() string { return "SinkAddFailed" }
func (SinkRemoved) Name() string   { return "SinkRemoved" }
func (VolumeChanged) Name() string { return "VolumeChanged" }
func (MuteChanged) Name() string   { return "MuteChanged" }
func (StateChanged) Name() string  { return "StateChanged" }

// Listener receives player events on the dispatch goroutine
type Listener func(Event)

// dispatcher delivers queued events in order on one goroutine
type dispatcher struct {
	listeners *observer.Registry[Listener]

	mu    sync.Mutex
	queue []Event

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		listeners: observer.New[Listener](),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(e Event) {
	d.mu.Lock()
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) take() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue
	d.queue = nil
	return q
}

func (d *dispatcher) deliver() {
	for _, e := range d.take() {
		d.listeners.Each(func(l Listener) { l(e) })
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.wake:
			d.deliver()
		case <-d.stop:
			d.deliver()
			return
		}
	}
}

// close delivers what is queued and stops the goroutine
func (d *dispatcher) close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

// AddListener registers l and returns a handle for removal
func (p *Player) AddListener(l Listener) observer.Handle {
	return p.events.listeners.Add(l)
}

// RemoveListener unregisters a listener
func (p *Player) RemoveListener(h observer.Handle) {
	p.events.listeners.Remove(h)
}
