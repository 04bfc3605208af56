package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-stream/internal/observer"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
)

const testOwner = "player-test"

// fakeConn talks to an in-process sink
type fakeConn struct {
	sink    *sink.Sink
	signals Signals
	handle  observer.Handle
	gate    chan struct{}

	mu     sync.Mutex
	closed bool
	sends  int
}

func (c *fakeConn) relay(e sink.Event) {
	switch ev := e.(type) {
	case sink.FifoPositionChanged:
		c.signals.FifoPositionChanged()
	case sink.VolumeChanged:
		c.signals.VolumeChanged(ev.Volume)
	case sink.MuteChanged:
		c.signals.MuteChanged(ev.Mute)
	case sink.OwnershipLost:
		c.signals.OwnershipLost(ev.NewOwner)
	}
}

// drop simulates the transport losing the session
func (c *fakeConn) drop() {
	c.signals.Lost(errors.New("connection reset"))
}

func (c *fakeConn) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func (c *fakeConn) OpenStream(context.Context) error  { return c.sink.Open(testOwner) }
func (c *fakeConn) CloseStream(context.Context) error { return c.sink.Close(testOwner) }

func (c *fakeConn) SetTime(_ context.Context, t uint64) error {
	c.sink.SetTime(t)
	return nil
}

func (c *fakeConn) AdjustTime(_ context.Context, delta int64) error {
	c.sink.AdjustTime(delta)
	return nil
}

func (c *fakeConn) Capabilities(context.Context) ([]capability.Capability, error) {
	return c.sink.Capabilities(), nil
}

func (c *fakeConn) Connect(_ context.Context, host, path string, config capability.Capability) error {
	return c.sink.Connect(host, path, config)
}

func (c *fakeConn) FifoSize(context.Context) (int, error)     { return c.sink.FifoSize(), nil }
func (c *fakeConn) FifoPosition(context.Context) (int, error) { return c.sink.FifoPosition(), nil }
func (c *fakeConn) Play(context.Context) error                { return c.sink.Play() }

func (c *fakeConn) Pause(_ context.Context, at uint64) error { return c.sink.Pause(at) }

func (c *fakeConn) Flush(ctx context.Context, at uint64) (int, error) {
	return c.sink.Flush(ctx, at)
}

func (c *fakeConn) Volume(context.Context) (int16, error) { return c.sink.Volume() }

func (c *fakeConn) SetVolume(_ context.Context, v int16) error { return c.sink.SetVolume(v) }

func (c *fakeConn) VolumeRange(context.Context) (int16, int16, int16, error) {
	low, high, step := c.sink.VolumeRange()
	return low, high, step, nil
}

func (c *fakeConn) Mute(context.Context) (bool, error)      { return c.sink.Mute() }
func (c *fakeConn) SetMute(_ context.Context, m bool) error { return c.sink.SetMute(m) }
func (c *fakeConn) Enabled(context.Context) (bool, error)   { return c.sink.Enabled(), nil }

func (c *fakeConn) SendData(ctx context.Context, ts uint64, payload []byte) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	c.sends++
	c.mu.Unlock()

	c.sink.HandleData(ts, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.sink.RemoveListener(c.handle)
	}
	return nil
}

// fakeDialer resolves names to in-process sinks
type fakeDialer struct {
	mu    sync.Mutex
	sinks map[string]*sink.Sink
	devs  map[string]*output.Null
	conns map[string]*fakeConn
	gates map[string]chan struct{}
}

func newFakeDialer(t *testing.T, names ...string) *fakeDialer {
	t.Helper()
	d := &fakeDialer{
		sinks: make(map[string]*sink.Sink),
		devs:  make(map[string]*output.Null),
		conns: make(map[string]*fakeConn),
		gates: make(map[string]chan struct{}),
	}
	for _, name := range names {
		dev := output.NewNull(output.NullConfig{BufferFrames: 441})
		s := sink.New(sink.Config{Name: t.Name() + "/" + name, Clock: clock.New()}, dev)
		t.Cleanup(s.Shutdown)
		d.sinks[name] = s
		d.devs[name] = dev
	}
	return d
}

func (d *fakeDialer) Dial(_ context.Context, name string, signals Signals) (SinkConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sinks[name]
	if !ok {
		return nil, fmt.Errorf("no route to %s", name)
	}
	c := &fakeConn{sink: s, signals: signals, gate: d.gates[name]}
	c.handle = s.AddListener(c.relay)
	d.conns[name] = c
	return c, nil
}

func (d *fakeDialer) conn(name string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[name]
}

// recorder collects player events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(p *Player) *recorder {
	r := &recorder{}
	p.AddListener(func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) has(want Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == want {
			return true
		}
	}
	return false
}

func (r *recorder) waitFor(t *testing.T, want Event) {
	t.Helper()
	require.Eventually(t, func() bool { return r.has(want) }, 5*time.Second, 5*time.Millisecond,
		"waiting for %#v", want)
}

func testConfig() Config {
	return Config{
		Sync:            clock.SyncOptions{Backoff: -1},
		CommandLead:     50 * time.Millisecond,
		CallTimeout:     2 * time.Second,
		PositionBackoff: 10 * time.Millisecond,
	}
}

func (r *recorder) find(name string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Name() == name {
			return e, true
		}
	}
	return nil, false
}

func (r *recorder) waitName(t *testing.T, name string) Event {
	t.Helper()
	var got Event
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = r.find(name)
		return ok
	}, 5*time.Second, 5*time.Millisecond, "waiting for %s", name)
	return got
}
