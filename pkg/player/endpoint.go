// ABOUTME: Per-sink record kept by the player
// ABOUTME: Holds the negotiated encoder and the sink's read and timestamp cursors
package player

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/encode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
)

type endpointState int

const (
	endpointJoining endpointState = iota
	endpointOpened
	endpointClosed
)

// cursor is where a sink is on the shared timeline: the presentation time of
// its next chunk and how much input it has left to send
type cursor struct {
	timestamp uint64
	remaining int
}

// endpoint is one joined sink
type endpoint struct {
	name string
	conn SinkConn

	// set while joining, read-only once opened
	encoder     encode.Encoder
	config      capability.Capability
	format      audio.Format
	fifoSize    int
	packetBytes int

	// fifo is signalled when the sink reports low water
	fifo chan struct{}

	mu       sync.Mutex
	state    endpointState
	cur      cursor
	removing bool
	lost     bool // guarded by the player's mu
}

func newEndpoint(name string) *endpoint {
	return &endpoint{name: name, fifo: make(chan struct{}, 1)}
}

func (ep *endpoint) opened() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.state == endpointOpened
}

func (ep *endpoint) setState(s endpointState) {
	ep.mu.Lock()
	ep.state = s
	ep.mu.Unlock()
}

func (ep *endpoint) position() cursor {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.cur
}

func (ep *endpoint) setCursor(c cursor) {
	ep.mu.Lock()
	ep.cur = c
	ep.mu.Unlock()
}

func (ep *endpoint) setRemaining(n int) {
	ep.mu.Lock()
	ep.cur.remaining = n
	ep.mu.Unlock()
}

// advance moves the cursor past n input bytes
func (ep *endpoint) advance(n int) {
	ep.mu.Lock()
	ep.cur.timestamp = clock.Add(ep.cur.timestamp, ep.format.Duration(n))
	ep.cur.remaining -= n
	ep.mu.Unlock()
}

// signalFifo records a low-water notice without blocking
func (ep *endpoint) signalFifo() {
	select {
	case ep.fifo <- struct{}{}:
	default:
	}
}

// beginRemove reports whether the caller is the first to tear ep down
func (ep *endpoint) beginRemove() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.removing {
		return false
	}
	ep.removing = true
	return true
}

// release frees the encoder
func (ep *endpoint) release() {
	if ep.encoder != nil {
		ep.encoder.Close()
		ep.encoder = nil
	}
}

// catchUp computes the start cursor for a sink joining while lead is already
// sending. It skips a fraction of the data lead has queued ahead of now,
// rounded down to whole packets, and moves the timestamp back to match.
func catchUp(now uint64, lead cursor, inputSize int, format audio.Format, packetBytes int, fraction float64) cursor {
	c := lead
	if lead.timestamp <= now || packetBytes <= 0 {
		return c
	}

	diff := int(float64(lead.timestamp-now) / 1e9 * float64(format.BytesPerSecond()))
	diff = min(diff, inputSize-lead.remaining)
	diff = int(float64(diff) * fraction)
	diff -= diff % packetBytes
	if diff <= 0 {
		return c
	}

	c.timestamp -= uint64(format.Duration(diff))
	c.remaining += diff
	return c
}
