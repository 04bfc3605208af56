// ABOUTME: Null audio device that discards PCM at the real playback rate
// ABOUTME: Used for headless sinks and tests that need hardware-like pacing
package output

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// NullConfig configures the null device
type NullConfig struct {
	BufferFrames int  // reported hardware buffer (default 4096)
	Unpaced      bool // return from Write immediately
	Disabled     bool // report the device as not controllable
}

// Null is a device without audible output
type Null struct {
	*mixer

	config NullConfig

	mu            sync.Mutex
	open          bool
	playing       bool
	sampleRate    int
	bytesPerFrame int
	deadline      time.Time
	written       atomic.Int64
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewNull creates a null device
func NewNull(config NullConfig) *Null {
	if config.BufferFrames == 0 {
		config.BufferFrames = 4096
	}
	return &Null{
		mixer:  newMixer(0, 100, 1, 100),
		config: config,
	}
}

// Open records the format
func (n *Null) Open(format string, sampleRate, channels int) (int, error) {
	if format != capability.FormatS16LE {
		return 0, fmt.Errorf("unsupported sample format: %s", format)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.open {
		return 0, fmt.Errorf("device already open")
	}
	n.open = true
	n.sampleRate = sampleRate
	n.bytesPerFrame = 2 * channels
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n.config.BufferFrames, nil
}

// Write sleeps for the duration of pcm, as hardware draining its buffer would
func (n *Null) Write(pcm []byte) error {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return ErrNotOpen
	}
	ctx := n.ctx
	var wait time.Duration
	if !n.config.Unpaced {
		now := time.Now()
		if n.deadline.Before(now) {
			n.deadline = now
		}
		frames := len(pcm) / n.bytesPerFrame
		n.deadline = n.deadline.Add(time.Duration(frames) * time.Second / time.Duration(n.sampleRate))
		// the hardware buffer absorbs writes until it is full
		bufferTime := time.Duration(n.config.BufferFrames) * time.Second / time.Duration(n.sampleRate)
		wait = time.Until(n.deadline) - bufferTime
	}
	n.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ErrNotOpen
		}
	}
	n.written.Add(int64(len(pcm)))
	return nil
}

// BytesWritten returns the total bytes accepted by Write
func (n *Null) BytesWritten() int64 {
	return n.written.Load()
}

// Play marks the device as playing
func (n *Null) Play() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = true
	return nil
}

// Pause marks the device as paused
func (n *Null) Pause() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = false
	return nil
}

// Recover resets pacing after an underrun
func (n *Null) Recover() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deadline = time.Time{}
	return nil
}

// Delay returns the frames still "playing" from earlier writes
func (n *Null) Delay() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sampleRate == 0 {
		return 0
	}
	left := time.Until(n.deadline)
	if left <= 0 {
		return 0
	}
	return int(left * time.Duration(n.sampleRate) / time.Second)
}

// FramesWanted is unknown for the null device
func (n *Null) FramesWanted() int {
	return 0
}

// Enabled reports whether volume and mute may be changed
func (n *Null) Enabled() bool {
	return !n.config.Disabled
}

// Close releases the device
func (n *Null) Close(drain bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.open {
		return nil
	}
	n.open = false
	n.playing = false
	n.deadline = time.Time{}
	n.cancel()
	return nil
}
