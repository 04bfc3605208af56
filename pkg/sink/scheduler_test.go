// ABOUTME: Output scheduler tests for recovery thresholds and write sizing
// ABOUTME: Drives the scheduler helpers directly against a hand-built port
package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/jitter"
)

func testPort(capacity, recoverAt int) *port {
	return &port{
		buffer:        jitter.NewBuffer(capacity, bytesPerSecond, 0),
		recoverAt:     recoverAt,
		lowThreshold:  capacity * 4 / 5,
		deviceFrames:  100,
		bytesPerFrame: 4,
	}
}

func startRecovery(s *Sink, p *port) (chan bool, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- s.recoverOutput(ctx, p) }()
	return done, cancel
}

func TestRecoveryThresholdBoundary(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{Unpaced: true}))
	p := testPort(1000, 500)

	done, cancel := startRecovery(s, p)
	defer cancel()

	due := clock.Add(s.Clock().Now(), time.Second)
	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: due, Data: make([]byte, 499)}))

	select {
	case <-done:
		t.Fatal("resumed below the refill threshold")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: due + 1, Data: make([]byte, 1)}))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("did not resume at exactly the refill threshold")
	}

	front, ok := p.buffer.Front()
	require.True(t, ok)
	assert.Equal(t, due, front.Timestamp)
	assert.True(t, front.Resync, "the first chunk after recovery is resynced")
	assert.Equal(t, 500, p.buffer.CombinedSize())
}

func TestRecoveryDropsStaleChunks(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{Unpaced: true}))
	events := record(s)
	p := testPort(2000, 1000)

	now := s.Clock().Now()
	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: now - 1, Data: make([]byte, 600)}))
	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: clock.Add(now, time.Second), Data: make([]byte, 500)}))

	done, cancel := startRecovery(s, p)
	defer cancel()

	require.Eventually(t, func() bool {
		return events.count("FifoPositionChanged") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 500, p.buffer.CombinedSize(), "stale chunk dropped, rest waits for refill")

	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: clock.Add(now, 2*time.Second), Data: make([]byte, 500)}))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("recovery did not complete")
	}
	assert.Equal(t, 1, events.count("FifoPositionChanged"))
}

func TestRecoveryStops(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{Unpaced: true}))
	p := testPort(1000, 500)

	done, cancel := startRecovery(s, p)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("recovery ignored cancellation")
	}
}

func TestWriteNextPartialConsume(t *testing.T) {
	dev := output.NewNull(output.NullConfig{Unpaced: true})
	_, err := dev.Open("s16le", 44100, 2)
	require.NoError(t, err)
	defer dev.Close(false)

	s := newTestSink(t, dev)
	events := record(s)
	p := testPort(10000, 5000)
	p.lowThreshold = 500

	start := uint64(time.Hour)
	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: start, Data: make([]byte, 1000)}))

	// 100 device frames of 4 bytes
	s.writeNext(p)
	assert.Equal(t, int64(400), dev.BytesWritten())
	assert.Equal(t, Playing, s.PlayState())
	assert.Equal(t, 0, events.count("FifoPositionChanged"), "600 bytes left is above the low threshold")

	front, ok := p.buffer.Front()
	require.True(t, ok)
	assert.Equal(t, start+uint64(p.buffer.Duration(400)), front.Timestamp)

	s.writeNext(p)
	assert.Equal(t, 1, events.count("FifoPositionChanged"))

	s.writeNext(p)
	assert.Equal(t, int64(1000), dev.BytesWritten())
	assert.Equal(t, 0, p.buffer.Len())
}

func TestFailedWriteLeavesStateIdle(t *testing.T) {
	// never opened, so every write fails
	dev := output.NewNull(output.NullConfig{Unpaced: true})
	s := newTestSink(t, dev)
	events := record(s)
	p := testPort(10000, 5000)

	require.NoError(t, p.buffer.Push(jitter.Chunk{Timestamp: uint64(time.Hour), Data: make([]byte, 400)}))
	s.writeNext(p)

	assert.Equal(t, int64(0), dev.BytesWritten())
	assert.Equal(t, Idle, s.PlayState())
	assert.Equal(t, 0, events.count("PlayStateChanged"))
}
