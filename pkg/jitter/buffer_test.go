// ABOUTME: Jitter buffer tests
// ABOUTME: Covers capacity, FIFO ordering, partial consumption and concurrent clears
package jitter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 44.1kHz stereo s16le
const testBPS = 176400

func chunkOf(ts uint64, size int) Chunk {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return Chunk{Timestamp: ts, Data: data}
}

func TestPushRespectsCapacity(t *testing.T) {
	capacity := 10000
	b := NewBuffer(capacity, testBPS, 0)

	// capacity+1000 bytes in 11 chunks of 1000
	var accepted []uint64
	for i := 0; i < 11; i++ {
		err := b.Push(chunkOf(uint64(i), 1000))
		if err == nil {
			accepted = append(accepted, uint64(i))
		} else {
			assert.ErrorIs(t, err, ErrOverflow)
		}
		assert.LessOrEqual(t, b.CombinedSize(), capacity)
	}

	assert.Equal(t, capacity, b.CombinedSize())
	assert.Len(t, accepted, 10)

	for _, want := range accepted {
		c, ok := b.PopFront()
		require.True(t, ok)
		assert.Equal(t, want, c.Timestamp)
	}
	_, ok := b.PopFront()
	assert.False(t, ok, "the overflowing chunk must be absent")
}

func TestUndecodedEstimateCountsTowardsCapacity(t *testing.T) {
	b := NewBuffer(4000, testBPS, 1500)

	require.NoError(t, b.Enqueue(chunkOf(1, 10)))
	require.NoError(t, b.Enqueue(chunkOf(2, 10)))
	assert.Equal(t, 3000, b.CombinedSize())

	assert.ErrorIs(t, b.Enqueue(chunkOf(3, 10)), ErrOverflow)
	assert.ErrorIs(t, b.Push(chunkOf(4, 1001)), ErrOverflow)
	require.NoError(t, b.Push(chunkOf(5, 1000)))
	assert.Equal(t, 4000, b.CombinedSize())
	assert.Equal(t, 2, b.Pending())
}

func TestPromoteReplacesEstimate(t *testing.T) {
	b := NewBuffer(4500, testBPS, 1500)
	require.NoError(t, b.Enqueue(chunkOf(7, 10)))

	arrival, ok := b.PeekArrival()
	require.True(t, ok)
	assert.Equal(t, uint64(7), arrival.Timestamp)

	decoded := arrival
	decoded.Data = make([]byte, 3000)
	require.NoError(t, b.Promote(decoded))
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 3000, b.DecodedSize())

	select {
	case <-b.Ready():
	default:
		t.Fatal("ready signal not raised")
	}

	// 3000 decoded plus one 1500 estimate fills the buffer exactly
	require.NoError(t, b.Enqueue(chunkOf(8, 10)))
	assert.Equal(t, 4500, b.CombinedSize())
	arrival, _ = b.PeekArrival()
	arrival.Data = make([]byte, 1501)
	assert.ErrorIs(t, b.Promote(arrival), ErrOverflow)
	assert.Equal(t, 0, b.Pending(), "arrival entry is removed even when discarded")
	assert.Equal(t, 3000, b.CombinedSize())
}

func TestPromoteAfterClearIsDiscarded(t *testing.T) {
	b := NewBuffer(1<<20, testBPS, 100)
	require.NoError(t, b.Enqueue(chunkOf(1, 10)))
	stale, ok := b.PeekArrival()
	require.True(t, ok)

	b.Clear()
	require.NoError(t, b.Enqueue(chunkOf(2, 10)))

	require.NoError(t, b.Promote(stale))
	assert.Equal(t, 0, b.Len(), "decoded data from before the clear must not be queued")
	assert.Equal(t, 1, b.Pending())
	assert.False(t, b.Drop(stale))

	fresh, _ := b.PeekArrival()
	assert.True(t, b.Drop(fresh))
	assert.Equal(t, 0, b.Pending())
}

func TestFIFOOrder(t *testing.T) {
	b := NewBuffer(1<<20, testBPS, 0)
	for i := 1; i <= 50; i++ {
		require.NoError(t, b.Push(chunkOf(uint64(i*1000), 100)))
	}

	var last uint64
	for b.Len() > 0 {
		c, ok := b.PopFront()
		require.True(t, ok)
		assert.Greater(t, c.Timestamp, last)
		last = c.Timestamp
	}
}

func TestPartialConsumeAdvancesTimestamp(t *testing.T) {
	b := NewBuffer(1<<20, testBPS, 0)
	start := uint64(5 * time.Second)
	require.NoError(t, b.Push(chunkOf(start, 17640)))

	// 1764 bytes is 10ms at 176400 B/s
	out, ok := b.PartialConsume(1764)
	require.True(t, ok)
	assert.Equal(t, start, out.Timestamp)
	assert.Equal(t, 1764, out.Len())
	assert.Equal(t, byte(0), out.Bytes()[0])

	front, ok := b.Front()
	require.True(t, ok)
	assert.Equal(t, start+uint64(10*time.Millisecond), front.Timestamp)
	assert.Equal(t, 17640-1764, front.Len())
	assert.Equal(t, byte(1764%256), front.Bytes()[0])
	assert.Equal(t, 17640-1764, b.DecodedSize())

	// consuming more than is left pops the whole chunk
	out, ok = b.PartialConsume(1 << 20)
	require.True(t, ok)
	assert.Equal(t, 17640-1764, out.Len())
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.DecodedSize())
}

func TestPushFrontAndResync(t *testing.T) {
	b := NewBuffer(1<<20, testBPS, 0)
	require.NoError(t, b.Push(chunkOf(2, 10)))

	c := chunkOf(1, 10)
	c.Resync = true
	b.PushFront(c)

	front, ok := b.Front()
	require.True(t, ok)
	assert.Equal(t, uint64(1), front.Timestamp)
	assert.True(t, front.Resync)

	b.ClearResync()
	front, _ = b.Front()
	assert.False(t, front.Resync)
	assert.Equal(t, 20, b.DecodedSize())
}

func TestClearReturnsCombinedSize(t *testing.T) {
	b := NewBuffer(1<<20, testBPS, 100)
	require.NoError(t, b.Push(chunkOf(1, 1000)))
	require.NoError(t, b.Enqueue(chunkOf(2, 10)))

	assert.Equal(t, 1100, b.Clear())
	assert.Equal(t, 0, b.CombinedSize())
	assert.Equal(t, 0, b.Clear())
}

func TestClearDuringPush(t *testing.T) {
	capacity := 50000
	b := NewBuffer(capacity, testBPS, 500)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			_ = b.Push(chunkOf(uint64(i), 700))
			_ = b.Enqueue(chunkOf(uint64(i), 10))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Clear()
			assert.LessOrEqual(t, b.CombinedSize(), capacity)
		}
	}()
	wg.Wait()

	assert.LessOrEqual(t, b.CombinedSize(), capacity)
}

func TestDuration(t *testing.T) {
	b := NewBuffer(0, testBPS, 0)
	assert.Equal(t, time.Second, b.Duration(testBPS))
	assert.Equal(t, time.Duration(0), NewBuffer(0, 0, 0).Duration(100))
}
