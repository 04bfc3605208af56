// ABOUTME: Bounded two-stage jitter buffer: an arrival queue and a decoded queue
// ABOUTME: Both queues share one lock so the combined size never exceeds capacity
package jitter

import (
	"errors"
	"sync"
	"time"
)

// ErrOverflow is returned when a chunk would push the buffer past capacity
var ErrOverflow = errors.New("jitter buffer full")

// Buffer holds chunks in arrival order. Undecoded chunks count towards the
// combined size with a fixed estimate; decoded chunks with their real size.
type Buffer struct {
	mu              sync.Mutex
	arrivals        []Chunk
	decoded         []Chunk
	decodedSize     int
	capacity        int
	bytesPerSecond  int
	encodedEstimate int
	seq             uint64

	arrived chan struct{}
	ready   chan struct{}
}

// NewBuffer creates a buffer holding at most capacity bytes of audio at
// bytesPerSecond. encodedEstimate is the size charged per undecoded chunk.
func NewBuffer(capacity, bytesPerSecond, encodedEstimate int) *Buffer {
	return &Buffer{
		capacity:        capacity,
		bytesPerSecond:  bytesPerSecond,
		encodedEstimate: encodedEstimate,
		arrived:         make(chan struct{}, 1),
		ready:           make(chan struct{}, 1),
	}
}

// Capacity returns the maximum combined size in bytes
func (b *Buffer) Capacity() int {
	return b.capacity
}

// BytesPerSecond returns the byte rate used for timestamp arithmetic
func (b *Buffer) BytesPerSecond() int {
	return b.bytesPerSecond
}

// Duration returns the playback time represented by n bytes
func (b *Buffer) Duration(n int) time.Duration {
	if b.bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(b.bytesPerSecond))
}

func (b *Buffer) combinedLocked() int {
	return len(b.arrivals)*b.encodedEstimate + b.decodedSize
}

// CombinedSize returns decoded bytes plus the estimate for undecoded chunks
func (b *Buffer) CombinedSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.combinedLocked()
}

// DecodedSize returns the bytes ready for output
func (b *Buffer) DecodedSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.decodedSize
}

// Len returns the number of decoded chunks
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.decoded)
}

// Pending returns the number of undecoded chunks
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.arrivals)
}

// Enqueue appends an undecoded chunk to the arrival queue
func (b *Buffer) Enqueue(c Chunk) error {
	b.mu.Lock()
	if b.combinedLocked()+b.encodedEstimate > b.capacity {
		b.mu.Unlock()
		return ErrOverflow
	}
	b.seq++
	c.seq = b.seq
	b.arrivals = append(b.arrivals, c)
	b.mu.Unlock()

	notify(b.arrived)
	return nil
}

// PeekArrival returns the oldest undecoded chunk without removing it
func (b *Buffer) PeekArrival() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.arrivals) == 0 {
		return Chunk{}, false
	}
	return b.arrivals[0], true
}

// Drop removes c from the head of the arrival queue. It is a no-op when
// the queue was cleared after c was peeked.
func (b *Buffer) Drop(c Chunk) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropLocked(c)
}

func (b *Buffer) dropLocked(c Chunk) bool {
	if len(b.arrivals) == 0 || b.arrivals[0].seq != c.seq {
		return false
	}
	b.arrivals[0] = Chunk{}
	b.arrivals = b.arrivals[1:]
	return true
}

// Promote replaces the arrival chunk it was decoded from with its decoded
// form. The arrival entry is always removed; the decoded chunk is dropped
// with ErrOverflow when it does not fit. A chunk whose arrival entry is gone
// (the buffer was cleared meanwhile) is silently discarded.
func (b *Buffer) Promote(decoded Chunk) error {
	b.mu.Lock()
	if !b.dropLocked(decoded) {
		b.mu.Unlock()
		return nil
	}
	decoded.seq = 0
	err := b.pushLocked(decoded)
	b.mu.Unlock()

	if err == nil {
		notify(b.ready)
	}
	return err
}

// Push appends a decoded chunk
func (b *Buffer) Push(c Chunk) error {
	b.mu.Lock()
	err := b.pushLocked(c)
	b.mu.Unlock()

	if err == nil {
		notify(b.ready)
	}
	return err
}

func (b *Buffer) pushLocked(c Chunk) error {
	if b.combinedLocked()+c.Len() > b.capacity {
		return ErrOverflow
	}
	b.decoded = append(b.decoded, c)
	b.decodedSize += c.Len()
	return nil
}

// Front returns the oldest decoded chunk without removing it
func (b *Buffer) Front() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.decoded) == 0 {
		return Chunk{}, false
	}
	return b.decoded[0], true
}

// PopFront removes and returns the oldest decoded chunk
func (b *Buffer) PopFront() (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.decoded) == 0 {
		return Chunk{}, false
	}
	c := b.decoded[0]
	b.decoded[0] = Chunk{}
	b.decoded = b.decoded[1:]
	b.decodedSize -= c.Len()
	return c, true
}

// PushFront puts a chunk back at the head of the decoded queue. It does not
// check capacity since the chunk was just taken out.
func (b *Buffer) PushFront(c Chunk) {
	b.mu.Lock()
	b.decoded = append([]Chunk{c}, b.decoded...)
	b.decodedSize += c.Len()
	b.mu.Unlock()

	notify(b.ready)
}

// MarkResync flags the front chunk for a timestamp check
func (b *Buffer) MarkResync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.decoded) > 0 {
		b.decoded[0].Resync = true
	}
}

// ClearResync clears the flag on the front chunk
func (b *Buffer) ClearResync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.decoded) > 0 {
		b.decoded[0].Resync = false
	}
}

// PartialConsume takes up to n bytes from the front chunk. A remainder stays
// at the front with its timestamp advanced by the consumed duration. The
// returned chunk holds the consumed bytes at the original timestamp.
func (b *Buffer) PartialConsume(n int) (Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.decoded) == 0 || n <= 0 {
		return Chunk{}, false
	}

	front := &b.decoded[0]
	if n >= front.Len() {
		c := *front
		b.decoded[0] = Chunk{}
		b.decoded = b.decoded[1:]
		b.decodedSize -= c.Len()
		return c, true
	}

	out := Chunk{
		Timestamp: front.Timestamp,
		Data:      front.Data[front.Offset : front.Offset+n],
		Resync:    front.Resync,
	}
	front.Offset += n
	front.Timestamp += uint64(b.Duration(n))
	front.Resync = false
	b.decodedSize -= n
	return out, true
}

// Clear drops every chunk and returns the combined size released
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.combinedLocked()
	b.arrivals = nil
	b.decoded = nil
	b.decodedSize = 0
	return size
}

// Arrived is signalled after an undecoded chunk is enqueued
func (b *Buffer) Arrived() <-chan struct{} {
	return b.arrived
}

// Ready is signalled after a decoded chunk becomes available
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// Wake signals both wait channels, used on teardown and after a flush
func (b *Buffer) Wake() {
	notify(b.arrived)
	notify(b.ready)
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
