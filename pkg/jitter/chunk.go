// ABOUTME: Timestamped audio chunk carried between network, decoder and output
// ABOUTME: A chunk owns its payload; Offset marks how much has been consumed
package jitter

// Chunk is a payload scheduled for presentation at Timestamp (stream clock nanos)
type Chunk struct {
	Timestamp uint64
	Data      []byte
	Offset    int
	Resync    bool // timestamp must be re-checked against the clock before use

	seq uint64 // arrival sequence, set by Enqueue
}

// Len returns the unconsumed payload size
func (c Chunk) Len() int {
	return len(c.Data) - c.Offset
}

// Bytes returns the unconsumed payload
func (c Chunk) Bytes() []byte {
	return c.Data[c.Offset:]
}
