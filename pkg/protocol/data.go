// ABOUTME: Binary audio data frames
// ABOUTME: One type byte, a big-endian presentation timestamp, then the payload
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// DataHeaderSize is the size of the binary frame header (type byte + timestamp)
	DataHeaderSize = 1 + 8

	// DataMessageType is the binary frame type of audio data
	DataMessageType = 4
)

// EncodeData builds a binary data frame
func EncodeData(timestamp uint64, payload []byte) []byte {
	frame := make([]byte, DataHeaderSize+len(payload))
	frame[0] = DataMessageType
	binary.BigEndian.PutUint64(frame[1:DataHeaderSize], timestamp)
	copy(frame[DataHeaderSize:], payload)
	return frame
}

// DecodeData splits a binary data frame. The payload aliases frame.
func DecodeData(frame []byte) (uint64, []byte, error) {
	if len(frame) < DataHeaderSize {
		return 0, nil, fmt.Errorf("data frame too short: %d bytes", len(frame))
	}
	if frame[0] != DataMessageType {
		return 0, nil, fmt.Errorf("unknown binary message type: %d", frame[0])
	}
	return binary.BigEndian.Uint64(frame[1:DataHeaderSize]), frame[DataHeaderSize:], nil
}
