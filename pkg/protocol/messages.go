// ABOUTME: Resonate stream protocol message type definitions
// ABOUTME: Envelope, handshake, method parameters and signal payloads
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// Envelope kinds
const (
	KindHello  = "hello"
	KindCall   = "call"
	KindReply  = "reply"
	KindSignal = "signal"
)

// Method names
const (
	MethodOpen                = "stream.open"
	MethodClose               = "stream.close"
	MethodSetTime             = "clock.set_time"
	MethodAdjustTime          = "clock.adjust_time"
	MethodCapabilities        = "port.capabilities"
	MethodConnect             = "port.connect"
	MethodFifoSize            = "sink.fifo_size"
	MethodFifoPosition        = "sink.fifo_position"
	MethodDelay               = "sink.delay"
	MethodPlay                = "sink.play"
	MethodPause               = "sink.pause"
	MethodFlush               = "sink.flush"
	MethodVolume              = "volume.get"
	MethodSetVolume           = "volume.set"
	MethodVolumeRange         = "volume.range"
	MethodAdjustVolume        = "volume.adjust"
	MethodAdjustVolumePercent = "volume.adjust_percent"
	MethodMute                = "volume.mute"
	MethodSetMute             = "volume.set_mute"
	MethodEnabled             = "volume.enabled"
)

// Signal names
const (
	SignalPlayStateChanged    = "PlayStateChanged"
	SignalFifoPositionChanged = "FifoPositionChanged"
	SignalVolumeChanged       = "VolumeChanged"
	SignalMuteChanged         = "MuteChanged"
	SignalOwnershipLost       = "OwnershipLost"
)

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Kind    string          `json:"kind"`
	ID      uint64          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`  // method or signal name
	Error   string          `json:"error,omitempty"` // reply error text
	Code    string          `json:"code,omitempty"`  // reply error code
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message with payload marshalled to JSON
func NewMessage(kind, name string, id uint64, payload interface{}) (Message, error) {
	msg := Message{Kind: kind, Name: name, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Name, err)
	}
	return nil
}

// Hello is sent by the source right after connecting
type Hello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  uint16 `json:"version"`
}

// HelloReply is the sink's answer to Hello
type HelloReply struct {
	SessionID    string `json:"session_id"`
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name"`
	Version      uint16 `json:"version"`
	Product      string `json:"product"`
	Manufacturer string `json:"manufacturer"`
}

// SetTimeParams carries clock.set_time
type SetTimeParams struct {
	Time uint64 `json:"time"`
}

// AdjustTimeParams carries clock.adjust_time
type AdjustTimeParams struct {
	Delta int64 `json:"delta"`
}

// ConnectParams carries port.connect
type ConnectParams struct {
	Host          string                `json:"host"`
	Path          string                `json:"path"`
	Configuration capability.Capability `json:"configuration"`
}

// TimeParams carries sink.pause and sink.flush
type TimeParams struct {
	At uint64 `json:"at"`
}

// SizeResult is returned by fifo queries and flush
type SizeResult struct {
	Bytes int `json:"bytes"`
}

// DelayResult is returned by sink.delay
type DelayResult struct {
	FifoPosition int `json:"fifo_position"`
	DeviceFrames int `json:"device_frames"`
}

// VolumeParams carries volume.set and volume.adjust
type VolumeParams struct {
	Volume int16 `json:"volume"`
}

// PercentParams carries volume.adjust_percent
type PercentParams struct {
	Change float64 `json:"change"`
}

// VolumeRange is returned by volume.range
type VolumeRange struct {
	Low  int16 `json:"low"`
	High int16 `json:"high"`
	Step int16 `json:"step"`
}

// MuteParams carries volume.set_mute and the MuteChanged signal
type MuteParams struct {
	Mute bool `json:"mute"`
}

// EnabledResult is returned by volume.enabled
type EnabledResult struct {
	Enabled bool `json:"enabled"`
}

// PlayStateChanged is the payload of the PlayStateChanged signal
type PlayStateChanged struct {
	Old uint8 `json:"old"`
	New uint8 `json:"new"`
}

// OwnershipLost is the payload of the OwnershipLost signal
type OwnershipLost struct {
	NewOwner string `json:"new_owner"`
}
