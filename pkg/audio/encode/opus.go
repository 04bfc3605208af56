// ABOUTME: Opus audio encoder
// ABOUTME: Encodes 20ms s16le packets to Opus
package encode

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// maxPacketSize bounds one encoded Opus packet
const maxPacketSize = 4000

// Opus encodes audio/opus
type Opus struct {
	encoder *opus.Encoder
	format  audio.Format
	pcm     []int16
}

// Configure creates the underlying libopus encoder. Only 48 kHz is offered by sinks.
func (e *Opus) Configure(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid opus format: %w", err)
	}
	if format.SampleRate != 48000 {
		return fmt.Errorf("opus requires 48000 Hz input, got %d", format.SampleRate)
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}

	e.encoder = enc
	e.format = format
	e.pcm = make([]int16, decode.OpusFrameSize*format.Channels)
	return nil
}

// Configuration describes the encoded stream
func (e *Opus) Configuration() capability.Capability {
	return capability.Configuration(capability.MediaTypeOpus, byte(e.format.Channels), uint16(e.format.SampleRate))
}

// FrameSize returns the 20ms packet size
func (e *Opus) FrameSize() int {
	return decode.OpusFrameSize
}

// Encode encodes one packet; a short final packet is padded with silence
func (e *Opus) Encode(pcm []byte) ([]byte, error) {
	if e.encoder == nil {
		return nil, fmt.Errorf("opus encoder not configured")
	}

	samples := audio.Int16s(pcm)
	if len(samples) > len(e.pcm) {
		return nil, fmt.Errorf("packet too large: %d samples (max %d)", len(samples), len(e.pcm))
	}
	n := copy(e.pcm, samples)
	clear(e.pcm[n:])

	data := make([]byte, maxPacketSize)
	written, err := e.encoder.Encode(e.pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}
	return data[:written], nil
}

// Close releases resources
func (e *Opus) Close() error {
	e.encoder = nil
	return nil
}
