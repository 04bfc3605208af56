// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to s16le PCM
package decode

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// OpusFrameSize is the number of frames in one 20ms packet at 48 kHz
const OpusFrameSize = 960

// maxOpusFrames is the longest Opus packet (120ms at 48 kHz)
const maxOpusFrames = 5760

// Opus decodes audio/opus
type Opus struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

// Configure creates the underlying libopus decoder
func (d *Opus) Configure(config capability.Capability) error {
	rate, channels, format, err := capability.PCMParams(config)
	if err != nil {
		return fmt.Errorf("invalid opus configuration: %w", err)
	}
	if format != capability.FormatS16LE {
		return fmt.Errorf("unsupported sample format: %s", format)
	}

	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return fmt.Errorf("failed to create opus decoder: %w", err)
	}

	d.decoder = dec
	d.channels = channels
	d.pcm = make([]int16, maxOpusFrames*channels)
	return nil
}

// FrameSize returns the packet size the encoder produces
func (d *Opus) FrameSize() int {
	return OpusFrameSize
}

// Decode converts one Opus packet to PCM bytes
func (d *Opus) Decode(data []byte) ([]byte, error) {
	if d.decoder == nil {
		return nil, fmt.Errorf("opus decoder not configured")
	}

	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	return audio.AppendInt16s(make([]byte, 0, n*d.channels*2), d.pcm[:n*d.channels]), nil
}

// Close releases decoder resources
func (d *Opus) Close() error {
	d.decoder = nil
	return nil
}
