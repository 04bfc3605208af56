// ABOUTME: Raw PCM encoder
// ABOUTME: Sends s16le PCM unchanged in fixed-size packets
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// Raw encodes audio/x-raw
type Raw struct {
	format audio.Format
}

// Configure records the source format
func (e *Raw) Configure(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("invalid raw format: %w", err)
	}
	e.format = format
	return nil
}

// Configuration describes the PCM being sent
func (e *Raw) Configuration() capability.Capability {
	return capability.Configuration(capability.MediaTypeRaw, byte(e.format.Channels), uint16(e.format.SampleRate))
}

// FrameSize returns the raw packet size in frames
func (e *Raw) FrameSize() int {
	return decode.FramesPerPacket
}

// Encode copies pcm so the caller may reuse its read buffer
func (e *Raw) Encode(pcm []byte) ([]byte, error) {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

// Close releases resources
func (e *Raw) Close() error {
	return nil
}
