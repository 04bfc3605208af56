// ABOUTME: Raw PCM decoder
// ABOUTME: Passes s16le audio through unchanged
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// FramesPerPacket is the nominal frame count of one raw packet
const FramesPerPacket = 16384

// Raw decodes audio/x-raw, which is already PCM
type Raw struct {
	bytesPerFrame int
}

// Configure validates the sample format
func (d *Raw) Configure(config capability.Capability) error {
	_, channels, format, err := capability.PCMParams(config)
	if err != nil {
		return fmt.Errorf("invalid raw configuration: %w", err)
	}
	if format != capability.FormatS16LE {
		return fmt.Errorf("unsupported sample format: %s", format)
	}
	d.bytesPerFrame = 2 * channels
	return nil
}

// FrameSize returns the nominal packet size in frames
func (d *Raw) FrameSize() int {
	return FramesPerPacket
}

// Decode returns data untouched, trimmed to whole frames
func (d *Raw) Decode(data []byte) ([]byte, error) {
	if d.bytesPerFrame > 0 {
		data = data[:len(data)-len(data)%d.bytesPerFrame]
	}
	return data, nil
}

// Close releases resources
func (d *Raw) Close() error {
	return nil
}
