// ABOUTME: Encoder interface definition and registry
// ABOUTME: Maps media types to encoder constructors
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// Encoder encodes s16le PCM for transmission
type Encoder interface {
	// Configure prepares the encoder for PCM in format
	Configure(format audio.Format) error

	// Configuration returns the concrete capability this encoder produces
	Configuration() capability.Capability

	// FrameSize is the number of frames passed to one Encode call
	FrameSize() int

	// Encode converts at most FrameSize frames of PCM
	Encode(pcm []byte) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// CanCreate reports whether an encoder exists for the media type
func CanCreate(mediaType string) bool {
	return mediaType == capability.MediaTypeRaw || mediaType == capability.MediaTypeOpus
}

// New creates an unconfigured encoder for the media type
func New(mediaType string) (Encoder, error) {
	switch mediaType {
	case capability.MediaTypeRaw:
		return &Raw{}, nil
	case capability.MediaTypeOpus:
		return &Opus{}, nil
	default:
		return nil, fmt.Errorf("unsupported media type: %s", mediaType)
	}
}
