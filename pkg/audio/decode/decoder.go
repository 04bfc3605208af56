// ABOUTME: Decoder interface definition and registry
// ABOUTME: Maps media types to decoder constructors and advertised capabilities
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// Decoder decodes one chunk of encoded audio to s16le PCM
type Decoder interface {
	// Configure prepares the decoder for a negotiated configuration
	Configure(config capability.Capability) error

	// FrameSize is the maximum number of frames one Decode call returns
	FrameSize() int

	// Decode converts encoded audio to PCM. Ownership of data passes to the decoder.
	Decode(data []byte) ([]byte, error)

	// Close releases decoder resources
	Close() error
}

// Options selects which decoders a sink advertises
type Options struct {
	Channels    []byte
	Rates       []uint16
	DisableOpus bool
}

func (o Options) withDefaults() Options {
	if len(o.Channels) == 0 {
		o.Channels = []byte{1, 2}
	}
	if len(o.Rates) == 0 {
		o.Rates = []uint16{44100, 48000}
	}
	return o
}

// Capabilities returns the capability offers of all enabled decoders
func Capabilities(opts Options) []capability.Capability {
	opts = opts.withDefaults()
	caps := []capability.Capability{capability.RawOffer(opts.Channels, opts.Rates)}
	if !opts.DisableOpus {
		caps = append(caps, capability.OpusOffer(opts.Channels))
	}
	return caps
}

// New creates an unconfigured decoder for the media type
func New(mediaType string) (Decoder, error) {
	switch mediaType {
	case capability.MediaTypeRaw:
		return &Raw{}, nil
	case capability.MediaTypeOpus:
		return &Opus{}, nil
	default:
		return nil, fmt.Errorf("unsupported media type: %s", mediaType)
	}
}
