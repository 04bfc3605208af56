// ABOUTME: Unit tests for the decoder registry and raw decoder
// ABOUTME: Opus round trips live in the encode package tests
package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

func TestCapabilities(t *testing.T) {
	caps := Capabilities(Options{})
	require.Len(t, caps, 2)
	assert.Equal(t, capability.MediaTypeRaw, caps[0].Type)
	assert.Equal(t, capability.MediaTypeOpus, caps[1].Type)

	caps = Capabilities(Options{DisableOpus: true, Rates: []uint16{48000}})
	require.Len(t, caps, 1)
	assert.True(t, capability.MatchConfiguration(caps, capability.Configuration(capability.MediaTypeRaw, 2, 48000)))
	assert.False(t, capability.MatchConfiguration(caps, capability.Configuration(capability.MediaTypeRaw, 2, 44100)))
}

func TestNew(t *testing.T) {
	tests := []struct {
		mediaType string
		wantErr   bool
	}{
		{capability.MediaTypeRaw, false},
		{capability.MediaTypeOpus, false},
		{"audio/x-alac", true},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			dec, err := New(tt.mediaType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, dec.FrameSize())
		})
	}
}

func TestRawDecode(t *testing.T) {
	d := &Raw{}
	require.NoError(t, d.Configure(capability.Configuration(capability.MediaTypeRaw, 2, 44100)))

	in := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out, err := d.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, in[:8], out, "partial trailing frame is trimmed")
	assert.Equal(t, FramesPerPacket, d.FrameSize())
}

func TestRawConfigureRejectsFormat(t *testing.T) {
	d := &Raw{}
	cfg := capability.Configuration(capability.MediaTypeRaw, 2, 44100).With(capability.ParamFormat, capability.String("f32le"))
	assert.Error(t, d.Configure(cfg))
	assert.Error(t, d.Configure(capability.Capability{Type: capability.MediaTypeRaw}))
}
