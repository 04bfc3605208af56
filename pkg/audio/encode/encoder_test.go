// ABOUTME: Unit tests for encoders
// ABOUTME: Covers raw passthrough and an Opus encode/decode round trip
package encode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

func TestCanCreate(t *testing.T) {
	assert.True(t, CanCreate(capability.MediaTypeRaw))
	assert.True(t, CanCreate(capability.MediaTypeOpus))
	assert.False(t, CanCreate("audio/x-alac"))

	_, err := New("audio/x-alac")
	assert.Error(t, err)
}

func TestRawConfiguration(t *testing.T) {
	enc, err := New(capability.MediaTypeRaw)
	require.NoError(t, err)
	require.NoError(t, enc.Configure(audio.S16LE(44100, 2)))

	cfg := enc.Configuration()
	assert.True(t, cfg.IsConfiguration())
	assert.True(t, capability.MatchConfiguration(decode.Capabilities(decode.Options{}), cfg))

	pcm := []byte{1, 2, 3, 4}
	out, err := enc.Encode(pcm)
	require.NoError(t, err)
	assert.Equal(t, pcm, out)
	pcm[0] = 9
	assert.Equal(t, byte(1), out[0], "encoded payload must not alias the read buffer")

	assert.Error(t, enc.Configure(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 24}))
}

func TestOpusRequires48k(t *testing.T) {
	enc := &Opus{}
	err := enc.Configure(audio.S16LE(44100, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "48000")

	_, err = enc.Encode(make([]byte, 8))
	assert.Error(t, err, "encode before configure must fail")
}

func sine(frames, channels int) []byte {
	samples := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return audio.AppendInt16s(nil, samples)
}

func TestOpusRoundTrip(t *testing.T) {
	format := audio.S16LE(48000, 2)

	enc := &Opus{}
	require.NoError(t, enc.Configure(format))
	defer enc.Close()

	cfg := enc.Configuration()
	require.True(t, capability.MatchConfiguration(decode.Capabilities(decode.Options{}), cfg))

	dec, err := decode.New(cfg.Type)
	require.NoError(t, err)
	require.NoError(t, dec.Configure(cfg))
	defer dec.Close()

	packet, err := enc.Encode(sine(enc.FrameSize(), 2))
	require.NoError(t, err)
	assert.NotEmpty(t, packet)
	assert.Less(t, len(packet), enc.FrameSize()*format.BytesPerFrame(), "opus should compress")

	pcm, err := dec.Decode(packet)
	require.NoError(t, err)
	assert.Equal(t, dec.FrameSize()*format.BytesPerFrame(), len(pcm))

	// a short final packet is padded to a full frame
	packet, err = enc.Encode(sine(100, 2))
	require.NoError(t, err)
	pcm, err = dec.Decode(packet)
	require.NoError(t, err)
	assert.Equal(t, decode.OpusFrameSize*format.BytesPerFrame(), len(pcm))
}
