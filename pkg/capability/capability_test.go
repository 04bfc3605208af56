// ABOUTME: Tests for capability selection and configuration matching
// ABOUTME: Covers scalar-in-array membership and atomic rejection
package capability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offers = []Capability{
	RawOffer([]byte{1, 2}, []uint16{44100, 48000}),
	OpusOffer([]byte{1, 2}),
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name      string
		offered   []Capability
		preferred string
		wantType  string
		wantErr   bool
	}{
		{"preferred present", offers, MediaTypeOpus, MediaTypeOpus, false},
		{"preferred absent falls back to raw", offers[:1], MediaTypeOpus, MediaTypeRaw, false},
		{"no preference", offers, "", MediaTypeRaw, false},
		{"nothing usable", offers[1:], "audio/x-alac", "", true},
		{"empty offer", nil, MediaTypeRaw, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.offered, tt.preferred)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoMatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
		})
	}
}

func TestMatchConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		config Capability
		want   bool
	}{
		{"stereo 44100", Configuration(MediaTypeRaw, 2, 44100), true},
		{"mono 48000", Configuration(MediaTypeRaw, 1, 48000), true},
		{"opus stereo", Configuration(MediaTypeOpus, 2, 48000), true},
		{"unsupported rate", Configuration(MediaTypeRaw, 2, 22050), false},
		{"unsupported channels", Configuration(MediaTypeRaw, 6, 44100), false},
		{"opus at 44100", Configuration(MediaTypeOpus, 2, 44100), false},
		{"unknown media type", Configuration("audio/x-alac", 2, 44100), false},
		{"wrong format", Configuration(MediaTypeRaw, 2, 44100).With(ParamFormat, String("f32le")), false},
		{"wrong kind for rate", Configuration(MediaTypeRaw, 2, 44100).With(ParamRate, String("44100")), false},
		{
			"missing parameter",
			Capability{Type: MediaTypeRaw, Params: []Param{
				{Name: ParamChannels, Value: Byte(2)},
				{Name: ParamRate, Value: Uint16(44100)},
			}},
			false,
		},
		{"extra parameter", Configuration(MediaTypeRaw, 2, 44100).With("Endian", String("little")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchConfiguration(offers, tt.config))
		})
	}
}

func TestValueContains(t *testing.T) {
	assert.True(t, Bytes(1, 2).Contains(Byte(2)))
	assert.False(t, Bytes(1, 2).Contains(Byte(3)))
	assert.False(t, Bytes(1, 2).Contains(Uint16(2)), "kind mismatch never matches")
	assert.True(t, Strings("s16le").Contains(String("s16le")))
	assert.False(t, Byte(1).Contains(Byte(1)), "scalars are not sets")

	b, ok := Byte(7).AsByte()
	assert.True(t, ok)
	assert.Equal(t, byte(7), b)
	_, ok = Byte(7).AsUint16()
	assert.False(t, ok)
}

func TestIsConfiguration(t *testing.T) {
	assert.True(t, Configuration(MediaTypeRaw, 2, 44100).IsConfiguration())
	assert.False(t, offers[0].IsConfiguration())
}

func TestPCMParams(t *testing.T) {
	rate, ch, format, err := PCMParams(Configuration(MediaTypeRaw, 2, 48000))
	require.NoError(t, err)
	assert.Equal(t, 48000, rate)
	assert.Equal(t, 2, ch)
	assert.Equal(t, FormatS16LE, format)

	_, _, _, err = PCMParams(Capability{Type: MediaTypeRaw})
	assert.Error(t, err)
}

func TestCapabilityJSON(t *testing.T) {
	data, err := json.Marshal(offers)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"sig":"aq","val":[44100,48000]}`)

	var decoded []Capability
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	for i := range offers {
		assert.Equal(t, offers[i].Type, decoded[i].Type)
		for _, p := range offers[i].Params {
			v, ok := decoded[i].Get(p.Name)
			require.True(t, ok, p.Name)
			assert.True(t, p.Value.Equal(v), "%s: %s != %s", p.Name, p.Value, v)
		}
	}

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`{"sig":"v","val":1}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"sig":"ay","val":[300]}`), &bad))
}
