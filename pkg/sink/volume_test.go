// ABOUTME: Volume control tests
// ABOUTME: Covers range checks, clamping, fractional steps and disabled devices
package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/output"
)

func TestPercentVolume(t *testing.T) {
	tests := []struct {
		name           string
		volume         int16
		low, high, stp int16
		change         float64
		want           int16
	}{
		{"saturate up", 40, 0, 100, 1, 1.0, 100},
		{"saturate down", 40, 0, 100, 1, -1.5, 0},
		{"half of remaining up", 40, 0, 100, 1, 0.5, 70},
		{"half of remaining down", 40, 0, 100, 1, -0.5, 20},
		{"step quantised", 43, 0, 100, 10, 0.25, 60},
		{"half step rounding", 41, 0, 100, 4, 0.1, 48},
		{"negative range", -20, -60, 0, 1, -0.5, -40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, percentVolume(tt.volume, tt.low, tt.high, tt.stp, tt.change))
		})
	}
}

func TestSetVolume(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{}))
	events := record(s)

	require.NoError(t, s.SetVolume(30))
	v, err := s.Volume()
	require.NoError(t, err)
	assert.Equal(t, int16(30), v)
	assert.True(t, events.has(VolumeChanged{Volume: 30}))

	assert.ErrorIs(t, s.SetVolume(101), ErrVolumeOutOfRange)
	assert.ErrorIs(t, s.SetVolume(-1), ErrVolumeOutOfRange)

	require.NoError(t, s.SetMute(true))
	mute, err := s.Mute()
	require.NoError(t, err)
	assert.True(t, mute)
	assert.True(t, events.has(MuteChanged{Mute: true}))

	low, high, step := s.VolumeRange()
	assert.Equal(t, [3]int16{0, 100, 1}, [3]int16{low, high, step})
}

func TestAdjustVolume(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{}))

	require.NoError(t, s.SetVolume(90))
	require.NoError(t, s.AdjustVolume(20))
	v, _ := s.Volume()
	assert.Equal(t, int16(100), v, "clamped to high")

	require.NoError(t, s.AdjustVolume(-150))
	v, _ = s.Volume()
	assert.Equal(t, int16(0), v, "clamped to low")

	require.NoError(t, s.AdjustVolumePercent(0.5))
	v, _ = s.Volume()
	assert.Equal(t, int16(50), v)

	require.NoError(t, s.AdjustVolumePercent(0))
	v, _ = s.Volume()
	assert.Equal(t, int16(50), v)
}

func TestVolumeDisabled(t *testing.T) {
	s := newTestSink(t, output.NewNull(output.NullConfig{Disabled: true}))

	assert.False(t, s.Enabled())
	assert.ErrorIs(t, s.SetVolume(10), ErrDisabled)
	assert.ErrorIs(t, s.SetMute(true), ErrDisabled)
	assert.ErrorIs(t, s.AdjustVolume(1), ErrDisabled)
	assert.ErrorIs(t, s.AdjustVolumePercent(0.5), ErrDisabled)

	_, err := s.Volume()
	assert.NoError(t, err, "reads work while disabled")
}
