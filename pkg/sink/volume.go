// ABOUTME: Volume and mute control of a sink
// ABOUTME: Absolute, relative and fractional volume changes on the output device
package sink

import (
	"fmt"
	"math"
)

// Volume returns the device volume
func (s *Sink) Volume() (int16, error) {
	return s.device.Volume()
}

// VolumeRange returns the device volume bounds and step
func (s *Sink) VolumeRange() (low, high, step int16) {
	return s.device.VolumeRange()
}

// Mute returns the device mute state
func (s *Sink) Mute() (bool, error) {
	return s.device.Mute()
}

// Enabled reports whether volume control is available
func (s *Sink) Enabled() bool {
	return s.device.Enabled()
}

// SetVolume sets an absolute volume within the device range
func (s *Sink) SetVolume(v int16) error {
	if !s.device.Enabled() {
		return ErrDisabled
	}
	low, high, _ := s.device.VolumeRange()
	if v < low || v > high {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrVolumeOutOfRange, v, low, high)
	}
	return s.device.SetVolume(v)
}

// SetMute mutes or unmutes the device
func (s *Sink) SetMute(mute bool) error {
	if !s.device.Enabled() {
		return ErrDisabled
	}
	return s.device.SetMute(mute)
}

// AdjustVolume changes the volume by delta, clamped to the device range
func (s *Sink) AdjustVolume(delta int16) error {
	if !s.device.Enabled() {
		return ErrDisabled
	}
	volume, err := s.device.Volume()
	if err != nil {
		return fmt.Errorf("failed to read volume: %w", err)
	}
	low, high, _ := s.device.VolumeRange()

	v := int(volume) + int(delta)
	v = max(int(low), min(int(high), v))
	return s.device.SetVolume(int16(v))
}

// AdjustVolumePercent moves the volume by a fraction of the remaining range
// towards high (positive) or low (negative). Fractions at or beyond ±1
// jump to the end of the range.
func (s *Sink) AdjustVolumePercent(change float64) error {
	if !s.device.Enabled() {
		return ErrDisabled
	}
	if change == 0 {
		return nil
	}
	volume, err := s.device.Volume()
	if err != nil {
		return fmt.Errorf("failed to read volume: %w", err)
	}
	low, high, step := s.device.VolumeRange()

	return s.device.SetVolume(percentVolume(volume, low, high, step, change))
}

func percentVolume(volume, low, high, step int16, change float64) int16 {
	switch {
	case change <= -1:
		return low
	case change >= 1:
		return high
	}

	if step <= 0 {
		step = 1
	}
	halfStep := float64(step / 2)

	var v int
	if change > 0 {
		v = int(volume) + int(math.Floor(float64(high-volume)*change+halfStep))
	} else {
		v = int(volume) + int(math.Floor(float64(volume-low)*change+halfStep))
	}
	v -= v % int(step)
	return int16(v)
}
