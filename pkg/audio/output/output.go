// ABOUTME: Audio device interface definition
// ABOUTME: Common interface for playback backends plus software volume helpers
package output

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/Resonate-Protocol/resonate-stream/internal/observer"
)

// ErrNotOpen is returned by devices used before Open
var ErrNotOpen = errors.New("device not open")

// Device is an audio output the sink writes PCM to
type Device interface {
	// Open prepares the device and returns its buffer size in frames
	Open(format string, sampleRate, channels int) (int, error)

	// Close releases the device, optionally letting queued audio finish
	Close(drain bool) error

	Play() error
	Pause() error

	// Recover restarts the device after an underrun
	Recover() error

	// Delay returns the frames queued in the device but not yet audible
	Delay() int

	// FramesWanted returns how many frames the device can accept now, 0 if unknown
	FramesWanted() int

	// Write blocks until pcm has been handed to the hardware
	Write(pcm []byte) error

	Volume() (int16, error)
	SetVolume(v int16) error
	VolumeRange() (low, high, step int16)
	Mute() (bool, error)
	SetMute(mute bool) error
	Enabled() bool

	AddListener(l Listener) observer.Handle
	RemoveListener(h observer.Handle)
}

// Listener receives volume and mute changes made on the device
type Listener interface {
	MuteChanged(mute bool)
	VolumeChanged(volume int16)
}

// mixer holds software volume state shared by the backends
type mixer struct {
	mu        sync.Mutex
	volume    int16
	muted     bool
	low, high int16
	step      int16
	listeners *observer.Registry[Listener]
}

func newMixer(low, high, step, initial int16) *mixer {
	if high <= low {
		low, high = 0, 100
	}
	if step <= 0 {
		step = 1
	}
	if initial < low || initial > high {
		initial = high
	}
	return &mixer{
		volume:    initial,
		low:       low,
		high:      high,
		step:      step,
		listeners: observer.New[Listener](),
	}
}

// Volume returns the current volume
func (m *mixer) Volume() (int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume, nil
}

// SetVolume clamps v into range and notifies listeners on change
func (m *mixer) SetVolume(v int16) error {
	m.mu.Lock()
	if v < m.low {
		v = m.low
	}
	if v > m.high {
		v = m.high
	}
	changed := v != m.volume
	m.volume = v
	m.mu.Unlock()

	if changed {
		m.listeners.Each(func(l Listener) { l.VolumeChanged(v) })
	}
	return nil
}

// VolumeRange returns the volume bounds and step
func (m *mixer) VolumeRange() (int16, int16, int16) {
	return m.low, m.high, m.step
}

// Mute returns the mute state
func (m *mixer) Mute() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted, nil
}

// SetMute updates the mute state and notifies listeners on change
func (m *mixer) SetMute(mute bool) error {
	m.mu.Lock()
	changed := mute != m.muted
	m.muted = mute
	m.mu.Unlock()

	if changed {
		m.listeners.Each(func(l Listener) { l.MuteChanged(mute) })
	}
	return nil
}

// AddListener registers l for volume and mute changes
func (m *mixer) AddListener(l Listener) observer.Handle {
	return m.listeners.Add(l)
}

// RemoveListener unregisters a listener
func (m *mixer) RemoveListener(h observer.Handle) {
	m.listeners.Remove(h)
}

func (m *mixer) multiplier() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getVolumeMultiplier(m.volume, m.low, m.high, m.muted)
}

// applyVolume scales s16le pcm in place with clipping protection
func applyVolume(pcm []byte, multiplier float64) {
	if multiplier == 1.0 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		scaled := int64(float64(sample) * multiplier)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}

// getVolumeMultiplier maps a volume within [low, high] onto [0, 1]
func getVolumeMultiplier(volume, low, high int16, muted bool) float64 {
	if muted || high <= low {
		return 0.0
	}
	return (float64(volume) - float64(low)) / (float64(high) - float64(low))
}
