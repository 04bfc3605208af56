// ABOUTME: Test tone generator
// ABOUTME: Synthesizes a sine wave of fixed length on demand
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

// ToneConfig describes a generated tone
type ToneConfig struct {
	Frequency float64       // Hz (default 440)
	Amplitude float64       // 0..1 of full scale (default 0.5)
	Length    time.Duration // default 10s
	Format    audio.Format  // default 44100Hz stereo s16le
}

// Tone generates a sine wave; samples are computed from the frame index so
// any offset can be read independently
type Tone struct {
	config ToneConfig
	size   int
}

// NewTone creates a tone source
func NewTone(config ToneConfig) (*Tone, error) {
	if config.Frequency <= 0 {
		config.Frequency = 440.0 // A4
	}
	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = 0.5
	}
	if config.Length <= 0 {
		config.Length = 10 * time.Second
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.S16LE(44100, 2)
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tone format: %w", err)
	}

	return &Tone{config: config, size: config.Format.Bytes(config.Length)}, nil
}

func (t *Tone) Format() audio.Format { return t.config.Format }
func (t *Tone) InputSize() int       { return t.size }
func (t *Tone) IsDataReady() bool    { return true }
func (t *Tone) Close() error         { return nil }

// sample returns the 16-bit value of frame i
func (t *Tone) sample(i int) int16 {
	at := float64(i) / float64(t.config.Format.SampleRate)
	v := math.Sin(2 * math.Pi * t.config.Frequency * at)
	return int16(v * 32767.0 * t.config.Amplitude)
}

// ReadAt synthesizes PCM starting at off
func (t *Tone) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= int64(t.size) {
		return 0, io.EOF
	}

	bpf := t.config.Format.BytesPerFrame()
	frame := make([]byte, bpf)
	end := min(int64(t.size), off+int64(len(p)))

	n := 0
	for pos := off; pos < end; {
		idx := int(pos) / bpf
		s := t.sample(idx)
		for ch := 0; ch < t.config.Format.Channels; ch++ {
			binary.LittleEndian.PutUint16(frame[ch*2:], uint16(s))
		}
		c := copy(p[n:], frame[int(pos)%bpf:min(bpf, int(end-int64(idx*bpf)))])
		n += c
		pos += int64(c)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
