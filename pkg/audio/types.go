// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM format and sample conversion helpers
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Format describes an interleaved PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// S16LE returns a signed 16-bit little-endian format
func S16LE(rate, channels int) Format {
	return Format{SampleRate: rate, Channels: channels, BitDepth: 16}
}

// Validate checks the format describes something playable
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

// BytesPerFrame returns the size of one sample across all channels
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the byte rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// Duration returns how long n bytes play for
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Bytes returns the byte count covering d, rounded down to whole frames
func (f Format) Bytes(d time.Duration) int {
	n := int(int64(d) * int64(f.BytesPerSecond()) / int64(time.Second))
	return f.AlignFrames(n)
}

// AlignFrames rounds n down to a multiple of the frame size
func (f Format) AlignFrames(n int) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return n
	}
	return n - n%bpf
}

func (f Format) String() string {
	return fmt.Sprintf("s%dle/%dHz/%dch", f.BitDepth, f.SampleRate, f.Channels)
}

// ClampInt16 saturates a wider sample into the int16 range
func ClampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// SampleToInt16 scales a sample of the given bit depth to 16 bits
func SampleToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(sample << (16 - bitDepth))
	default:
		return ClampInt16(sample)
	}
}

// Int16s decodes s16le bytes into samples; a trailing odd byte is ignored
func Int16s(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// PutInt16s encodes samples as s16le into dst, returning the bytes written
func PutInt16s(dst []byte, samples []int16) int {
	n := 0
	for _, s := range samples {
		if n+2 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint16(dst[n:], uint16(s))
		n += 2
	}
	return n
}

// AppendInt16s appends samples as s16le to dst
func AppendInt16s(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
