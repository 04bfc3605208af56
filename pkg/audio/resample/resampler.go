// ABOUTME: Streaming linear resampler for s16le PCM
// ABOUTME: Keeps interpolation state between chunks
package resample

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Resampler converts PCM from one sample rate to another
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames per output frame

	// pos is the next output position in input frames. Index -1 refers to
	// prev, the last frame of the previous chunk.
	pos  float64
	prev []int16
}

// New creates a resampler for interleaved frames of channels samples
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int16, channels),
	}, nil
}

// InputRate returns the rate PCM is converted from
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the rate PCM is converted to
func (r *Resampler) OutputRate() int { return r.outputRate }

func (r *Resampler) sample(pcm []byte, frame, ch int) float64 {
	if frame < 0 {
		return float64(r.prev[ch])
	}
	off := (frame*r.channels + ch) * 2
	return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
}

// Append converts pcm and appends the result to dst. A trailing partial
// frame is ignored. The last input frame is held back until the next call.
func (r *Resampler) Append(dst, pcm []byte) []byte {
	frames := len(pcm) / (2 * r.channels)
	if frames == 0 {
		return dst
	}

	for r.pos < float64(frames-1) {
		idx := int(math.Floor(r.pos))
		frac := r.pos - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			a := r.sample(pcm, idx, ch)
			b := r.sample(pcm, idx+1, ch)
			v := math.Round(a + (b-a)*frac)
			dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(max(math.MinInt16, min(math.MaxInt16, v)))))
		}
		r.pos += r.step
	}

	for ch := 0; ch < r.channels; ch++ {
		r.prev[ch] = int16(r.sample(pcm, frames-1, ch))
	}
	r.pos -= float64(frames)
	return dst
}

// OutputFrames estimates how many frames n input frames become
func (r *Resampler) OutputFrames(n int) int {
	return int(math.Round(float64(n) / r.step))
}

// InputFrames estimates how many input frames produce n output frames
func (r *Resampler) InputFrames(n int) int {
	return int(math.Round(float64(n) * r.step))
}

// Reset forgets the stream position
func (r *Resampler) Reset() {
	r.pos = 0
	clear(r.prev)
}
