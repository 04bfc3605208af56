// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts streamed s16le PCM between sample rates
// Package resample converts interleaved s16le PCM between sample rates.
//
// A Resampler is stateful: it carries the last input frame and the
// fractional read position across calls so a stream can be converted chunk
// by chunk without clicks at chunk boundaries.
//
// Example:
//
//	r, err := resample.New(44100, 48000, 2)
//	out = r.Append(out[:0], pcm)
package resample
