// ABOUTME: Audio fundamentals shared by sinks and sources
// ABOUTME: PCM format descriptor, byte/time conversions and s16le helpers
// Package audio provides the PCM format descriptor used across the module.
//
// All audio moving between sources and sinks is interleaved signed 16-bit
// little-endian PCM once decoded. Format converts between byte counts and
// durations on the stream clock:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	format.BytesPerSecond()              // 176400
//	format.Duration(88200)               // 500ms
//	format.Bytes(100 * time.Millisecond) // 17640
package audio
