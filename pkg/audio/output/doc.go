// ABOUTME: Audio hardware backends consumed by the sink's output scheduler
// ABOUTME: Provides the Device interface plus oto and paced null implementations
// Package output provides audio devices for sinks.
//
// A Device is demand-pull: Write blocks until the hardware has accepted the
// data, and Open reports the hardware buffer size in frames so the scheduler
// can size its writes.
//
// Example:
//
//	dev := output.NewOto(output.OtoConfig{})
//	frames, err := dev.Open("s16le", 48000, 2)
//	err = dev.Write(pcm)
package output
