// ABOUTME: Sink-side audio decoders selected by negotiated media type
// ABOUTME: Provides the Decoder interface, the advertised capability set and codecs
// Package decode provides the decoders a sink can configure from a negotiated
// capability.
//
// Supports: raw s16le passthrough (audio/x-raw) and Opus (audio/opus).
//
// Every decoder outputs interleaved s16le PCM. FrameSize reports the largest
// number of frames one Decode call returns, which the sink uses to estimate
// the size of chunks still waiting to be decoded.
//
// Example:
//
//	dec, err := decode.New(config.Type)
//	err = dec.Configure(config)
//	pcm, err := dec.Decode(payload)
package decode
