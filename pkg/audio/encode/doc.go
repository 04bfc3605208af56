// ABOUTME: Source-side audio encoders for negotiated media types
// ABOUTME: Provides the Encoder interface and raw and Opus implementations
// Package encode provides the encoders a source uses to turn s16le PCM read
// from a data source into the payload of Data chunks.
//
// An encoder is configured from the data source's format and reports the
// concrete configuration it produces, which the source sends to the sink's
// port in Connect.
//
// Example:
//
//	enc, err := encode.New(capability.MediaTypeRaw)
//	err = enc.Configure(audio.S16LE(44100, 2))
//	config := enc.Configuration()
//	payload, err := enc.Encode(pcm)
package encode
