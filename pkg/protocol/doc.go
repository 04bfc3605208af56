// ABOUTME: Resonate stream wire protocol package
// ABOUTME: Defines the JSON envelope, method and signal payloads, and binary data frames
// Package protocol defines the messages exchanged between a source and a sink.
//
// Control traffic is JSON: method calls with replies, and fire-and-forget
// signals. Audio travels in binary frames carrying a presentation timestamp.
//
// Example:
//
//	frame := protocol.EncodeData(ts, payload)
//	ts, payload, err := protocol.DecodeData(frame)
package protocol
