// Package transport carries sink method calls, signals and audio data over
// websockets.
//
// Server exposes one sink.Sink to any number of sources; the source that
// opened the stream owns it. Client is the source side of one session and
// implements player.SinkConn; Dialer resolves sink names and connects.
package transport
