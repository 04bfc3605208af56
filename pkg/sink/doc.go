// Package sink implements the receiving end of a stream: stream ownership,
// port configuration, a two-stage jitter buffer fed by a decode worker, and
// an output scheduler that writes PCM to the audio device when each chunk's
// presentation time arrives on the stream clock.
package sink
