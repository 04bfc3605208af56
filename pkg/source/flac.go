// ABOUTME: FLAC file data source
// ABOUTME: Decodes frames in the background with mewkiz/flac into s16le
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/mewkiz/flac"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

// FLAC serves PCM decoded from a FLAC file
type FLAC struct {
	stream *flac.Stream
	format audio.Format
	size   int
	buf    *progressive
}

// OpenFLAC opens path and starts decoding it. Samples of any bit depth are
// scaled to 16 bits; only mono and stereo are accepted.
func OpenFLAC(path string) (*FLAC, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	if info.NChannels != 1 && info.NChannels != 2 {
		stream.Close()
		return nil, fmt.Errorf("unsupported FLAC channel count: %d", info.NChannels)
	}
	bitDepth := int(info.BitsPerSample)
	channels := int(info.NChannels)

	format := audio.S16LE(int(info.SampleRate), channels)
	s := &FLAC{
		stream: stream,
		format: format,
		size:   int(info.NSamples) * format.BytesPerFrame(),
		buf:    newProgressive(format.Bytes(time.Second)),
	}

	s.buf.start(func(ctx context.Context, emit func([]byte)) error {
		var pcm []byte
		for ctx.Err() == nil {
			frame, err := stream.ParseNext()
			if err != nil {
				return err
			}
			pcm = pcm[:0]
			for i := 0; i < int(frame.BlockSize); i++ {
				for ch := 0; ch < channels; ch++ {
					v := audio.SampleToInt16(frame.Subframes[ch].Samples[i], bitDepth)
					pcm = append(pcm, byte(v), byte(v>>8))
				}
			}
			emit(pcm)
		}
		return nil
	})

	return s, nil
}

func (s *FLAC) Format() audio.Format { return s.format }
func (s *FLAC) InputSize() int       { return s.size }
func (s *FLAC) IsDataReady() bool    { return s.buf.ready() }

// ReadAt waits for the range to be decoded, then copies it
func (s *FLAC) ReadAt(p []byte, off int64) (int, error) {
	return s.buf.readAt(p, off)
}

// Close stops decoding and closes the stream
func (s *FLAC) Close() error {
	s.buf.close()
	return s.stream.Close()
}
