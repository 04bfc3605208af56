// ABOUTME: MP3 file data source
// ABOUTME: Decodes in the background with go-mp3 so playback can start early
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

const decodeBlock = 64 * 1024

// MP3 serves PCM decoded from an MP3 file
type MP3 struct {
	file   *os.File
	format audio.Format
	size   int
	buf    *progressive
}

// OpenMP3 opens path and starts decoding it
func OpenMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// go-mp3 always produces 16-bit stereo
	format := audio.S16LE(decoder.SampleRate(), 2)
	s := &MP3{
		file:   f,
		format: format,
		size:   format.AlignFrames(int(decoder.Length())),
		buf:    newProgressive(format.Bytes(time.Second)),
	}
	if s.size <= 0 {
		f.Close()
		return nil, fmt.Errorf("failed to determine MP3 length: %s", path)
	}

	s.buf.start(func(ctx context.Context, emit func([]byte)) error {
		block := make([]byte, decodeBlock)
		for ctx.Err() == nil {
			n, err := decoder.Read(block)
			if n > 0 {
				emit(block[:n])
			}
			if err != nil {
				return err
			}
		}
		return nil
	})

	return s, nil
}

func (s *MP3) Format() audio.Format { return s.format }
func (s *MP3) InputSize() int       { return s.size }
func (s *MP3) IsDataReady() bool    { return s.buf.ready() }

// ReadAt waits for the range to be decoded, then copies it
func (s *MP3) ReadAt(p []byte, off int64) (int, error) {
	return s.buf.readAt(p, off)
}

// Close stops decoding and closes the file
func (s *MP3) Close() error {
	s.buf.close()
	return s.file.Close()
}
