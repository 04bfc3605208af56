// ABOUTME: WAV file data source
// ABOUTME: Parses the RIFF header and serves the data chunk by offset
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

// ErrUnsupportedWAV is returned for WAV content the player cannot stream
var ErrUnsupportedWAV = errors.New("unsupported wav")

const wavFormatPCM = 1

// WAV serves the data chunk of a 16-bit PCM WAV file
type WAV struct {
	r      io.ReaderAt
	closer io.Closer
	format audio.Format
	offset int64
	size   int
}

// OpenWAV opens and parses a WAV file
func OpenWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	w, err := NewWAV(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWAV parses a WAV stream; 44100 or 48000 Hz, mono or stereo, s16le only
func NewWAV(r io.ReaderAt) (*WAV, error) {
	var riff [12]byte
	if _, err := r.ReadAt(riff[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	w := &WAV{r: r}
	var haveFormat bool
	pos := int64(12)
	for {
		var hdr [8]byte
		if _, err := r.ReadAt(hdr[:], pos); err != nil {
			return nil, fmt.Errorf("%w: missing data chunk", ErrUnsupportedWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		body := pos + 8

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if _, err := r.ReadAt(fmtChunk[:], body); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if tag := binary.LittleEndian.Uint16(fmtChunk[0:2]); tag != wavFormatPCM {
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWAV, tag)
			}
			w.format = audio.Format{
				Channels:   int(binary.LittleEndian.Uint16(fmtChunk[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(fmtChunk[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(fmtChunk[14:16])),
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("%w: data before fmt chunk", ErrUnsupportedWAV)
			}
			if err := checkWAVFormat(w.format); err != nil {
				return nil, err
			}
			w.offset = body
			w.size = w.format.AlignFrames(int(size))
			return w, nil
		}

		// chunks are word aligned
		pos = body + size + size%2
	}
}

func checkWAVFormat(f audio.Format) error {
	if f.BitDepth != 16 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedWAV, f.BitDepth)
	}
	if f.SampleRate != 44100 && f.SampleRate != 48000 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedWAV, f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, f.Channels)
	}
	return nil
}

func (w *WAV) Format() audio.Format { return w.format }
func (w *WAV) InputSize() int       { return w.size }
func (w *WAV) IsDataReady() bool    { return true }

// ReadAt reads PCM at off within the data chunk
func (w *WAV) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= int64(w.size) {
		return 0, io.EOF
	}
	if rest := int64(w.size) - off; int64(len(p)) > rest {
		p = p[:rest]
		n, err := w.r.ReadAt(p, w.offset+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return w.r.ReadAt(p, w.offset+off)
}

// Close closes the underlying file when the source opened it
func (w *WAV) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// EncodeWAVHeader returns a canonical 44-byte header for size bytes of PCM
func EncodeWAVHeader(f audio.Format, size int) []byte {
	h := make([]byte, 0, 44)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(36+size))
	h = append(h, "WAVEfmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, wavFormatPCM)
	h = binary.LittleEndian.AppendUint16(h, uint16(f.Channels))
	h = binary.LittleEndian.AppendUint32(h, uint32(f.SampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(f.BytesPerSecond()))
	h = binary.LittleEndian.AppendUint16(h, uint16(f.BytesPerFrame()))
	h = binary.LittleEndian.AppendUint16(h, uint16(f.BitDepth))
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(size))
	return h
}
