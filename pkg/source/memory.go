// ABOUTME: In-memory PCM data source
// ABOUTME: Used for tests and for content decoded ahead of time
package source

import (
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

// Memory serves PCM held in a byte slice
type Memory struct {
	format audio.Format
	data   []byte
}

// NewMemory wraps pcm, trimmed to whole frames
func NewMemory(format audio.Format, pcm []byte) *Memory {
	return &Memory{format: format, data: pcm[:format.AlignFrames(len(pcm))]}
}

// Silence returns a source of n zeroed bytes
func Silence(format audio.Format, n int) *Memory {
	return NewMemory(format, make([]byte, n))
}

func (m *Memory) Format() audio.Format { return m.format }
func (m *Memory) InputSize() int       { return len(m.data) }
func (m *Memory) IsDataReady() bool    { return true }
func (m *Memory) Close() error         { return nil }

// ReadAt copies PCM starting at off
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	return readAt(m.data, p, off)
}
