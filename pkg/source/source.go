// ABOUTME: Data source contract for the player
// ABOUTME: Sources expose s16le PCM addressed by byte offset
package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
)

// DataSource provides PCM that the player reads by offset.
// Sinks joining late read from different offsets of the same source, so
// reads must not depend on a shared cursor.
type DataSource interface {
	io.ReaderAt
	io.Closer

	// Format describes the PCM returned by ReadAt
	Format() audio.Format

	// InputSize is the total PCM length in bytes
	InputSize() int

	// IsDataReady reports whether a read past the last one would be served
	// without waiting on a background decoder
	IsDataReady() bool
}

// Open picks a source implementation from the file extension
func Open(path string) (DataSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".mp3":
		return OpenMP3(path)
	case ".flac":
		return OpenFLAC(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// Title derives a display title from a file path
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// readAt serves a read from an in-memory PCM slice
func readAt(data []byte, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
