// ABOUTME: Oto-based audio device implementation
// ABOUTME: Streams PCM through a pipe into one persistent oto player with software volume
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
)

// oto allows one context per process
var (
	otoMu      sync.Mutex
	otoContext *oto.Context
	otoRate    int
	otoChans   int
)

// OtoConfig configures the oto device
type OtoConfig struct {
	BufferSize time.Duration // hardware buffer (default 100ms)
	Volume     int16         // initial volume 0-100 (default 100)
	Logger     *zerolog.Logger
}

// Oto plays audio through the system output using oto
type Oto struct {
	*mixer

	config OtoConfig
	log    zerolog.Logger

	mu            sync.Mutex
	player        *oto.Player
	pipeReader    *io.PipeReader
	pipeWriter    *io.PipeWriter
	bytesPerFrame int
	resampler     *resample.Resampler // nil when the stream matches the device rate
	scratch       []byte
}

// NewOto creates an oto device
func NewOto(config OtoConfig) *Oto {
	if config.BufferSize == 0 {
		config.BufferSize = 100 * time.Millisecond
	}
	if config.Volume == 0 {
		config.Volume = 100
	}

	return &Oto{
		mixer:  newMixer(0, 100, 1, config.Volume),
		config: config,
		log:    logging.Or(config.Logger, "output"),
	}
}

// sharedContext returns the process context, creating it at the requested
// format on first use. Later callers get whatever rate it was created with.
func sharedContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, int, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoContext != nil {
		if otoChans != channels {
			return nil, 0, fmt.Errorf("oto already initialised with %d channels, cannot switch to %d",
				otoChans, channels)
		}
		return otoContext, otoRate, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoContext = ctx
	otoRate = sampleRate
	otoChans = channels
	return ctx, sampleRate, nil
}

// Open initialises the output and starts a paused player
func (o *Oto) Open(format string, sampleRate, channels int) (int, error) {
	if format != capability.FormatS16LE {
		return 0, fmt.Errorf("unsupported sample format: %s", format)
	}

	ctx, deviceRate, err := sharedContext(sampleRate, channels, o.config.BufferSize)
	if err != nil {
		return 0, err
	}
	if err := ctx.Resume(); err != nil {
		return 0, fmt.Errorf("failed to resume oto context: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return 0, fmt.Errorf("device already open")
	}

	o.resampler = nil
	if deviceRate != sampleRate {
		r, err := resample.New(sampleRate, deviceRate, channels)
		if err != nil {
			return 0, err
		}
		o.resampler = r
		o.log.Info().Int("from", sampleRate).Int("to", deviceRate).Msg("resampling to the device rate")
	}

	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = ctx.NewPlayer(o.pipeReader)
	o.bytesPerFrame = 2 * channels

	frames := int(o.config.BufferSize * time.Duration(sampleRate) / time.Second)
	o.log.Info().
		Int("rate", sampleRate).
		Int("channels", channels).
		Int("buffer_frames", frames).
		Msg("audio output initialized")
	return frames, nil
}

func (o *Oto) current() (*oto.Player, *io.PipeWriter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player, o.pipeWriter
}

// Write applies volume and blocks until the player has read pcm. Writes
// come from a single output worker.
func (o *Oto) Write(pcm []byte) error {
	player, w := o.current()
	if player == nil {
		return ErrNotOpen
	}

	applyVolume(pcm, o.multiplier())
	o.mu.Lock()
	r := o.resampler
	o.mu.Unlock()
	if r != nil {
		o.scratch = r.Append(o.scratch[:0], pcm)
		pcm = o.scratch
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Play starts or resumes playback
func (o *Oto) Play() error {
	player, _ := o.current()
	if player == nil {
		return ErrNotOpen
	}
	player.Play()
	return nil
}

// Pause suspends playback, keeping queued audio
func (o *Oto) Pause() error {
	player, _ := o.current()
	if player == nil {
		return ErrNotOpen
	}
	player.Pause()
	return nil
}

// Recover makes sure the player is running after an underrun
func (o *Oto) Recover() error {
	player, _ := o.current()
	if player == nil {
		return ErrNotOpen
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("player failed: %w", err)
	}
	if !player.IsPlaying() {
		player.Play()
	}
	return nil
}

// Delay returns the frames buffered inside the player
func (o *Oto) Delay() int {
	player, _ := o.current()
	if player == nil || o.bytesPerFrame == 0 {
		return 0
	}
	frames := player.BufferedSize() / o.bytesPerFrame

	o.mu.Lock()
	r := o.resampler
	o.mu.Unlock()
	if r != nil {
		// report frames at the stream rate
		frames = r.InputFrames(frames)
	}
	return frames
}

// FramesWanted is unknown for oto
func (o *Oto) FramesWanted() int {
	return 0
}

// Enabled reports whether the device can be controlled
func (o *Oto) Enabled() bool {
	return true
}

// Close releases the player; with drain it first waits for buffered audio
func (o *Oto) Close(drain bool) error {
	o.mu.Lock()
	player, r, w := o.player, o.pipeReader, o.pipeWriter
	o.player, o.pipeReader, o.pipeWriter = nil, nil, nil
	o.mu.Unlock()

	if player == nil {
		return nil
	}

	if drain {
		deadline := time.Now().Add(2 * o.config.BufferSize)
		for player.IsPlaying() && player.BufferedSize() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	r.Close()
	w.Close()
	if err := player.Close(); err != nil {
		return fmt.Errorf("failed to close player: %w", err)
	}
	return nil
}
