package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Resonate-Protocol/resonate-stream/pkg/audio"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/sink"
	"github.com/Resonate-Protocol/resonate-stream/pkg/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var cd = audio.S16LE(44100, 2)

// one raw packet of 16384 stereo frames
const packetBytes = 65536

func newTestPlayer(t *testing.T, d *fakeDialer, src source.DataSource) (*Player, *recorder) {
	t.Helper()
	p := New(testConfig(), d)
	t.Cleanup(func() {
		// a paused sink closes without draining its FIFO
		p.Pause()
		p.Close()
	})
	events := record(p)
	if src != nil {
		require.NoError(t, p.SetDataSource(src))
	}
	return p, events
}

func tone(t *testing.T, length time.Duration) *source.Tone {
	t.Helper()
	src, err := source.NewTone(source.ToneConfig{Length: length, Format: cd})
	require.NoError(t, err)
	return src
}

func TestCatchUp(t *testing.T) {
	now := uint64(1_000_000_000_000)
	inputSize := cd.Bytes(10 * time.Second)
	sent := cd.Bytes(2 * time.Second)
	lead := cursor{timestamp: now + uint64(2*time.Second), remaining: inputSize - sent}

	c := catchUp(now, lead, inputSize, cd, packetBytes, 0.9)

	// 2s in flight = 352800 bytes, 90% = 317520, four whole packets
	assert.Equal(t, lead.remaining+4*packetBytes, c.remaining)
	assert.Equal(t, lead.timestamp-uint64(cd.Duration(4*packetBytes)), c.timestamp)
	assert.Greater(t, inputSize-c.remaining, 0, "late sink does not restart at offset 0")
	assert.Less(t, c.timestamp, lead.timestamp)
}

func TestCatchUpLimits(t *testing.T) {
	now := uint64(1_000_000_000_000)
	inputSize := cd.Bytes(10 * time.Second)

	behind := cursor{timestamp: now - 1, remaining: inputSize / 2}
	assert.Equal(t, behind, catchUp(now, behind, inputSize, cd, packetBytes, 0.9))

	// only one packet has been read so far, less than the time in flight
	lead := cursor{timestamp: now + uint64(3*time.Second), remaining: inputSize - packetBytes}
	assert.Equal(t, lead, catchUp(now, lead, inputSize, cd, packetBytes, 0.9),
		"90% of one packet rounds down to zero")

	lead.remaining = inputSize - 3*packetBytes
	c := catchUp(now, lead, inputSize, cd, packetBytes, 0.9)
	assert.Equal(t, lead.remaining+2*packetBytes, c.remaining)
}

func TestAddSinkRejections(t *testing.T) {
	d := newFakeDialer(t, "kitchen")
	p, events := newTestPlayer(t, d, nil)

	assert.False(t, p.AddSink("kitchen"), "no data source")

	require.NoError(t, p.SetDataSource(tone(t, time.Second)))
	assert.True(t, p.AddSink("nowhere"))
	failed := events.waitName(t, "SinkAddFailed").(SinkAddFailed)
	assert.Equal(t, "nowhere", failed.Sink)
	assert.ErrorContains(t, failed.Err, "no route")

	require.True(t, p.AddSink("kitchen"))
	events.waitFor(t, SinkAdded{Sink: "kitchen"})
	assert.False(t, p.AddSink("kitchen"), "already joined")
	assert.Equal(t, []string{"kitchen"}, p.Sinks())
	assert.True(t, p.HasSink("kitchen"))

	assert.ErrorIs(t, p.SetDataSource(tone(t, time.Second)), ErrSinkOpened)
}

func TestJoinNegotiatesRaw(t *testing.T) {
	d := newFakeDialer(t, "den")
	p, events := newTestPlayer(t, d, tone(t, time.Second))
	p.SetPreferredFormat(capability.MediaTypeOpus)

	before := p.Clock().Now()
	require.True(t, p.AddSink("den"))
	events.waitFor(t, SinkAdded{Sink: "den"})

	// 44.1kHz cannot be Opus encoded so the player falls back to raw
	config, ok := d.sinks["den"].Configuration()
	require.True(t, ok)
	assert.Equal(t, capability.MediaTypeRaw, config.Type)

	ep := p.find("den")
	require.NotNil(t, ep)
	assert.Equal(t, packetBytes, ep.packetBytes)
	assert.Equal(t, 5*cd.BytesPerSecond(), ep.fifoSize)
	assert.Equal(t, testOwner, d.sinks["den"].Owner())

	c := ep.position()
	assert.Equal(t, cd.Bytes(time.Second), c.remaining, "first sink reads from the start")
	assert.GreaterOrEqual(t, c.timestamp, before+uint64(100*time.Millisecond))
}

func TestBasicPlayback(t *testing.T) {
	const size = 176400
	d := newFakeDialer(t, "living")
	p, events := newTestPlayer(t, d, source.Silence(cd, size))

	playStates := make(chan sink.PlayStateChanged, 16)
	d.sinks["living"].AddListener(func(e sink.Event) {
		if ev, ok := e.(sink.PlayStateChanged); ok {
			select {
			case playStates <- ev:
			default:
			}
		}
	})

	require.True(t, p.AddSink("living"))
	events.waitFor(t, SinkAdded{Sink: "living"})
	require.True(t, p.Play())
	assert.True(t, p.IsPlaying())
	events.waitFor(t, StateChanged{Old: StateInit, New: StatePlaying})

	select {
	case ev := <-playStates:
		assert.Equal(t, sink.PlayStateChanged{Old: sink.Idle, New: sink.Playing}, ev)
	case <-time.After(3 * time.Second):
		t.Fatal("sink never started playing")
	}

	dev := d.devs["living"]
	require.Eventually(t, func() bool { return dev.BytesWritten() == size }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, d.conn("living").sendCount())
	assert.Equal(t, 0, p.find("living").position().remaining)
}

func TestLateJoinCatchUp(t *testing.T) {
	d := newFakeDialer(t, "a", "b")
	src := tone(t, 20*time.Second)
	p, events := newTestPlayer(t, d, src)

	require.True(t, p.AddSink("a"))
	events.waitFor(t, SinkAdded{Sink: "a"})
	require.True(t, p.Play())

	a := p.find("a")
	// priming fits 13 packets (about 4.8s) in the 5s FIFO
	require.Eventually(t, func() bool {
		return a.position().remaining <= src.InputSize()-13*packetBytes
	}, 3*time.Second, 5*time.Millisecond, "sink a has primed its FIFO")
	before := a.position()

	// hold b's first send so its start cursor can be inspected
	gate := make(chan struct{})
	d.mu.Lock()
	d.gates["b"] = gate
	d.mu.Unlock()

	require.True(t, p.AddSink("b"))
	events.waitFor(t, SinkAdded{Sink: "b"})
	b := p.find("b")
	require.NotNil(t, b)
	require.Eventually(t, func() bool { return p.emitting(b) }, time.Second, time.Millisecond)

	start := b.position()
	close(gate)

	assert.Greater(t, src.InputSize()-start.remaining, 0, "b does not start at offset 0")
	assert.Greater(t, start.remaining, before.remaining, "b starts behind a in the data")
	assert.Less(t, start.timestamp, before.timestamp, "b starts earlier on the timeline")
	assert.Zero(t, (start.remaining-before.remaining)%packetBytes)
}

func TestPauseRewindsByFlushedBytes(t *testing.T) {
	d := newFakeDialer(t, "study")
	src := tone(t, 20*time.Second)
	p, events := newTestPlayer(t, d, src)

	assert.False(t, p.Pause(), "not playing")

	require.True(t, p.AddSink("study"))
	events.waitFor(t, SinkAdded{Sink: "study"})
	require.True(t, p.Play())

	ep := p.find("study")
	require.Eventually(t, func() bool {
		return ep.position().remaining < src.InputSize()-4*packetBytes
	}, 3*time.Second, 5*time.Millisecond)

	require.True(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())
	assert.False(t, p.emitting(ep))
	assert.True(t, p.Pause(), "already paused")

	paused := ep.position().remaining
	require.Eventually(t, func() bool {
		return ep.position().remaining > paused
	}, 3*time.Second, 5*time.Millisecond, "flush reply rewinds the cursor")

	rewound := ep.position().remaining - paused
	assert.Zero(t, rewound%packetBytes)
	assert.Equal(t, sink.Idle, d.sinks["study"].PlayState())

	require.True(t, p.Play())
	events.waitFor(t, StateChanged{Old: StatePaused, New: StatePlaying})
	require.Eventually(t, func() bool { return d.sinks["study"].PlayState() == sink.Playing }, 3*time.Second, 5*time.Millisecond)
}

func TestPausePlayCycles(t *testing.T) {
	d := newFakeDialer(t, "den")
	src := tone(t, 30*time.Second)
	p, events := newTestPlayer(t, d, src)

	require.True(t, p.AddSink("den"))
	events.waitFor(t, SinkAdded{Sink: "den"})
	s := d.sinks["den"]

	for i := 0; i < 3; i++ {
		require.True(t, p.Play())
		require.Eventually(t, func() bool {
			return s.PlayState() == sink.Playing
		}, 3*time.Second, 5*time.Millisecond, "cycle %d: sink resumes", i)

		require.True(t, p.Pause())
		require.Eventually(t, func() bool {
			return s.PlayState() == sink.Idle
		}, 3*time.Second, 5*time.Millisecond, "cycle %d: sink ends idle after the flush", i)
	}
}

func TestStaleFlushReplyIgnored(t *testing.T) {
	d := newFakeDialer(t, "hall")
	src := tone(t, 20*time.Second)
	p, events := newTestPlayer(t, d, src)

	require.True(t, p.AddSink("hall"))
	events.waitFor(t, SinkAdded{Sink: "hall"})

	ep := p.find("hall")
	ep.setRemaining(src.InputSize() - 3*packetBytes)

	// not paused: ignored
	p.flushed(ep, 2*packetBytes)
	assert.Equal(t, src.InputSize()-3*packetBytes, ep.position().remaining)

	p.mu.Lock()
	p.setStateLocked(StatePaused)
	p.mu.Unlock()

	p.flushed(ep, 2*packetBytes+100)
	assert.Equal(t, src.InputSize()-packetBytes, ep.position().remaining, "rounded down to whole packets")

	p.flushed(ep, 5*packetBytes)
	assert.Equal(t, src.InputSize(), ep.position().remaining, "capped at the input size")
}

func TestRemoveSink(t *testing.T) {
	d := newFakeDialer(t, "porch")
	p, events := newTestPlayer(t, d, tone(t, 5*time.Second))

	assert.False(t, p.RemoveSink("porch"), "unknown")

	require.True(t, p.AddSink("porch"))
	events.waitFor(t, SinkAdded{Sink: "porch"})

	require.True(t, p.RemoveSink("porch"))
	events.waitFor(t, SinkRemoved{Sink: "porch", Lost: false})
	assert.Equal(t, 0, p.SinkCount())
	assert.Equal(t, "", d.sinks["porch"].Owner(), "stream closed")
	assert.False(t, p.RemoveSink("porch"))
}

func TestSessionLossRemovesWithoutClose(t *testing.T) {
	d := newFakeDialer(t, "attic")
	p, events := newTestPlayer(t, d, tone(t, 5*time.Second))

	require.True(t, p.AddSink("attic"))
	events.waitFor(t, SinkAdded{Sink: "attic"})

	d.conn("attic").drop()
	events.waitFor(t, SinkRemoved{Sink: "attic", Lost: true})
	assert.False(t, p.HasSink("attic"))
	assert.Equal(t, testOwner, d.sinks["attic"].Owner(), "no close sent to an unreachable sink")
}

func TestOwnershipLossRemovesSink(t *testing.T) {
	d := newFakeDialer(t, "garage")
	p, events := newTestPlayer(t, d, tone(t, 5*time.Second))

	require.True(t, p.AddSink("garage"))
	events.waitFor(t, SinkAdded{Sink: "garage"})

	require.NoError(t, d.sinks["garage"].Open("another-source"))
	events.waitFor(t, SinkRemoved{Sink: "garage", Lost: true})
}

func TestMuteAcrossSinks(t *testing.T) {
	d := newFakeDialer(t, "left", "right")
	p, events := newTestPlayer(t, d, tone(t, time.Second))
	ctx := context.Background()

	_, err := p.Mute(ctx, "")
	assert.ErrorIs(t, err, ErrUnknownSink)

	for _, name := range []string{"left", "right"} {
		require.True(t, p.AddSink(name))
		events.waitFor(t, SinkAdded{Sink: name})
	}

	require.NoError(t, p.SetMute(ctx, "", true))
	muted, err := p.Mute(ctx, "")
	require.NoError(t, err)
	assert.True(t, muted)
	events.waitFor(t, MuteChanged{Sink: "left", Mute: true})
	events.waitFor(t, MuteChanged{Sink: "right", Mute: true})

	require.NoError(t, p.SetMute(ctx, "left", false))
	muted, err = p.Mute(ctx, "")
	require.NoError(t, err)
	assert.False(t, muted)

	require.NoError(t, p.SetVolume(ctx, "right", 40))
	v, err := p.Volume(ctx, "right")
	require.NoError(t, err)
	assert.Equal(t, int16(40), v)
	events.waitFor(t, VolumeChanged{Sink: "right", Volume: 40})

	low, high, step, err := p.VolumeRange(ctx, "right")
	require.NoError(t, err)
	assert.Equal(t, [3]int16{0, 100, 1}, [3]int16{low, high, step})

	_, err = p.Volume(ctx, "basement")
	assert.ErrorIs(t, err, ErrUnknownSink)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(9).String())
}
