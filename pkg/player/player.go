// ABOUTME: Player construction, configuration and state
// ABOUTME: Owns the sink set, the data source and the per-sink task registries
package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
	"github.com/Resonate-Protocol/resonate-stream/internal/tasks"
	"github.com/Resonate-Protocol/resonate-stream/pkg/capability"
	"github.com/Resonate-Protocol/resonate-stream/pkg/clock"
	"github.com/Resonate-Protocol/resonate-stream/pkg/source"
)

var (
	// ErrSinkOpened is returned when changing the source while sinks are open
	ErrSinkOpened = errors.New("sink already opened")

	// ErrUnknownSink is returned for a sink name the player does not hold
	ErrUnknownSink = errors.New("unknown sink")

	// ErrNoDataSource is returned when joining before a source is set
	ErrNoDataSource = errors.New("no data source")
)

// State is the player's play state
type State int

const (
	StateIdle    State = iota // no data source
	StateInit                 // data source set
	StatePlaying              // emitting audio
	StatePaused               // emission suspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInit:
		return "init"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config holds player settings
type Config struct {
	// Host and Path are passed to each sink's port on Connect
	Host string
	Path string

	StartDelay      time.Duration // first sink starts this far ahead (default 100ms)
	CommandLead     time.Duration // play/pause lead per sink (default 250ms)
	FlushDelay      time.Duration // flush follows pause by this much (default 1ms)
	CatchUpFraction float64       // share of in-flight data a late sink skips (default 0.9)

	PositionRetries int           // FifoPosition attempts on timeout (default 15)
	PositionBackoff time.Duration // wait between attempts (default 2s)
	DataWait        time.Duration // wait when the source is not ready (default 10ms)
	CallTimeout     time.Duration // per remote call (default 5s)

	Sync   clock.SyncOptions
	Clock  *clock.Clock
	Logger *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.StartDelay <= 0 {
		c.StartDelay = 100 * time.Millisecond
	}
	if c.CommandLead <= 0 {
		c.CommandLead = 250 * time.Millisecond
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = time.Millisecond
	}
	if c.CatchUpFraction <= 0 || c.CatchUpFraction > 1 {
		c.CatchUpFraction = 0.9
	}
	if c.PositionRetries <= 0 {
		c.PositionRetries = 15
	}
	if c.PositionBackoff <= 0 {
		c.PositionBackoff = 2 * time.Second
	}
	if c.DataWait <= 0 {
		c.DataWait = 10 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Player streams a data source to a set of sinks
type Player struct {
	config Config
	dialer Dialer
	clock  *clock.Clock
	log    zerolog.Logger

	// ctl serializes play, pause and changes to the open sink set
	ctl sync.Mutex

	mu        sync.Mutex
	state     State
	source    source.DataSource
	preferred string
	sinks     []*endpoint // join order
	closed    bool

	ops      *tasks.Registry // one add or remove per sink name
	losses   *tasks.Registry
	emitters *tasks.Registry
	flushes  *tasks.Registry
	events   *dispatcher
}

// New creates a player that reaches sinks through dialer
func New(config Config, dialer Dialer) *Player {
	config = config.withDefaults()
	log := logging.Or(config.Logger, "player")

	return &Player{
		config:    config,
		dialer:    dialer,
		clock:     config.Clock,
		log:       log,
		preferred: capability.MediaTypeRaw,
		ops:       tasks.NewRegistry("sink-ops", &log),
		losses:    tasks.NewRegistry("sink-losses", &log),
		emitters:  tasks.NewRegistry("emitters", &log),
		flushes:   tasks.NewRegistry("flushes", &log),
		events:    newDispatcher(),
	}
}

// Clock returns the timeline sinks are synchronized to
func (p *Player) Clock() *clock.Clock {
	return p.clock
}

// SetDataSource selects the audio to stream. It fails while any sink is open.
func (p *Player) SetDataSource(src source.DataSource) error {
	if err := src.Format().Validate(); err != nil {
		return fmt.Errorf("invalid data source: %w", err)
	}

	p.ctl.Lock()
	defer p.ctl.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.sinks {
		if ep.opened() {
			return ErrSinkOpened
		}
	}
	p.source = src
	p.setStateLocked(StateInit)
	return nil
}

// SetPreferredFormat selects the media type to negotiate; sinks that do not
// offer it receive raw PCM
func (p *Player) SetPreferredFormat(mediaType string) {
	p.mu.Lock()
	p.preferred = mediaType
	p.mu.Unlock()
}

// State returns the current play state
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPlaying reports whether the player is emitting
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// setStateLocked changes state and queues StateChanged. Caller holds p.mu.
func (p *Player) setStateLocked(s State) {
	if p.state == s {
		return
	}
	old := p.state
	p.state = s
	p.log.Info().Stringer("from", old).Stringer("to", s).Msg("player state changed")
	p.events.post(StateChanged{Old: old, New: s})
}

// Sinks returns the names of open sinks in join order
func (p *Player) Sinks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.sinks))
	for _, ep := range p.sinks {
		if ep.opened() {
			names = append(names, ep.name)
		}
	}
	return names
}

// HasSink reports whether name is joined or joining
func (p *Player) HasSink(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findLocked(name) != nil
}

func (p *Player) findLocked(name string) *endpoint {
	for _, ep := range p.sinks {
		if ep.name == name {
			return ep
		}
	}
	return nil
}

func (p *Player) find(name string) *endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findLocked(name)
}

func (p *Player) openSinks() []*endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*endpoint, 0, len(p.sinks))
	for _, ep := range p.sinks {
		if ep.opened() {
			out = append(out, ep)
		}
	}
	return out
}

// Close removes every sink, waits for all workers and stops event delivery
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	// joins in flight fail once they see closed
	p.ops.Wait()
	p.RemoveAllSinks()
	p.ops.Wait()
	p.losses.Wait()
	p.ops.Close()
	p.losses.Close()
	p.emitters.Close()
	p.flushes.Close()
	p.events.close()
}
