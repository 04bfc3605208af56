// ABOUTME: Playback state machine for a sink
// ABOUTME: Event-driven transitions that notify listeners only on real changes
package sink

import "sync"

// PlayState is the playback state of a sink
type PlayState uint8

const (
	Idle PlayState = iota
	Playing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// stateMachine applies the allowed transitions:
//
//	written:  idle, paused  -> playing
//	underrun: playing       -> idle
//	paused:   idle, playing -> paused
//	flushed:  playing, paused -> idle
type stateMachine struct {
	mu       sync.Mutex
	state    PlayState
	onChange func(from, to PlayState)
}

func newStateMachine(onChange func(from, to PlayState)) *stateMachine {
	return &stateMachine{state: Idle, onChange: onChange}
}

func (m *stateMachine) get() PlayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateMachine) transition(to PlayState, from ...PlayState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.state
	if old == to {
		return false
	}
	for _, f := range from {
		if old == f {
			m.state = to
			if m.onChange != nil {
				m.onChange(old, to)
			}
			return true
		}
	}
	return false
}

func (m *stateMachine) written() bool {
	return m.transition(Playing, Idle, Paused)
}

func (m *stateMachine) underrun() bool {
	return m.transition(Idle, Playing)
}

func (m *stateMachine) paused() bool {
	return m.transition(Paused, Idle, Playing)
}

func (m *stateMachine) flushed() bool {
	return m.transition(Idle, Playing, Paused)
}
