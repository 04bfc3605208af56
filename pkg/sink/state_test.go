// ABOUTME: Play state machine tests
// ABOUTME: Checks that only the allowed transitions happen and each notifies once
package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type transition struct {
	from, to PlayState
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name    string
		start   PlayState
		event   func(m *stateMachine) bool
		want    PlayState
		changed bool
	}{
		{"written from idle", Idle, (*stateMachine).written, Playing, true},
		{"written from paused", Paused, (*stateMachine).written, Playing, true},
		{"written while playing", Playing, (*stateMachine).written, Playing, false},
		{"underrun while playing", Playing, (*stateMachine).underrun, Idle, true},
		{"underrun while paused", Paused, (*stateMachine).underrun, Paused, false},
		{"underrun while idle", Idle, (*stateMachine).underrun, Idle, false},
		{"pause from idle", Idle, (*stateMachine).paused, Paused, true},
		{"pause from playing", Playing, (*stateMachine).paused, Paused, true},
		{"pause while paused", Paused, (*stateMachine).paused, Paused, false},
		{"flush while playing", Playing, (*stateMachine).flushed, Idle, true},
		{"flush while paused", Paused, (*stateMachine).flushed, Idle, true},
		{"flush while idle", Idle, (*stateMachine).flushed, Idle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []transition
			m := newStateMachine(func(from, to PlayState) {
				seen = append(seen, transition{from, to})
			})
			m.state = tt.start

			assert.Equal(t, tt.changed, tt.event(m))
			assert.Equal(t, tt.want, m.get())

			if tt.changed {
				assert.Equal(t, []transition{{tt.start, tt.want}}, seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestIdleReachesPausedOnlyByPause(t *testing.T) {
	m := newStateMachine(nil)
	for _, ev := range []func(*stateMachine) bool{
		(*stateMachine).underrun,
		(*stateMachine).flushed,
	} {
		ev(m)
		assert.Equal(t, Idle, m.get())
	}
	assert.True(t, m.paused())
	assert.Equal(t, Paused, m.get())
}

func TestPlayStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "unknown", PlayState(9).String())
}
