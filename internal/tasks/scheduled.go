// ABOUTME: Deferred command execution on the stream clock
// ABOUTME: Sleeps until a virtual timestamp, then runs an action unless cancelled
package tasks

import (
	"context"
	"sync"
)

// Sleeper blocks until a timestamp on some clock is reached
type Sleeper interface {
	SleepUntil(ctx context.Context, at uint64) error
}

// Scheduled is a single pending action
type Scheduled struct {
	At uint64

	cancel context.CancelFunc
	done   chan struct{}
	fired  bool
	mu     sync.Mutex
}

// Cancel stops the action if it has not started and waits for the
// scheduling goroutine to exit. It reports whether the action ran.
func (s *Scheduled) Cancel() bool {
	s.cancel()
	<-s.done
	return s.Fired()
}

// Fired reports whether the action has run
func (s *Scheduled) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Done is closed once the action ran or was cancelled
func (s *Scheduled) Done() <-chan struct{} {
	return s.done
}

// Timers tracks scheduled actions so they can be cancelled together on teardown
type Timers struct {
	clock Sleeper

	mu      sync.Mutex
	pending map[*Scheduled]struct{}
}

// NewTimers creates an empty set of timers on clock
func NewTimers(clock Sleeper) *Timers {
	return &Timers{
		clock:   clock,
		pending: make(map[*Scheduled]struct{}),
	}
}

// At runs action once the clock reaches at. An action whose time has
// already passed runs right away on the scheduling goroutine.
func (t *Timers) At(at uint64, action func()) *Scheduled {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduled{
		At:     at,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	t.pending[s] = struct{}{}
	t.mu.Unlock()

	go func() {
		defer close(s.done)
		defer t.forget(s)
		defer cancel()

		if err := t.clock.SleepUntil(ctx, at); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.fired = true
		s.mu.Unlock()
		action()
	}()

	return s
}

func (t *Timers) forget(s *Scheduled) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, s)
}

// Pending returns the number of actions not yet finished
func (t *Timers) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Settle waits for every action due at or before at to run or be cancelled.
// Actions scheduled later are left pending. Must not be called from inside a
// scheduled action.
func (t *Timers) Settle(at uint64) {
	t.mu.Lock()
	var due []*Scheduled
	for s := range t.pending {
		if s.At <= at {
			due = append(due, s)
		}
	}
	t.mu.Unlock()

	for _, s := range due {
		<-s.done
	}
}

// CancelAll cancels every pending action and waits for their goroutines.
// Must not be called from inside a scheduled action.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	all := make([]*Scheduled, 0, len(t.pending))
	for s := range t.pending {
		all = append(all, s)
	}
	t.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
}
