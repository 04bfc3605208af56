// ABOUTME: Task-per-key registry with one in-flight task per key
// ABOUTME: Used for per-sink add/remove operations and emission workers
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Resonate-Protocol/resonate-stream/internal/logging"
)

var (
	// ErrInFlight is returned when a task for the key is already running
	ErrInFlight = errors.New("operation already in flight")

	// ErrClosed is returned once the registry has been closed
	ErrClosed = errors.New("registry closed")
)

// Task is a running unit of work bound to a key
type Task struct {
	Key       string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the task function has returned
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Registry runs at most one task per key
type Registry struct {
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates a registry whose tasks are cancelled when it is closed
func NewRegistry(name string, logger *zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	l := logging.Or(logger, "tasks")
	return &Registry{
		log:    l.With().Str("registry", name).Logger(),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Task),
	}
}

// Go starts fn for key unless a task for key is already running.
// The check and insert happen under the lock before the goroutine is spawned.
func (r *Registry) Go(key string, fn func(ctx context.Context)) (*Task, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := r.tasks[key]; ok {
		r.mu.Unlock()
		r.log.Warn().Str("key", key).Msg("task already in flight, rejecting")
		return nil, ErrInFlight
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t := &Task{
		Key:       key,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.tasks[key] = t
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer r.release(key, t)
		defer cancel()
		fn(ctx)
	}()

	return t, nil
}

func (r *Registry) release(key string, t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[key] == t {
		delete(r.tasks, key)
	}
}

// Running reports whether a task for key is in flight
func (r *Registry) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

// Keys returns the keys with running tasks, sorted
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.tasks))
	for k := range r.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cancel signals the task for key to stop without waiting for it
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

// Stop cancels the task for key and waits for it to return.
// Must not be called from inside the task itself.
func (r *Registry) Stop(key string) bool {
	r.mu.Lock()
	t, ok := r.tasks[key]
	r.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// Wait blocks until every running task has returned
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels all tasks, waits for them and rejects new ones
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
