// ABOUTME: Observer registry keyed by stable handles
// ABOUTME: Iteration runs over a snapshot so observers may unregister while being notified
package observer

import "sync"

// Handle identifies a registered observer
type Handle uint64

// Registry holds observers of type T
type Registry[T any] struct {
	mu    sync.Mutex
	next  Handle
	order []Handle
	items map[Handle]T
}

// New creates an empty registry
func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[Handle]T)}
}

// Add registers an observer and returns its handle
func (r *Registry[T]) Add(item T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.items[h] = item
	r.order = append(r.order, h)
	return h
}

// Remove unregisters the observer, reporting whether it was present
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[h]; !ok {
		return false
	}
	delete(r.items, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of registered observers
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Snapshot returns the observers in registration order
func (r *Registry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.items[h])
	}
	return out
}

// Each calls fn for every observer registered at the time of the call.
// The lock is not held while fn runs.
func (r *Registry[T]) Each(fn func(T)) {
	for _, item := range r.Snapshot() {
		fn(item)
	}
}
