// ABOUTME: Tests for the observer registry
// ABOUTME: Covers ordering, removal and removal during notification
package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryOrder(t *testing.T) {
	r := New[string]()
	r.Add("a")
	h := r.Add("b")
	r.Add("c")

	assert.Equal(t, []string{"a", "b", "c"}, r.Snapshot())

	assert.True(t, r.Remove(h))
	assert.False(t, r.Remove(h), "second removal should report absence")
	assert.Equal(t, []string{"a", "c"}, r.Snapshot())
	assert.Equal(t, 2, r.Len())
}

func TestRemoveDuringEach(t *testing.T) {
	r := New[func()]()
	var calls []int
	var second Handle

	r.Add(func() {
		calls = append(calls, 1)
		r.Remove(second)
	})
	second = r.Add(func() { calls = append(calls, 2) })

	// the snapshot taken before iteration still includes the removed observer
	r.Each(func(fn func()) { fn() })
	assert.Equal(t, []int{1, 2}, calls)

	calls = nil
	r.Each(func(fn func()) { fn() })
	assert.Equal(t, []int{1}, calls)
}

func TestHandlesAreStable(t *testing.T) {
	r := New[int]()
	h1 := r.Add(1)
	r.Remove(h1)
	h2 := r.Add(2)
	assert.NotEqual(t, h1, h2, "handles must not be reused")
}
