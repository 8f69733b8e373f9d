// Package watch provides a small last-value-wins broadcast primitive,
// the Go analogue of a single-slot observable value: Set never blocks,
// and every observer waiting in Changed wakes up on the next Set.
//
// The agent uses it inside mode.Store to hold the current
// protocol.ModeConfig, which the MODE_UPDATE handler sets and the
// dispatcher reads; shutdown is signaled by context cancellation, not
// through this type. The standard library has no ready-made type for it.
package watch

import "sync"

// Value holds a single current value of type T plus a generation channel
// that is closed and replaced every time Set is called, waking any
// goroutine blocked in Changed.
type Value[T any] struct {
	mu      sync.RWMutex
	current T
	changed chan struct{}
}

// NewValue creates a Value initialized to v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{
		current: v,
		changed: make(chan struct{}),
	}
}

// Get returns the current value.
func (w *Value[T]) Get() T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Set replaces the current value and wakes every goroutine currently
// blocked in Changed. Never blocks.
func (w *Value[T]) Set(v T) {
	w.mu.Lock()
	w.current = v
	prev := w.changed
	w.changed = make(chan struct{})
	w.mu.Unlock()
	close(prev)
}

// Changed returns a channel that is closed the next time Set is called.
// Callers select on it and then call Get to read the new value — the
// channel itself never carries the value, matching a watch channel's
// "something changed, go re-read" notification style.
func (w *Value[T]) Changed() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.changed
}
