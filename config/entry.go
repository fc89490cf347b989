package config

import "sync"

// Entry is a named setting with a default supplier. The supplier runs at
// most once, on the first Get that finds no value; Set replaces the value
// and the supplier is never consulted afterwards.
type Entry[T any] struct {
	value    T
	supplier func() T
	name     string
	env      string
	desc     string
	mu       sync.Mutex
	resolved bool
}

// NewEntry creates an entry backed by the given default supplier.
func NewEntry[T any](name string, supplier func() T) *Entry[T] {
	return &Entry[T]{name: name, supplier: supplier}
}

// Name returns the setting name.
func (e *Entry[T]) Name() string { return e.name }

// Env returns the environment variable the default is read from, if any.
func (e *Entry[T]) Env() string { return e.env }

// Description returns the human-readable description.
func (e *Entry[T]) Description() string { return e.desc }

// Get returns the current value, materializing the default on first use.
func (e *Entry[T]) Get() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.resolved {
		e.value = e.supplier()
		e.resolved = true
	}
	return e.value
}

// Set overrides the value.
func (e *Entry[T]) Set(v T) {
	e.mu.Lock()
	e.value = v
	e.resolved = true
	e.mu.Unlock()
}

// Resolved reports whether the entry holds a value.
func (e *Entry[T]) Resolved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}
