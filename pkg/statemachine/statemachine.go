package statemachine

import (
	"sync"
)

// StateFn represents a state function following Rob Pike's pattern: each
// state does its work and returns the next state function, or nil when no
// further transition is possible.
type StateFn[T any] func(*T) StateFn[T]

// Machine is a small, thread-safe wrapper around a current state function.
type Machine[T any] struct {
	entity *T
	state  StateFn[T]
	mu     sync.RWMutex
}

// New creates a machine for the given entity starting at initial.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{
		entity: entity,
		state:  initial,
	}
}

// Current returns the current state function.
func (m *Machine[T]) Current() StateFn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set replaces the current state function without executing it.
func (m *Machine[T]) Set(state StateFn[T]) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Step executes the current state function once and stores the returned
// state. It reports whether a next state was produced.
func (m *Machine[T]) Step() bool {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	if state == nil {
		return false
	}

	next := state(m.entity)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	return next != nil
}

// Run executes state functions until one returns nil. State functions must
// return nil once the entity is stable, or the loop never terminates.
func (m *Machine[T]) Run() {
	for m.Step() {
	}
}
