// Package clientsync applies optimistic local updates and reconciles them
// with the authoritative server response.
package clientsync

import (
	"fmt"
	"sync"
)

// State is the lifecycle position of a Mutation.
type State int

const (
	Idle State = iota
	Pending
	Committed
	Reverted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Reverted:
		return "reverted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Mutation tracks one optimistic change. Committed and Reverted are final.
type Mutation struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin moves Idle to Pending.
func (m *Mutation) Begin() error { return m.transition(Idle, Pending) }

// Commit moves Pending to Committed.
func (m *Mutation) Commit() error { return m.transition(Pending, Committed) }

// Revert moves Pending to Reverted.
func (m *Mutation) Revert() error { return m.transition(Pending, Reverted) }

func (m *Mutation) transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("clientsync: cannot move mutation from %s to %s", m.state, to)
	}
	m.state = to
	return nil
}
