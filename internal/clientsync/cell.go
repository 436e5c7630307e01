package clientsync

import (
	"context"
	"sync"
)

// Cell holds a locally displayed value that mutations update optimistically.
type Cell[T any] struct {
	mu        sync.Mutex
	value     T
	// authoritative is the last value a server returned.
	authoritative T
	seq       uint64 // last mutation started
	committed uint64 // last mutation whose result was applied
	pending   int    // mutations whose commit has not returned
	refetch   func(ctx context.Context) (T, error)
}

// NewCell creates a cell holding initial. refetch, if non-nil, is used to
// reload the authoritative value after a failed mutation.
func NewCell[T any](initial T, refetch func(ctx context.Context) (T, error)) *Cell[T] {
	return &Cell[T]{value: initial, authoritative: initial, refetch: refetch}
}

// Get returns the value currently shown.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Apply shows tentative(current) immediately and runs commit. On success the
// server's value replaces the local one, unless a newer mutation already
// committed. On failure the last authoritative value is restored, a
// refetch is attempted, and commit's error is returned.
func (c *Cell[T]) Apply(ctx context.Context, tentative func(T) T, commit func(ctx context.Context) (T, error)) (*Mutation, error) {
	m := &Mutation{}
	if err := m.Begin(); err != nil {
		return m, err
	}

	c.mu.Lock()
	c.seq++
	c.pending++
	seq := c.seq
	c.value = tentative(c.value)
	c.mu.Unlock()

	result, err := commit(ctx)
	if err != nil {
		c.mu.Lock()
		c.pending--
		// Only roll back if nothing newer has touched the cell.
		if c.seq == seq {
			c.value = c.authoritative
		}
		c.mu.Unlock()
		c.reload(ctx, seq)
		_ = m.Revert()
		return m, err
	}

	c.mu.Lock()
	c.pending--
	if seq > c.committed {
		c.committed = seq
		c.authoritative = result
		if seq == c.seq || c.pending == 0 {
			c.value = result
		}
	}
	c.mu.Unlock()
	_ = m.Commit()
	return m, nil
}

func (c *Cell[T]) reload(ctx context.Context, seq uint64) {
	if c.refetch == nil {
		return
	}
	c.mu.Lock()
	committed := c.committed
	c.mu.Unlock()

	fresh, err := c.refetch(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed != committed {
		return
	}
	c.authoritative = fresh
	if c.seq == seq {
		c.value = fresh
	}
}
