package clientsync

import (
	"context"
	"sync"
)

// Serializer runs calls sharing a key one at a time, in arrival order.
// Calls with different keys run concurrently.
type Serializer struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewSerializer() *Serializer {
	return &Serializer{locks: make(map[string]*keyLock)}
}

// Do waits for earlier calls with key to finish, then runs fn. It returns
// ctx.Err() without running fn if ctx ends while waiting.
func (s *Serializer) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l := s.acquire(key)
	defer s.release(key, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.ch }()
	return fn(ctx)
}

func (s *Serializer) acquire(key string) *keyLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *Serializer) release(key string, l *keyLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}
