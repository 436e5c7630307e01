package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"agora/internal/progression"
)

// Handler receives events from a Broadcaster.
type Handler func(ctx context.Context, ev progression.Event)

// Broadcaster is an in-process observer list. Handlers run synchronously in
// subscription order.
type Broadcaster struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Broadcaster) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every handler. A panicking handler does not stop
// delivery to the others; its panic is returned as an error.
func (b *Broadcaster) Publish(ctx context.Context, ev progression.Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := deliver(ctx, h, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, h Handler, ev progression.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	h(ctx, ev)
	return nil
}

// Fanout publishes to several publishers and joins their errors.
type Fanout []progression.Publisher

func (f Fanout) Publish(ctx context.Context, ev progression.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogHandler returns a Handler that records each event on logger. Level-ups
// are logged at info, plain awards at debug.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, ev progression.Event) {
		level := slog.LevelDebug
		if ev.Type == progression.EventLevelUp {
			level = slog.LevelInfo
		}
		logger.LogAttrs(ctx, level, "Progression event",
			slog.String("type", string(ev.Type)),
			slog.String("user_id", ev.UserID),
			slog.String("source", string(ev.Source)),
			slog.Int64("amount", ev.Amount),
			slog.Int64("xp", ev.XP),
			slog.Int("level", ev.Level),
		)
	}
}
