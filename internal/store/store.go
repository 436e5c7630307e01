// Package store implements optimistic read-modify-write transactions over
// versioned entities.
//
// A transaction declares the entities it will read, runs its body against a
// snapshot of them, and commits only if none of those entities changed in
// the meantime. Losing attempts are retried with backoff up to a bounded
// number of times before the caller gets a CONFLICT AppError.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Options tunes the retry loop.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the retry settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
	}
}

// Store runs transactions against a gorm database.
type Store struct {
	db     *gorm.DB
	opts   Options
	logger *observability.StoreLogger
}

// New creates a Store. Zero option fields fall back to DefaultOptions.
func New(db *gorm.DB, opts Options) *Store {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.InitialBackoff)
	}
	return &Store{db: db, opts: opts, logger: observability.NewStoreLogger("store")}
}

// DB returns the underlying connection for read paths.
func (s *Store) DB() *gorm.DB { return s.db }

// MaxAttempts returns the configured attempt budget.
func (s *Store) MaxAttempts() int { return s.opts.MaxAttempts }

// RunTransaction runs body with a snapshot of readSet and commits its
// staged writes atomically. name labels metrics, logs and spans.
//
// Errors returned by body are terminal and returned as-is. Cancelling ctx
// does not interrupt an attempt that has started.
func (s *Store) RunTransaction(ctx context.Context, name string, readSet []models.EntityRef, body func(tx *Tx) error) error {
	ctx = context.WithoutCancel(ctx)
	span, ctx := observability.NewSpan(ctx, "store."+name)
	defer span.End()
	defer observability.TrackTx(name)()

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		observability.TxAttempts.WithLabelValues(name).Inc()

		tx := newTx(ctx, s.db, readSet)
		if err := body(tx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if tx.written() == 0 && len(tx.reads) == 0 {
			return struct{}{}, nil
		}

		err := tx.commit()
		if err == nil {
			return struct{}{}, nil
		}
		if isConflict(err) {
			observability.TxConflicts.WithLabelValues(name).Inc()
			s.logger.LogRetry(ctx, name, map[string]any{"attempt": attempt, "reason": err.Error()})
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
	)
	span.AddAttributes(attribute.Int("tx.attempts", attempt))
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if isConflict(err) {
		observability.TxExhausted.WithLabelValues(name).Inc()
		s.logger.LogError(ctx, err, name, map[string]any{"attempts": attempt})
		err = models.NewConflictError("The resource was modified concurrently, please retry", err)
	}
	span.SetError(err)
	if !isExpected(err) {
		s.logger.LogError(ctx, err, name, nil)
	}
	return err
}

func (s *Store) newBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.opts.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         s.opts.MaxBackoff,
	}
	b.Reset()
	return b
}

// isConflict reports whether a commit failed because another writer got
// there first. Postgres can also report that as a serialization failure,
// a deadlock or a duplicate key on insert.
func isConflict(err error) bool {
	if errors.Is(err, errStale) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isExpected reports errors that are part of normal request flow.
func isExpected(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code != models.CodeInternal
	}
	return false
}
