package progression

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/store"

	"gorm.io/gorm"
)

// Award is the outcome of AddXP.
type Award struct {
	UserID    string `json:"user_id"`
	NewXP     int64  `json:"xp"`
	NewLevel  int    `json:"level"`
	LeveledUp bool   `json:"leveled_up"`
}

// Engine owns every write to user progression rows.
type Engine struct {
	store     *store.Store
	repo      repository.ProgressionRepository
	cache     *cache.Cache
	publisher Publisher
	levels    LevelTable
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLevels replaces the default level table.
func WithLevels(t LevelTable) Option { return func(e *Engine) { e.levels = t } }

// WithCache enables read caching of progression rows.
func WithCache(c *cache.Cache) Option { return func(e *Engine) { e.cache = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an Engine. A nil publisher drops events.
func NewEngine(s *store.Store, repo repository.ProgressionRepository, publisher Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		repo:      repo,
		publisher: publisher,
		levels:    DefaultLevels,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Levels returns the table the engine computes levels with.
func (e *Engine) Levels() LevelTable { return e.levels }

// Ensure creates the user's progression row at zero XP if it does not exist.
func (e *Engine) Ensure(ctx context.Context, userID string) error {
	if userID == "" {
		return models.NewValidationError("User ID is required")
	}
	ref := models.ProgressionRef(userID)
	return e.store.RunTransaction(ctx, "progression.ensure", []models.EntityRef{ref}, func(tx *store.Tx) error {
		var existing models.UserProgression
		err := tx.Get(ref, &existing)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := e.now().UTC()
		tx.Insert(&models.UserProgression{
			ID:        userID,
			XP:        0,
			Level:     e.levels.LevelFor(0),
			CreatedAt: now,
			UpdatedAt: now,
		})
		return nil
	})
}

// Get returns the user's progression.
func (e *Engine) Get(ctx context.Context, userID string) (*models.UserProgression, error) {
	var p models.UserProgression
	err := e.cache.Aside(ctx, cache.ProgressionKey(userID), &p, cache.ProgressionTTL, func() error {
		got, err := e.repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		p = *got
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Progression", userID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AddXP adds amount to the user's XP and recomputes the level. LeveledUp is
// true when the level after the award is above the level read by the same
// transaction, so concurrent awards report a crossing exactly once.
func (e *Engine) AddXP(ctx context.Context, userID string, amount int64, source Source) (Award, error) {
	if amount <= 0 {
		return Award{}, models.NewValidationError("XP amount must be positive")
	}

	span, ctx := observability.NewSpan(ctx, "progression.add_xp")
	defer span.End()

	ref := models.ProgressionRef(userID)
	var (
		award    Award
		previous int
	)
	err := e.store.RunTransaction(ctx, "progression.add_xp", []models.EntityRef{ref}, func(tx *store.Tx) error {
		var p models.UserProgression
		if err := tx.Get(ref, &p); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return models.NewNotFoundError("Progression", userID)
			}
			return err
		}

		if amount > math.MaxInt64-p.XP {
			return models.NewValidationError("XP amount would overflow the user's total")
		}
		previous = p.Level
		p.XP += amount
		p.Level = e.levels.LevelFor(p.XP)
		p.UpdatedAt = e.now().UTC()

		award = Award{
			UserID:    userID,
			NewXP:     p.XP,
			NewLevel:  p.Level,
			LeveledUp: p.Level > previous,
		}
		return tx.Put(&p)
	})
	if err != nil {
		span.SetError(err)
		return Award{}, err
	}

	e.cache.Invalidate(ctx, cache.ProgressionKey(userID))
	observability.XPAwarded.WithLabelValues(string(source)).Add(float64(amount))
	if award.LeveledUp {
		observability.LevelUps.WithLabelValues(strconv.Itoa(award.NewLevel)).Inc()
	}

	e.publish(ctx, Event{
		Type: EventXPAwarded, UserID: userID, Source: source, Amount: amount,
		XP: award.NewXP, Level: award.NewLevel, PreviousLevel: previous, At: e.now().UTC(),
	})
	if award.LeveledUp {
		e.publish(ctx, Event{
			Type: EventLevelUp, UserID: userID, Source: source, Amount: amount,
			XP: award.NewXP, Level: award.NewLevel, PreviousLevel: previous, At: e.now().UTC(),
		})
	}
	return award, nil
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish progression event",
			slog.String("type", string(ev.Type)),
			slog.String("user_id", ev.UserID),
			slog.String("error", err.Error()),
		)
	}
}
