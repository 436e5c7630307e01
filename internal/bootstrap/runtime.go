// Package bootstrap connects infrastructure and assembles the engine's
// services for the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"agora/internal/cache"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/featureflags"
	"agora/internal/middleware"
	"agora/internal/notifications"
	"agora/internal/progression"
	"agora/internal/repository"
	"agora/internal/service"
	"agora/internal/store"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRuntime connects to the database and Redis. The Redis client is nil
// when Redis is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, cache.Connect(cfg.RedisURL), nil
}

// Services is the assembled engine.
type Services struct {
	Store       *store.Store
	Content     *service.ContentService
	Likes       *service.LikeService
	Repair      *service.RepairService
	Progression *progression.Engine
	Notifier    *notifications.Notifier
	Broadcaster *notifications.Broadcaster
	Flags       *featureflags.Manager
	Rewards     progression.Rewards
}

// NewServices wires every service to db and, when non-nil, rdb.
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Services, error) {
	levels := progression.DefaultLevels
	if cfg.LevelsFile != "" {
		t, err := progression.LoadLevelTable(cfg.LevelsFile)
		if err != nil {
			return nil, err
		}
		levels = t
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	st := store.New(db, store.Options{
		MaxAttempts:    cfg.TxMaxAttempts,
		InitialBackoff: cfg.TxBackoffInitial(),
		MaxBackoff:     cfg.TxBackoffMax(),
	})

	posts := repository.NewPostRepository(db)
	comments := repository.NewCommentRepository(db)
	c := cache.New(rdb)
	postCache := c
	if !flags.Enabled(featureflags.PostCache, "") {
		postCache = nil
	}

	notifier := notifications.NewNotifier(rdb)
	broadcaster := notifications.NewBroadcaster()
	broadcaster.Subscribe(notifications.LogHandler(middleware.Logger))

	return &Services{
		Store: st,
		Content: service.NewContentService(st, posts, comments, postCache, service.ContentOptions{
			CommentFetchCap: cfg.CommentFetchCap,
		}),
		Likes:  service.NewLikeService(st, postCache),
		Repair: service.NewRepairService(st, posts, comments, cfg.RepairBatchSize),
		Progression: progression.NewEngine(st, repository.NewProgressionRepository(db),
			notifications.Fanout{broadcaster, notifier},
			progression.WithLevels(levels),
			progression.WithCache(c),
		),
		Notifier:    notifier,
		Broadcaster: broadcaster,
		Flags:       flags,
		Rewards: progression.Rewards{
			Post:    cfg.XPRewardPost,
			Comment: cfg.XPRewardComment,
			Like:    cfg.XPRewardLike,
		},
	}, nil
}
