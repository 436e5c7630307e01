// Package server contains the HTTP handlers for the engine's API.
package server

import (
	"context"
	"fmt"
	"time"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/middleware"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	services       *bootstrap.Services
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	services, err := bootstrap.NewServices(cfg, db, redisClient)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	middleware.InitMiddleware(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("agora-api"),
		services:       services,
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "Agora API",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s, nil
}

// App returns the configured Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	// Public reads
	api.Get("/posts", s.ListPosts)
	api.Get("/posts/:id/comments", s.GetPostComments)
	api.Get("/posts/:id", s.GetPost)

	protected := api.Group("", middleware.AuthRequired)
	writeLimit := middleware.RateLimit(s.redis, s.config.Env, 30, time.Minute, middleware.FailOpen, "content_write")
	likeLimit := middleware.RateLimit(s.redis, s.config.Env, 120, time.Minute, middleware.FailOpen, "like_toggle")

	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts := protected.Group("/posts")
	posts.Post("/", writeLimit, s.CreatePost)
	posts.Post("/:id/like", likeLimit, s.ToggleLikePost)
	posts.Post("/:id/comments", writeLimit, s.CreateComment)
	posts.Post("/:id/comments/:commentId/like", likeLimit, s.ToggleLikeComment)
	posts.Put("/:id/comments/:commentId", s.UpdateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	protected.Get("/progression/me", s.GetMyProgression)

	admin := protected.Group("/admin", middleware.AdminRequired)
	admin.Post("/xp", s.AddXP)
	admin.Post("/repair/comment-counts", s.RepairCommentCounts)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

// ReadinessCheck pings the database and, when configured, Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	// Redis only backs the cache and notifications, so it does not gate
	// readiness.
	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{"database": dbStatus, "redis": redisStatus},
		"time":   time.Now(),
	})
}

// GetFeatureFlags handles GET /api/admin/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"raw":       s.services.Flags.Raw(),
		"evaluated": s.services.Flags.Snapshot(user.ID),
	})
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	if err := s.services.Notifier.StartPatternSubscriber(s.shutdownCtx, func(channel, payload string) {
		middleware.Logger.Debug("notification delivered", "channel", channel, "bytes", len(payload))
	}); err != nil {
		middleware.Logger.Warn("notification subscriber not started", "error", err.Error())
	}

	middleware.Logger.Info("server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownFn()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		middleware.Logger.Error("error shutting down HTTP server", "error", err.Error())
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr.Error())
		}
	}
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr.Error())
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
