package server

import (
	"context"

	"agora/internal/featureflags"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/progression"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type addXPRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0,lte=1000000"`
	Source string `json:"source" validate:"omitempty,oneof=post_created comment_created like_received manual"`
}

type repairRequest struct {
	PostIDs   []string `json:"post_ids"`
	BatchSize int      `json:"batch_size" validate:"gte=0,lte=5000"`
	DryRun    bool     `json:"dry_run"`
}

// GetMyProgression handles GET /api/progression/me
func (s *Server) GetMyProgression(c *fiber.Ctx) error {
	ctx := c.UserContext()
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	if err := s.services.Progression.Ensure(ctx, user.ID); err != nil {
		return respondAppError(c, err)
	}

	p, err := s.services.Progression.Get(ctx, user.ID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(p)
}

// AddXP handles POST /api/admin/xp
func (s *Server) AddXP(c *fiber.Ctx) error {
	var req addXPRequest
	if err := bindJSON(c, &req); err != nil {
		return respondAppError(c, err)
	}
	source := progression.SourceManual
	if req.Source != "" {
		source, _ = progression.ParseSource(req.Source)
	}

	award, err := s.services.Progression.AddXP(c.UserContext(), req.UserID, req.Amount, source)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(award)
}

// RepairCommentCounts handles POST /api/admin/repair/comment-counts
func (s *Server) RepairCommentCounts(c *fiber.Ctx) error {
	var req repairRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return respondAppError(c, err)
		}
	}

	report, err := s.services.Repair.Run(c.UserContext(), service.RepairScope{
		PostIDs:   req.PostIDs,
		BatchSize: req.BatchSize,
		DryRun:    req.DryRun,
	})
	if err != nil {
		return respondAppError(c, models.NewInternalError(err))
	}
	return c.JSON(report)
}

// awardXP grants the configured reward for source. Failures never fail the
// request that earned the XP.
func (s *Server) awardXP(ctx context.Context, userID string, source progression.Source) {
	if !s.services.Flags.Enabled(featureflags.XPAwards, userID) {
		return
	}
	amount := s.services.Rewards.For(source)
	if amount <= 0 {
		return
	}

	if err := s.services.Progression.Ensure(ctx, userID); err != nil {
		middleware.Logger.WarnContext(ctx, "xp award skipped", "source", string(source), "error", err.Error())
		return
	}
	if _, err := s.services.Progression.AddXP(ctx, userID, amount, source); err != nil {
		middleware.Logger.WarnContext(ctx, "xp award failed", "source", string(source), "error", err.Error())
	}
}

// awardLike rewards the author the first time a user likes their content.
// Self-likes, unlikes and re-likes earn nothing.
func (s *Server) awardLike(ctx context.Context, likerID string, state service.LikeState) {
	if !state.FirstLike || state.AuthorID == "" || state.AuthorID == likerID {
		return
	}
	s.awardXP(ctx, state.AuthorID, progression.SourceLikeReceived)
}
