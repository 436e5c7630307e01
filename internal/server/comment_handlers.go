package server

import (
	"agora/internal/progression"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCommentRequest struct {
	Content  string  `json:"content" validate:"required"`
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,min=1"`
}

type updateCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	postID, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}

	var req createCommentRequest
	if err := bindJSON(c, &req); err != nil {
		return respondAppError(c, err)
	}

	comment, err := s.services.Content.CreateComment(ctx, service.CreateCommentInput{
		Author:   user,
		PostID:   postID,
		ParentID: req.ParentID,
		Content:  req.Content,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	s.awardXP(ctx, user.ID, progression.SourceCommentCreated)
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// GetPostComments handles GET /api/posts/:id/comments?cursor=&limit=
func (s *Server) GetPostComments(c *fiber.Ctx) error {
	postID, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}
	page, err := s.services.Content.GetPostComments(c.UserContext(), postID, c.Query("cursor"), c.QueryInt("limit", 0))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(page)
}

// UpdateComment handles PUT /api/posts/:id/comments/:commentId
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	postID, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}
	commentID, err := param(c, "commentId")
	if err != nil {
		return respondAppError(c, err)
	}

	var req updateCommentRequest
	if err := bindJSON(c, &req); err != nil {
		return respondAppError(c, err)
	}

	comment, err := s.services.Content.UpdateComment(c.UserContext(), service.UpdateCommentInput{
		CallerID:  user.ID,
		PostID:    postID,
		CommentID: commentID,
		Content:   req.Content,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	postID, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}
	commentID, err := param(c, "commentId")
	if err != nil {
		return respondAppError(c, err)
	}

	if err := s.services.Content.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		CallerID:  user.ID,
		PostID:    postID,
		CommentID: commentID,
	}); err != nil {
		return respondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLikeComment handles POST /api/posts/:id/comments/:commentId/like
func (s *Server) ToggleLikeComment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	postID, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}
	commentID, err := param(c, "commentId")
	if err != nil {
		return respondAppError(c, err)
	}

	state, err := s.services.Likes.ToggleLikeComment(ctx, postID, commentID, user.ID)
	if err != nil {
		return respondAppError(c, err)
	}
	s.awardLike(ctx, user.ID, state)
	return c.JSON(state)
}
