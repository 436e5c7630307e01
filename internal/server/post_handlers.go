package server

import (
	"agora/internal/progression"
	"agora/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Content   string   `json:"content" validate:"required"`
	ImageRefs []string `json:"image_refs" validate:"max=10"`
}

type updatePostRequest struct {
	Content string `json:"content" validate:"required"`
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}

	var req createPostRequest
	if err := bindJSON(c, &req); err != nil {
		return respondAppError(c, err)
	}

	post, err := s.services.Content.CreatePost(ctx, service.CreatePostInput{
		Author:    user,
		Content:   req.Content,
		ImageRefs: req.ImageRefs,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	s.awardXP(ctx, user.ID, progression.SourcePostCreated)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// ListPosts handles GET /api/posts?view=&cursor=&limit=
func (s *Server) ListPosts(c *fiber.Ctx) error {
	page, err := s.services.Content.ListPosts(c.UserContext(), service.ListPostsInput{
		View:   c.Query("view"),
		Cursor: c.Query("cursor"),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(page)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}
	post, err := s.services.Content.GetPost(c.UserContext(), id)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	id, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}

	var req updatePostRequest
	if err := bindJSON(c, &req); err != nil {
		return respondAppError(c, err)
	}

	post, err := s.services.Content.UpdatePost(c.UserContext(), service.UpdatePostInput{
		CallerID: user.ID,
		PostID:   id,
		Content:  req.Content,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	id, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}

	if err := s.services.Content.DeletePost(c.UserContext(), service.DeletePostInput{
		CallerID: user.ID,
		PostID:   id,
	}); err != nil {
		return respondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLikePost handles POST /api/posts/:id/like
func (s *Server) ToggleLikePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	user, err := currentUser(c)
	if err != nil {
		return respondAppError(c, err)
	}
	id, err := param(c, "id")
	if err != nil {
		return respondAppError(c, err)
	}

	state, err := s.services.Likes.ToggleLikePost(ctx, id, user.ID)
	if err != nil {
		return respondAppError(c, err)
	}
	s.awardLike(ctx, user.ID, state)
	return c.JSON(state)
}
