// Package service implements the engine's write paths on top of the
// transactional store.
package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"agora/internal/cache"
	"agora/internal/feed"
	"agora/internal/models"
	"agora/internal/repository"
	"agora/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxContentLen = 10000
	maxImageRefs  = 10

	defaultCommentFetchCap = 50
	defaultRankWindow      = 500
)

type ContentService struct {
	store    *store.Store
	posts    repository.PostRepository
	comments repository.CommentRepository
	cache    *cache.Cache

	fetchCap   int
	rankWindow int
	now        func() time.Time
	newID      func() string
}

// ContentOptions tunes read paths. Zero values use the defaults.
type ContentOptions struct {
	// CommentFetchCap is how many of a post's most recent comments are shown.
	CommentFetchCap int
	// RankWindow is how many recent posts the ranked views choose from.
	RankWindow int
	Now        func() time.Time
}

type CreatePostInput struct {
	Author    models.Author
	Content   string
	ImageRefs []string
}

type UpdatePostInput struct {
	CallerID string
	PostID   string
	Content  string
}

type DeletePostInput struct {
	CallerID string
	PostID   string
}

type ListPostsInput struct {
	View   string
	Cursor string
	Limit  int
}

type CreateCommentInput struct {
	Author   models.Author
	PostID   string
	ParentID *string
	Content  string
}

type UpdateCommentInput struct {
	CallerID  string
	PostID    string
	CommentID string
	Content   string
}

type DeleteCommentInput struct {
	CallerID  string
	PostID    string
	CommentID string
}

func NewContentService(
	s *store.Store,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	c *cache.Cache,
	opts ContentOptions,
) *ContentService {
	svc := &ContentService{
		store:      s,
		posts:      posts,
		comments:   comments,
		cache:      c,
		fetchCap:   opts.CommentFetchCap,
		rankWindow: opts.RankWindow,
		now:        opts.Now,
		newID:      uuid.NewString,
	}
	if svc.fetchCap <= 0 {
		svc.fetchCap = defaultCommentFetchCap
	}
	if svc.rankWindow <= 0 {
		svc.rankWindow = defaultRankWindow
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", models.NewValidationError("Content too long (max 10000 characters)")
	}
	return content, nil
}

func validateImageRefs(refs []string) ([]string, error) {
	if len(refs) > maxImageRefs {
		return nil, models.NewValidationError("Too many images (max 10)")
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, models.NewValidationError("Image references cannot be empty")
		}
		out = append(out, ref)
	}
	return out, nil
}

func (s *ContentService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.Author.ID == "" {
		return nil, models.NewUnauthorizedError("Author is required")
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}
	images, err := validateImageRefs(in.ImageRefs)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:        s.newID(),
		Content:   content,
		ImageRefs: images,
		Likes:     models.LikeSet{},
		CreatedAt: s.now().UTC(),
	}
	post.SetAuthor(in.Author)

	err = s.store.RunTransaction(ctx, "post.create", nil, func(tx *store.Tx) error {
		tx.Insert(post)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *ContentService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	ref := models.PostRef(in.PostID)
	var post models.Post
	err = s.store.RunTransaction(ctx, "post.update", []models.EntityRef{ref}, func(tx *store.Tx) error {
		if err := getPost(tx, ref, &post); err != nil {
			return err
		}
		if post.AuthorID != in.CallerID {
			return models.NewForbiddenError("You can only update your own posts")
		}
		now := s.now().UTC()
		post.Content = content
		post.UpdatedAt = &now
		return tx.Put(&post)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cache.PostKey(in.PostID))
	return &post, nil
}

// DeletePost removes the post. Its comments are left in place.
func (s *ContentService) DeletePost(ctx context.Context, in DeletePostInput) error {
	ref := models.PostRef(in.PostID)
	err := s.store.RunTransaction(ctx, "post.delete", []models.EntityRef{ref}, func(tx *store.Tx) error {
		var post models.Post
		if err := getPost(tx, ref, &post); err != nil {
			return err
		}
		if post.AuthorID != in.CallerID {
			return models.NewForbiddenError("You can only delete your own posts")
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, cache.PostKey(in.PostID))
	return nil
}

func (s *ContentService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := s.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		p, err := s.posts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		post = *p
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts ranks the most recent posts by the requested view and returns
// one page of them.
func (s *ContentService) ListPosts(ctx context.Context, in ListPostsInput) (feed.Page[*models.Post], error) {
	view, err := feed.ParseView(in.View)
	if err != nil {
		return feed.Page[*models.Post]{}, err
	}

	posts, err := s.posts.ListRecent(ctx, s.rankWindow)
	if err != nil {
		return feed.Page[*models.Post]{}, err
	}
	return feed.Paginate(feed.Rank(posts, view, feed.PostKeys), in.Cursor, in.Limit)
}

// CreateComment stores the comment and increments the post's comment count
// in the same transaction.
func (s *ContentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.Author.ID == "" {
		return nil, models.NewUnauthorizedError("Author is required")
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	postRef := models.PostRef(in.PostID)
	readSet := []models.EntityRef{postRef}
	if in.ParentID != nil {
		readSet = append(readSet, models.CommentRef(*in.ParentID))
	}

	comment := &models.Comment{
		ID:        s.newID(),
		PostID:    in.PostID,
		Content:   content,
		Likes:     models.LikeSet{},
		CreatedAt: s.now().UTC(),
	}
	comment.SetAuthor(in.Author)

	err = s.store.RunTransaction(ctx, "comment.create", readSet, func(tx *store.Tx) error {
		var post models.Post
		if err := getPost(tx, postRef, &post); err != nil {
			return err
		}

		comment.ParentID = nil
		if in.ParentID != nil {
			var parent models.Comment
			if err := getComment(tx, models.CommentRef(*in.ParentID), &parent); err != nil {
				return err
			}
			if parent.PostID != in.PostID {
				return models.NewValidationError("Parent comment belongs to a different post")
			}
			root, ok := models.AsRoot(&parent)
			if !ok {
				return models.NewValidationError("Replies can only be made to top-level comments")
			}
			comment.AttachTo(root.ID())
		}

		tx.Insert(comment)
		post.CommentCount++
		return tx.Put(&post)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, cache.PostKey(in.PostID))
	return comment, nil
}

func (s *ContentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	ref := models.CommentRef(in.CommentID)
	var comment models.Comment
	err = s.store.RunTransaction(ctx, "comment.update", []models.EntityRef{ref}, func(tx *store.Tx) error {
		if err := getComment(tx, ref, &comment); err != nil {
			return err
		}
		if in.PostID != "" && comment.PostID != in.PostID {
			return models.NewNotFoundError("Comment", in.CommentID)
		}
		if comment.AuthorID != in.CallerID {
			return models.NewForbiddenError("You can only update your own comments")
		}
		now := s.now().UTC()
		comment.Content = content
		comment.UpdatedAt = &now
		return tx.Put(&comment)
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes the comment and decrements the post's comment count
// in the same transaction. Replies to a deleted root are kept.
func (s *ContentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	commentRef := models.CommentRef(in.CommentID)
	postRef := models.PostRef(in.PostID)

	err := s.store.RunTransaction(ctx, "comment.delete", []models.EntityRef{commentRef, postRef}, func(tx *store.Tx) error {
		var comment models.Comment
		if err := getComment(tx, commentRef, &comment); err != nil {
			return err
		}
		if comment.PostID != in.PostID {
			return models.NewNotFoundError("Comment", in.CommentID)
		}
		if comment.AuthorID != in.CallerID {
			return models.NewForbiddenError("You can only delete your own comments")
		}
		if err := tx.Delete(commentRef); err != nil {
			return err
		}

		var post models.Post
		err := tx.Get(postRef, &post)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		post.CommentCount = max(post.CommentCount-1, 0)
		return tx.Put(&post)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, cache.PostKey(in.PostID))
	return nil
}

// GetPostComments returns one page of the post's threaded comments.
func (s *ContentService) GetPostComments(ctx context.Context, postID, cursor string, limit int) (feed.CommentPage, error) {
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return feed.CommentPage{}, err
	}
	return feed.PageComments(comments, s.fetchCap, cursor, limit)
}

func getPost(tx *store.Tx, ref models.EntityRef, dest *models.Post) error {
	err := tx.Get(ref, dest)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewNotFoundError("Post", ref.ID)
	}
	return err
}

func getComment(tx *store.Tx, ref models.EntityRef, dest *models.Comment) error {
	err := tx.Get(ref, dest)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewNotFoundError("Comment", ref.ID)
	}
	return err
}
