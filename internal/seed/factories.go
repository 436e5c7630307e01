// Package seed creates demo data for development databases and tests.
// Nothing here runs in production paths.
package seed

import (
	"context"
	"fmt"
	"time"

	"agora/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db      *gorm.DB
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
}

// NewFactory creates a Factory bound to db. A zero RandSeed picks a random
// seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		db:      db,
		faker:   gofakeit.New(opts.RandSeed),
		maxDays: maxDays,
		now:     time.Now,
	}
}

// Author returns a random identity.
func (f *Factory) Author() models.Author {
	return models.Author{
		ID:        f.faker.Username() + "-" + uuid.NewString()[:8],
		Name:      f.faker.Name(),
		AvatarRef: fmt.Sprintf("avatars/%s.webp", f.faker.UUID()),
	}
}

// createdAt spreads timestamps over the last maxDays.
func (f *Factory) createdAt() time.Time {
	back := time.Duration(f.faker.IntRange(0, f.maxDays*24*60)) * time.Minute
	return f.now().Add(-back).UTC()
}

// BuildPost constructs a post without persisting it.
func (f *Factory) BuildPost(author models.Author, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		ID:        uuid.NewString(),
		Content:   f.faker.Paragraph(1, 3, 12, "\n"),
		Likes:     models.LikeSet{},
		CreatedAt: f.createdAt(),
	}
	post.SetAuthor(author)
	post.Version = 1

	images := f.faker.IntRange(0, 3)
	post.ImageRefs = make([]string, 0, images)
	for range images {
		post.ImageRefs = append(post.ImageRefs, fmt.Sprintf("images/%s.webp", f.faker.UUID()))
	}

	for _, override := range overrides {
		override(post)
	}
	return post
}

// BuildComment constructs a root comment on post, or a reply when parent
// is set. The comment is never older than its post or its parent.
func (f *Factory) BuildComment(author models.Author, post *models.Post, parent *models.Root, overrides ...func(*models.Comment)) *models.Comment {
	after := post.CreatedAt
	if parent != nil && parent.Comment().CreatedAt.After(after) {
		after = parent.Comment().CreatedAt
	}
	span := max(int(f.now().Sub(after)/time.Minute), 1)

	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		Content:   f.faker.Sentence(f.faker.IntRange(4, 20)),
		Likes:     models.LikeSet{},
		CreatedAt: after.Add(time.Duration(f.faker.IntRange(1, span)) * time.Minute).UTC(),
	}
	comment.SetAuthor(author)
	comment.Version = 1
	if parent != nil {
		comment.AttachTo(parent.ID())
	}

	for _, override := range overrides {
		override(comment)
	}
	return comment
}

// Likes picks a random subset of authors as likers.
func (f *Factory) Likes(authors []models.Author, maxLikes int) models.LikeSet {
	n := f.faker.IntRange(0, min(maxLikes, len(authors)))
	likes := make(models.LikeSet, 0, n)
	for range n {
		likes = append(likes, authors[f.faker.IntRange(0, len(authors)-1)].ID)
	}
	return likes.Normalize()
}

// CreatePost builds and persists a post.
func (f *Factory) CreatePost(ctx context.Context, author models.Author, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author, overrides...)
	if err := f.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// CreateComment builds and persists a comment and bumps the post's count.
func (f *Factory) CreateComment(ctx context.Context, author models.Author, post *models.Post, parent *models.Root) (*models.Comment, error) {
	comment := f.BuildComment(author, post, parent)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumns(map[string]any{
				"comment_count": gorm.Expr("comment_count + 1"),
				"version":       gorm.Expr("version + 1"),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	post.CommentCount++
	post.Version++
	return comment, nil
}
