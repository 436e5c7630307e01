// Package repository provides read-side data access for the engine. Writes
// go through the transactional store.
package repository

import (
	"context"

	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
)

// CommentRepository defines the comment queries used by read paths and the
// repair job.
type CommentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	// ListByPost returns every comment referencing postID in no particular order.
	ListByPost(ctx context.Context, postID string) ([]*models.Comment, error)
	CountByPost(ctx context.Context, postID string) (int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	defer observability.TrackQuery("get", "comments")()

	var comment models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	defer observability.TrackQuery("list_by_post", "comments")()

	var comments []*models.Comment
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).Find(&comments).Error
	return comments, err
}

func (r *commentRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	defer observability.TrackQuery("count_by_post", "comments")()

	var n int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}
