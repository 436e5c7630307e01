package repository

import (
	"context"

	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the post queries used by read paths and the
// repair job.
type PostRepository interface {
	GetByID(ctx context.Context, id string) (*models.Post, error)
	// ListRecent returns up to limit posts, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Post, error)
	// ScanIDs pages through post ids in ascending order, starting after afterID.
	ScanIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()

	var post models.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*models.Post, error) {
	defer observability.TrackQuery("list_recent", "posts")()

	var posts []*models.Post
	err := r.db.WithContext(ctx).Order("created_at desc").Order("id").Limit(limit).Find(&posts).Error
	return posts, err
}

func (r *postRepository) ScanIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	defer observability.TrackQuery("scan_ids", "posts")()

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
