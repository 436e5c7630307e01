package repository

import (
	"context"

	"agora/internal/models"
	"agora/internal/observability"

	"gorm.io/gorm"
)

// ProgressionRepository reads user progression rows.
type ProgressionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserProgression, error)
}

type progressionRepository struct {
	db *gorm.DB
}

// NewProgressionRepository creates a new ProgressionRepository
func NewProgressionRepository(db *gorm.DB) ProgressionRepository {
	return &progressionRepository{db: db}
}

func (r *progressionRepository) GetByUserID(ctx context.Context, userID string) (*models.UserProgression, error) {
	defer observability.TrackQuery("get", "user_progressions")()

	var p models.UserProgression
	if err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
