package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// CommentRepository exposes persistence operations for room feedback.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByRoom(ctx context.Context, roomID uint) ([]models.Comment, error)
}

// NewCommentRepository constructs a comment repository.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

type commentRepository struct {
	db *gorm.DB
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *commentRepository) ListByRoom(ctx context.Context, roomID uint) ([]models.Comment, error) {
	var comments []models.Comment
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC").Order("id ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
