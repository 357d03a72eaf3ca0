package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/models"
)

// RoomRepository exposes persistence operations for rooms.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uint) (models.Room, error)
	UpdateStatus(ctx context.Context, id uint, status string, endTime *time.Time) (models.Room, error)
	List(ctx context.Context) ([]models.Room, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Room, error)
	GetByStreamCallID(ctx context.Context, streamCallID string) (models.Room, error)
}

// NewRoomRepository constructs a room repository.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

type roomRepository struct {
	db *gorm.DB
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetByID(ctx context.Context, id uint) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) UpdateStatus(ctx context.Context, id uint, status string, endTime *time.Time) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&room, id).Error; err != nil {
			return err
		}
		updates := map[string]any{"status": status}
		if endTime != nil {
			updates["end_time"] = *endTime
		}
		if err := tx.Model(&room).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&room, id).Error
	})
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (r *roomRepository) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := r.db.WithContext(ctx).Order("start_time DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Room, error) {
	var rooms []models.Room
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("start_time DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetByStreamCallID returns the first room bound to the stream call.
func (r *roomRepository) GetByStreamCallID(ctx context.Context, streamCallID string) (models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("stream_call_id = ?", streamCallID).Order("id ASC").First(&room).Error; err != nil {
		return models.Room{}, err
	}
	return room, nil
}
