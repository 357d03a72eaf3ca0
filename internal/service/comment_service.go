package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

// CommentService records feedback on rooms.
type CommentService interface {
	Add(ctx context.Context, subject string, roomID uint, payload dto.AddCommentRequest) (dto.CommentResponse, error)
	ListByRoom(ctx context.Context, roomID uint) ([]dto.CommentResponse, error)
}

type commentService struct {
	comments  repository.CommentRepository
	rooms     repository.RoomRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewCommentService constructs the comment service.
func NewCommentService(comments repository.CommentRepository, rooms repository.RoomRepository, validate *validator.Validate, logger zerolog.Logger) CommentService {
	return &commentService{
		comments:  comments,
		rooms:     rooms,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "comment_service").Logger(),
	}
}

func (s *commentService) Add(ctx context.Context, subject string, roomID uint, payload dto.AddCommentRequest) (dto.CommentResponse, error) {
	if strings.TrimSpace(subject) == "" {
		return dto.CommentResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.CommentResponse{}, err
	}
	if err := s.ensureRoom(ctx, roomID); err != nil {
		return dto.CommentResponse{}, err
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if content == "" {
		return dto.CommentResponse{}, ErrEmptyAfterSanitization
	}

	comment := models.Comment{
		Content:  content,
		Rating:   payload.Rating,
		AuthorID: subject,
		RoomID:   roomID,
	}
	if err := s.comments.Create(ctx, &comment); err != nil {
		return dto.CommentResponse{}, err
	}

	s.logger.Debug().Uint("room_id", roomID).Str("author_id", subject).Int("rating", payload.Rating).Msg("comment added")
	return dto.NewCommentResponse(comment), nil
}

func (s *commentService) ListByRoom(ctx context.Context, roomID uint) ([]dto.CommentResponse, error) {
	if err := s.ensureRoom(ctx, roomID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return dto.NewCommentListResponse(comments), nil
}

func (s *commentService) ensureRoom(ctx context.Context, roomID uint) error {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	return nil
}
