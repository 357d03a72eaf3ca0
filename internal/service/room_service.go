package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

// ErrRoomNotFound indicates the room cannot be located.
var ErrRoomNotFound = errors.New("room not found")

// RoomService schedules and tracks live classes.
type RoomService interface {
	Create(ctx context.Context, subject string, payload dto.CreateRoomRequest) (dto.RoomResponse, error)
	UpdateStatus(ctx context.Context, id uint, payload dto.UpdateRoomStatusRequest) (dto.RoomResponse, error)
	Get(ctx context.Context, id uint) (dto.RoomResponse, error)
	ListAll(ctx context.Context) ([]dto.RoomResponse, error)
	ListMine(ctx context.Context, subject string) ([]dto.RoomResponse, error)
	GetByStreamCallID(ctx context.Context, streamCallID string) (dto.RoomResponse, error)
}

type roomService struct {
	rooms     repository.RoomRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewRoomService constructs the room service.
func NewRoomService(rooms repository.RoomRepository, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		rooms:     rooms,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "room_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/codemeet-api/internal/service/rooms"),
		now:       time.Now,
	}
}

func (s *roomService) Create(ctx context.Context, subject string, payload dto.CreateRoomRequest) (dto.RoomResponse, error) {
	if strings.TrimSpace(subject) == "" {
		return dto.RoomResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.RoomResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "rooms.create", trace.WithAttributes(
		attribute.String("room.stream_call_id", payload.StreamCallID),
	))
	defer span.End()

	room := models.Room{
		Title:        strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Description:  strings.TrimSpace(s.sanitizer.Sanitize(payload.Description)),
		StartTime:    payload.StartTime.UTC(),
		EndTime:      payload.EndTime,
		Status:       strings.ToLower(strings.TrimSpace(payload.Status)),
		StreamCallID: payload.StreamCallID,
		StudentID:    payload.StudentID,
		TeacherIDs:   datatypes.JSONSlice[string](payload.TeacherIDs),
	}
	if room.TeacherIDs == nil {
		room.TeacherIDs = datatypes.JSONSlice[string]{}
	}

	if err := s.rooms.Create(ctx, &room); err != nil {
		span.RecordError(err)
		return dto.RoomResponse{}, err
	}

	s.logger.Info().Uint("room_id", room.ID).Str("created_by", subject).Msg("room created")
	return dto.NewRoomResponse(room, s.now()), nil
}

// UpdateStatus stamps the end time when a class is marked completed.
func (s *roomService) UpdateStatus(ctx context.Context, id uint, payload dto.UpdateRoomStatusRequest) (dto.RoomResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RoomResponse{}, err
	}

	status := strings.ToLower(strings.TrimSpace(payload.Status))
	ctx, span := s.tracer.Start(ctx, "rooms.update_status", trace.WithAttributes(
		attribute.Int("room.id", int(id)),
		attribute.String("room.status", status),
	))
	defer span.End()

	var endTime *time.Time
	if status == models.RoomStatusCompleted {
		now := s.now().UTC()
		endTime = &now
	}

	room, err := s.rooms.UpdateStatus(ctx, id, status, endTime)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RoomResponse{}, ErrRoomNotFound
		}
		span.RecordError(err)
		return dto.RoomResponse{}, err
	}

	return dto.NewRoomResponse(room, s.now()), nil
}

func (s *roomService) Get(ctx context.Context, id uint) (dto.RoomResponse, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RoomResponse{}, ErrRoomNotFound
		}
		return dto.RoomResponse{}, err
	}
	return dto.NewRoomResponse(room, s.now()), nil
}

func (s *roomService) ListAll(ctx context.Context) ([]dto.RoomResponse, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomListResponse(rooms, s.now()), nil
}

// ListMine returns the caller's rooms; an anonymous caller has none.
func (s *roomService) ListMine(ctx context.Context, subject string) ([]dto.RoomResponse, error) {
	if strings.TrimSpace(subject) == "" {
		return []dto.RoomResponse{}, nil
	}
	rooms, err := s.rooms.ListByStudent(ctx, subject)
	if err != nil {
		return nil, err
	}
	return dto.NewRoomListResponse(rooms, s.now()), nil
}

func (s *roomService) GetByStreamCallID(ctx context.Context, streamCallID string) (dto.RoomResponse, error) {
	room, err := s.rooms.GetByStreamCallID(ctx, streamCallID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RoomResponse{}, ErrRoomNotFound
		}
		return dto.RoomResponse{}, err
	}
	return dto.NewRoomResponse(room, s.now()), nil
}
