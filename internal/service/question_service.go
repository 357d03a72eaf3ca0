package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/observability"
	"github.com/noah-isme/codemeet-api/internal/repository"
)

// ErrQuestionNotFound indicates the question cannot be located.
var ErrQuestionNotFound = errors.New("question not found")

// ErrEmptyAfterSanitization indicates user content contained nothing but markup.
var ErrEmptyAfterSanitization = errors.New("content empty after sanitization")

// Messages returned by MarkSolved.
const (
	MessageQuestionSolved  = "Question marked as solved"
	MessageAlreadySolved   = "Question already solved"
	MessageQuestionUpdated = "Question updated"
	MessageQuestionDeleted = "Question deleted"
)

// QuestionService manages the question bank.
type QuestionService interface {
	List(ctx context.Context) ([]dto.QuestionResponse, bool, error)
	Get(ctx context.Context, id uint) (dto.QuestionResponse, error)
	Create(ctx context.Context, subject string, payload dto.CreateQuestionRequest) (dto.QuestionResponse, error)
	Update(ctx context.Context, subject string, id uint, payload dto.UpdateQuestionRequest) (dto.QuestionResponse, error)
	Delete(ctx context.Context, subject string, id uint) error
	MarkSolved(ctx context.Context, subject string, id uint) (dto.MarkSolvedResponse, error)
}

type questionService struct {
	questions repository.QuestionRepository
	accounts  repository.AccountRepository
	events    RunEventPublisher
	cache     *redis.Client
	cacheTTL  time.Duration
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewQuestionService constructs the question service. cache and events may be nil.
func NewQuestionService(questions repository.QuestionRepository, accounts repository.AccountRepository, events RunEventPublisher, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) QuestionService {
	return &questionService{
		questions: questions,
		accounts:  accounts,
		events:    events,
		cache:     cache,
		cacheTTL:  ttl,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "question_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/codemeet-api/internal/service/questions"),
	}
}

// List returns every question, newest first, and whether it came from cache.
func (s *questionService) List(ctx context.Context) ([]dto.QuestionResponse, bool, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, questionsCacheKey).Result(); err == nil {
			var response []dto.QuestionResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.CacheLookups().WithLabelValues("questions", "hit").Inc()
				return response, true, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read question cache")
		}
		observability.CacheLookups().WithLabelValues("questions", "miss").Inc()
	}

	questions, err := s.questions.List(ctx)
	if err != nil {
		return nil, false, err
	}
	response := dto.NewQuestionListResponse(questions)

	if s.cache != nil && s.cacheTTL > 0 {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, questionsCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store question cache")
			}
		}
	}

	return response, false, nil
}

func (s *questionService) Get(ctx context.Context, id uint) (dto.QuestionResponse, error) {
	question, err := s.load(ctx, id)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Create(ctx context.Context, subject string, payload dto.CreateQuestionRequest) (dto.QuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}
	if _, err := requireTeacher(ctx, s.accounts, subject); err != nil {
		return dto.QuestionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "questions.create", trace.WithAttributes(attribute.String("question.author_id", subject)))
	defer span.End()

	title, description, err := s.cleanText(payload.Title, payload.Description)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	question := models.Question{
		Title:       title,
		Description: description,
		Level:       payload.Level,
		Examples:    datatypes.JSONSlice[models.QuestionExample](dto.ToModelExamples(payload.Examples)),
		StarterCode: datatypes.NewJSONType(models.StarterCode(payload.StarterCode)),
		Constraints: datatypes.JSONSlice[string](nonNil(payload.Constraints)),
		AuthorID:    subject,
	}

	if err := s.questions.Create(ctx, &question); err != nil {
		span.RecordError(err)
		return dto.QuestionResponse{}, err
	}

	s.invalidate(ctx)
	s.logger.Info().Uint("question_id", question.ID).Str("author_id", subject).Msg("question created")
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Update(ctx context.Context, subject string, id uint, payload dto.UpdateQuestionRequest) (dto.QuestionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.QuestionResponse{}, err
	}
	if _, err := requireTeacher(ctx, s.accounts, subject); err != nil {
		return dto.QuestionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "questions.update", trace.WithAttributes(attribute.Int("question.id", int(id))))
	defer span.End()

	question, err := s.load(ctx, id)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	title, description := question.Title, question.Description
	if payload.Title != nil {
		title = *payload.Title
	}
	if payload.Description != nil {
		description = *payload.Description
	}
	if question.Title, question.Description, err = s.cleanText(title, description); err != nil {
		return dto.QuestionResponse{}, err
	}
	if payload.Level != nil {
		question.Level = *payload.Level
	}
	if payload.Examples != nil {
		question.Examples = dto.ToModelExamples(*payload.Examples)
	}
	if payload.StarterCode != nil {
		question.StarterCode = datatypes.NewJSONType(models.StarterCode(*payload.StarterCode))
	}
	if payload.Constraints != nil {
		question.Constraints = nonNil(*payload.Constraints)
	}

	if err := s.questions.Update(ctx, &question); err != nil {
		span.RecordError(err)
		return dto.QuestionResponse{}, err
	}

	s.invalidate(ctx)
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Delete(ctx context.Context, subject string, id uint) error {
	if _, err := requireTeacher(ctx, s.accounts, subject); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "questions.delete", trace.WithAttributes(attribute.Int("question.id", int(id))))
	defer span.End()

	if err := s.questions.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		span.RecordError(err)
		return err
	}

	s.invalidate(ctx)
	s.logger.Info().Uint("question_id", id).Str("deleted_by", subject).Msg("question deleted")
	return nil
}

// MarkSolved records the solve once; repeated calls report it as already solved.
func (s *questionService) MarkSolved(ctx context.Context, subject string, id uint) (dto.MarkSolvedResponse, error) {
	account, err := loadAccount(ctx, s.accounts, subject)
	if err != nil {
		return dto.MarkSolvedResponse{}, err
	}
	if _, err := s.load(ctx, id); err != nil {
		return dto.MarkSolvedResponse{}, err
	}

	created, err := s.accounts.MarkSolved(ctx, account.ID, id)
	if err != nil {
		return dto.MarkSolvedResponse{}, err
	}
	if !created {
		return dto.MarkSolvedResponse{QuestionID: id, AlreadySolved: true, Message: MessageAlreadySolved}, nil
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
		}
	}
	if s.events != nil {
		event := RunEvent{Type: EventQuestionSolved, Subject: subject, QuestionID: id, Passed: true}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish question solved event")
		}
	}

	return dto.MarkSolvedResponse{QuestionID: id, Message: MessageQuestionSolved}, nil
}

func (s *questionService) load(ctx context.Context, id uint) (models.Question, error) {
	question, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	return question, nil
}

func (s *questionService) cleanText(title, description string) (string, string, error) {
	cleanTitle := strings.TrimSpace(s.sanitizer.Sanitize(title))
	cleanDescription := strings.TrimSpace(s.sanitizer.Sanitize(description))
	if cleanTitle == "" || cleanDescription == "" {
		return "", "", ErrEmptyAfterSanitization
	}
	return cleanTitle, cleanDescription, nil
}

func (s *questionService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, questionsCacheKey, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate question cache")
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
