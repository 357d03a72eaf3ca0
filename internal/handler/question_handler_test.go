package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codemeet-api/internal/dto"
	"github.com/noah-isme/codemeet-api/internal/handler"
	"github.com/noah-isme/codemeet-api/internal/service"
)

type stubQuestionService struct {
	questions   []dto.QuestionResponse
	cacheHit    bool
	err         error
	solved      map[uint]bool
	lastSubject string
}

func (s *stubQuestionService) List(context.Context) ([]dto.QuestionResponse, bool, error) {
	return s.questions, s.cacheHit, s.err
}

func (s *stubQuestionService) Get(_ context.Context, id uint) (dto.QuestionResponse, error) {
	for _, question := range s.questions {
		if question.ID == id {
			return question, nil
		}
	}
	return dto.QuestionResponse{}, service.ErrQuestionNotFound
}

func (s *stubQuestionService) Create(_ context.Context, subject string, payload dto.CreateQuestionRequest) (dto.QuestionResponse, error) {
	s.lastSubject = subject
	if s.err != nil {
		return dto.QuestionResponse{}, s.err
	}
	return dto.QuestionResponse{ID: 9, Title: payload.Title, AuthorID: subject}, nil
}

func (s *stubQuestionService) Update(_ context.Context, subject string, id uint, _ dto.UpdateQuestionRequest) (dto.QuestionResponse, error) {
	s.lastSubject = subject
	if s.err != nil {
		return dto.QuestionResponse{}, s.err
	}
	return s.Get(context.Background(), id)
}

func (s *stubQuestionService) Delete(_ context.Context, subject string, id uint) error {
	s.lastSubject = subject
	if s.err != nil {
		return s.err
	}
	_, err := s.Get(context.Background(), id)
	return err
}

func (s *stubQuestionService) MarkSolved(_ context.Context, subject string, id uint) (dto.MarkSolvedResponse, error) {
	s.lastSubject = subject
	if s.solved == nil {
		s.solved = map[uint]bool{}
	}
	if s.solved[id] {
		return dto.MarkSolvedResponse{QuestionID: id, AlreadySolved: true, Message: service.MessageAlreadySolved}, nil
	}
	s.solved[id] = true
	return dto.MarkSolvedResponse{QuestionID: id, Message: service.MessageQuestionSolved}, nil
}

func newQuestionApp(svc service.QuestionService, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/questions", authenticated("user_teacher", role))
	handler.NewQuestionHandler(svc, zerolog.Nop()).Register(group)
	return app
}

func TestQuestionHandlerListReportsCacheHit(t *testing.T) {
	svc := &stubQuestionService{
		questions: []dto.QuestionResponse{{ID: 1, Title: "Two Sum", Level: "Easy"}},
		cacheHit:  true,
	}
	app := newQuestionApp(svc, "student")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/questions", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.True(t, payload.Success)
	require.Equal(t, true, payload.Meta["cache_hit"])

	var questions []dto.QuestionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &questions))
	require.Len(t, questions, 1)
	require.Equal(t, "Two Sum", questions[0].Title)
}

func TestQuestionHandlerGetMissingReturnsNotFound(t *testing.T) {
	app := newQuestionApp(&stubQuestionService{}, "student")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/questions/42", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestQuestionHandlerRejectsInvalidIdentifier(t *testing.T) {
	app := newQuestionApp(&stubQuestionService{}, "student")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/questions/zero", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestQuestionHandlerCreateForbiddenForStudents(t *testing.T) {
	svc := &stubQuestionService{err: service.ErrForbidden}
	app := newQuestionApp(svc, "student")

	body := `{"title":"Two Sum","description":"Find indices","level":"Easy","examples":[{"input":"nums = [2,7], target = 9","output":"[0,1]"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.False(t, payload.Success)
	require.Equal(t, "Forbidden", payload.Message)
	require.Equal(t, "user_teacher", svc.lastSubject)
}

func TestQuestionHandlerCreateReturnsCreated(t *testing.T) {
	svc := &stubQuestionService{}
	app := newQuestionApp(svc, "teacher")

	body := `{"title":"Two Sum","description":"Find indices","level":"Easy","examples":[{"input":"nums = [2,7], target = 9","output":"[0,1]"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	var question dto.QuestionResponse
	require.NoError(t, json.Unmarshal(payload.Data, &question))
	require.Equal(t, "Two Sum", question.Title)
	require.Equal(t, "user_teacher", question.AuthorID)
}

func TestQuestionHandlerMarkSolvedIsIdempotent(t *testing.T) {
	svc := &stubQuestionService{}
	app := newQuestionApp(svc, "student")

	first, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/questions/3/solved", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	require.Equal(t, service.MessageQuestionSolved, decodeEnvelope(t, first).Message)

	second, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/questions/3/solved", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	require.Equal(t, service.MessageAlreadySolved, decodeEnvelope(t, second).Message)
}
